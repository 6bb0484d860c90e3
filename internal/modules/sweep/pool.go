package sweep

import (
	"context"
	"sync"
)

// WorkerPool runs sweep points on a fixed number of goroutines.
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &WorkerPool{numWorkers: numWorkers}
}

// Run calls solve for every risk aversion and returns the points in input
// order. Risk aversions not yet started when ctx is done get a point carrying
// the context error.
func (wp *WorkerPool) Run(ctx context.Context, riskAversions []float64, solve func(float64) Point) []Point {
	n := len(riskAversions)
	if n == 0 {
		return []Point{}
	}

	jobs := make(chan jobItem, n)
	results := make(chan resultItem, n)

	var wg sync.WaitGroup
	numActualWorkers := wp.numWorkers
	if n < numActualWorkers {
		numActualWorkers = n
	}

	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, results, solve)
		}()
	}

	for idx, ra := range riskAversions {
		jobs <- jobItem{index: idx, riskAversion: ra}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	points := make([]Point, n)
	for result := range results {
		points[result.index] = result.point
	}
	return points
}

type jobItem struct {
	index        int
	riskAversion float64
}

type resultItem struct {
	index int
	point Point
}

func worker(ctx context.Context, jobs <-chan jobItem, results chan<- resultItem, solve func(float64) Point) {
	for job := range jobs {
		var point Point
		if err := ctx.Err(); err != nil {
			point = Point{RiskAversion: job.riskAversion, Error: err.Error()}
		} else {
			point = solve(job.riskAversion)
		}
		results <- resultItem{index: job.index, point: point}
	}
}
