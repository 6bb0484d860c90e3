package server

import (
	"errors"
	"net/http"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/sweep"
	"github.com/aristath/frontier/internal/report"
)

// CorrelationsResponse is the body of GET /api/frontier/correlations.
type CorrelationsResponse struct {
	RunID            string                         `json:"run_id"`
	Assets           []string                       `json:"assets"`
	Matrix           [][]float64                    `json:"matrix"`
	HighCorrelations []optimization.CorrelationPair `json:"high_correlations"`
}

// latest returns the latest frontier or writes a 404.
func (s *Server) latest(w http.ResponseWriter, r *http.Request) (*sweep.Frontier, bool) {
	f := s.runner.Latest()
	if f == nil {
		s.writeError(w, r, http.StatusNotFound, "no frontier computed yet")
		return nil, false
	}
	return f, true
}

// handleGetFrontier returns the latest frontier
// GET /api/frontier
func (s *Server) handleGetFrontier(w http.ResponseWriter, r *http.Request) {
	f, ok := s.latest(w, r)
	if !ok {
		return
	}
	s.writeResponse(w, r, http.StatusOK, f)
}

// handleRunFrontier starts a new run in the background
// POST /api/frontier/run
func (s *Server) handleRunFrontier(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Start(s.ctx); err != nil {
		if errors.Is(err, sweep.ErrRunInProgress) {
			s.writeError(w, r, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeResponse(w, r, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleFrontierChart renders the latest frontier
// GET /api/frontier/chart.png
func (s *Server) handleFrontierChart(w http.ResponseWriter, r *http.Request) {
	f, ok := s.latest(w, r)
	if !ok {
		return
	}
	img, err := report.RenderChart(f)
	if err != nil {
		if errors.Is(err, report.ErrNothingToPlot) {
			s.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("Failed to render frontier chart")
		s.writeError(w, r, http.StatusInternalServerError, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// handleCorrelations returns the correlation matrix of the latest frontier
// GET /api/frontier/correlations
func (s *Server) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	f, ok := s.latest(w, r)
	if !ok {
		return
	}
	names := make([]string, len(f.Assets))
	for i, a := range f.Assets {
		names[i] = a.Symbol
	}
	s.writeResponse(w, r, http.StatusOK, CorrelationsResponse{
		RunID:            f.RunID,
		Assets:           names,
		Matrix:           f.Correlation,
		HighCorrelations: f.HighCorrelations,
	})
}
