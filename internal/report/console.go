// Package report renders a frontier for people: a text report and a PNG chart.
package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/aristath/frontier/internal/modules/sweep"
)

// WeightEpsilon hides allocations smaller than this from the text report.
const WeightEpsilon = 1e-6

// WriteText writes the human readable report of f to w.
func WriteText(w io.Writer, f *sweep.Frontier) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Run %s at %s (%s)\n", f.RunID, f.CreatedAt.Format("2006-01-02 15:04:05"), f.Duration.Round(1e6))
	fmt.Fprintf(tw, "Reward: %s  Shorting: %t\n\n", f.Options.RewardPolicy, f.Options.AllowShort)

	fmt.Fprintln(tw, "ASSET\tNAME\tDAYS\tMEAN\tSTDEV\tVOL 30D\tCAGR")
	for _, a := range f.Assets {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.6f\t%.6f\t%s\t%s\n",
			a.Symbol, a.DisplayName, a.Observations, a.Mean, a.StdDev, percent(a.Volatility), percent(a.CAGR))
	}
	fmt.Fprintln(tw)

	for _, p := range f.Points {
		if !p.OK() {
			fmt.Fprintf(tw, "risk aversion %g: failed: %s\n\n", p.RiskAversion, p.Error)
			continue
		}
		fmt.Fprintf(tw, "risk aversion %g: risk %.6f return %.6f variance %.6f utility %.6f\n",
			p.RiskAversion, p.Stats.Risk, p.Stats.Return, p.Stats.Variance, p.Allocation.Utility)
		fmt.Fprintln(tw, "\tASSET\tWEIGHT\tAVERAGE\tSTDEV")
		for i, weight := range p.Allocation.Weights {
			if math.Abs(weight) < WeightEpsilon {
				continue
			}
			a := f.Assets[i]
			fmt.Fprintf(tw, "\t%s\t%.4f\t%.6f\t%.6f\n", a.Symbol, weight, a.Mean, a.StdDev)
		}
		fmt.Fprintln(tw)
	}

	if len(f.HighCorrelations) > 0 {
		fmt.Fprintln(tw, "Highly correlated pairs:")
		for _, pair := range f.HighCorrelations {
			fmt.Fprintf(tw, "\t%s\t%s\t%+.3f\n", pair.Asset1, pair.Asset2, pair.Correlation)
		}
		fmt.Fprintln(tw)
	}

	if len(f.Assets) > 0 {
		header := make([]string, len(f.Assets))
		for i, a := range f.Assets {
			header[i] = a.Symbol
		}
		fmt.Fprintln(tw, "Correlation matrix:")
		fmt.Fprintf(tw, "\t%s\n", strings.Join(header, "\t"))
		for i, row := range f.Correlation {
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = fmt.Sprintf("%+.3f", v)
			}
			fmt.Fprintf(tw, "%s\t%s\n", header[i], strings.Join(cells, "\t"))
		}
		fmt.Fprintln(tw)
	}

	for _, r := range f.Rejected {
		fmt.Fprintf(tw, "excluded %s: %s\n", r.Name, r.Reason)
	}
	for _, fail := range f.Failures {
		fmt.Fprintf(tw, "not loaded %s: %s\n", fail.Asset.Symbol, fail.Error)
	}

	return tw.Flush()
}

func percent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}
