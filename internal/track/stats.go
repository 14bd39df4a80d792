package track

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates per-trajectory statistics over the visible span of a
// point: how often it was observed and how far and how fast it moved.
// Steps are frame-to-frame displacements between consecutive visible frames.
type Summary struct {
	PointID       int64   `json:"point_id"`
	VisibleFrames int     `json:"visible_frames"`
	FirstVisible  int     `json:"first_visible"` // -1 when never visible
	LastVisible   int     `json:"last_visible"`  // -1 when never visible
	PathLengthPx  float64 `json:"path_length_px"`
	MeanStepPx    float64 `json:"mean_step_px"`
	P50StepPx     float64 `json:"p50_step_px"`
	P95StepPx     float64 `json:"p95_step_px"`
}

// Summarize computes the visible-span statistics for one point.
func Summarize(s *Store, id int64) (Summary, error) {
	tr, err := s.Trajectory(id)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize point %d: %w", id, err)
	}

	sum := Summary{PointID: id, FirstVisible: -1, LastVisible: -1}

	var steps []float64
	prevVisible := -1
	for frame, rec := range tr {
		if !rec.Visible {
			continue
		}
		sum.VisibleFrames++
		if sum.FirstVisible == -1 {
			sum.FirstVisible = frame
		}
		sum.LastVisible = frame

		if prevVisible == frame-1 {
			prev := tr[prevVisible]
			dx := rec.X - prev.X
			dy := rec.Y - prev.Y
			steps = append(steps, math.Hypot(dx, dy))
		}
		prevVisible = frame
	}

	if len(steps) > 0 {
		for _, st := range steps {
			sum.PathLengthPx += st
		}
		sum.MeanStepPx = stat.Mean(steps, nil)

		sorted := make([]float64, len(steps))
		copy(sorted, steps)
		sort.Float64s(sorted)
		sum.P50StepPx = stat.Quantile(0.50, stat.Empirical, sorted, nil)
		sum.P95StepPx = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}

	return sum, nil
}

// Nearest finds the visible point closest to (x, y) at the given frame,
// within maxDist pixels. Reports false when no visible point is in range.
func Nearest(s *Store, frame int, x, y, maxDist float64) (int64, FrameRecord, bool) {
	bestID := int64(-1)
	var bestRec FrameRecord
	best := maxDist
	for _, id := range s.PointIDs() {
		rec, err := s.Frame(id, frame)
		if err != nil || !rec.Visible {
			continue
		}
		if d := math.Hypot(rec.X-x, rec.Y-y); d <= best {
			best = d
			bestID = id
			bestRec = rec
		}
	}
	return bestID, bestRec, bestID >= 0
}

// SummarizeAll computes statistics for every active point, in the store's
// insertion order.
func SummarizeAll(s *Store) []Summary {
	ids := s.PointIDs()
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		sum, err := Summarize(s, id)
		if err != nil {
			// Point removed between listing and summarising; skip.
			continue
		}
		out = append(out, sum)
	}
	return out
}
