package brush

import (
	"sort"

	"github.com/masltov-creations/opencommotion/pkg/scene"
)

type curvePoint struct {
	X float64
	Y float64
}

// curvePoints validates, de-duplicates, and sorts chart points by x. Rows
// without two coordinates are a compile error rather than a silent skip.
func curvePoints(st scene.Stroke, rows [][]float64) ([]curvePoint, error) {
	points := make([]curvePoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, &scene.CompileError{
				StrokeID: st.StrokeID,
				Kind:     st.Kind,
				Code:     scene.CodeInvalidParam,
				Message:  "chart points need [x, y] pairs",
			}
		}
		points = append(points, curvePoint{X: row[0], Y: row[1]})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].X < points[j].X })

	deduped := points[:0]
	for i, p := range points {
		if i > 0 && p.X == points[i-1].X {
			deduped[len(deduped)-1] = p
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped, nil
}

// coerceGrowthTrend forces y values monotonic non-increasing. Screen-space y
// grows downward, so a shrinking y reads as upward growth.
func coerceGrowthTrend(points []curvePoint) {
	for i := 1; i < len(points); i++ {
		if points[i].Y > points[i-1].Y {
			points[i].Y = points[i-1].Y
		}
	}
}

func pointsValue(points []curvePoint) []any {
	rows := make([]any, len(points))
	for i, p := range points {
		rows[i] = []any{p.X, p.Y}
	}
	return rows
}

// renormalizeSlices scales pie proportions so they sum to 100, distributing
// rounding drift onto the largest slice.
func renormalizeSlices(slices []pieSlice) []pieSlice {
	total := 0.0
	for _, s := range slices {
		if s.Value > 0 {
			total += s.Value
		}
	}
	if total <= 0 {
		return slices
	}
	out := make([]pieSlice, len(slices))
	sum := 0.0
	largest := 0
	for i, s := range slices {
		value := s.Value
		if value < 0 {
			value = 0
		}
		scaled := float64(int(value/total*100 + 0.5))
		out[i] = pieSlice{Label: s.Label, Value: scaled}
		sum += scaled
		if scaled > out[largest].Value {
			largest = i
		}
	}
	if drift := 100 - sum; drift != 0 {
		out[largest].Value += drift
	}
	return out
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
