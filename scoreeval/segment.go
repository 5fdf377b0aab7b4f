package scoreeval

// SurfacePoint is one sample of the objective surface over two axes.
type SurfacePoint struct {
	A, B  float64
	Score float64
}

// SegmentByRow splits samples into maximal runs that share a row index.
// Concatenating the runs gives back the input.
func SegmentByRow(samples []ScoreSample) [][]ScoreSample {
	var segments [][]ScoreSample
	start := 0
	for i := 1; i <= len(samples); i++ {
		if i == len(samples) || samples[i].Offset.Row != samples[start].Offset.Row {
			segments = append(segments, samples[start:i])
			start = i
		}
	}
	return segments
}

// SurfaceSegments projects row segments onto (axisA, axisB, score).
func SurfaceSegments(samples []ScoreSample, axisA, axisB int, constrained bool) ([][]SurfacePoint, error) {
	if err := ValidateAxis(axisA); err != nil {
		return nil, err
	}
	if err := ValidateAxis(axisB); err != nil {
		return nil, err
	}

	rows := SegmentByRow(samples)
	out := make([][]SurfacePoint, len(rows))
	for i, row := range rows {
		out[i] = make([]SurfacePoint, len(row))
		for j, s := range row {
			out[i][j] = SurfacePoint{
				A:     s.Offset.Vector[axisA],
				B:     s.Offset.Vector[axisB],
				Score: s.Value(constrained),
			}
		}
	}
	return out, nil
}
