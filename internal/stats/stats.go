package stats

import (
	"fmt"
	"math"

	"studentevals-backend/internal/evals"
)

// NoData is returned by every mean when there are no responses to average.
const NoData = -1.0

var (
	gpaWeights        = []float64{4, 3, 2, 1}
	shortHoursWeights = []float64{0, 5, 10, 15}
	longHoursWeights  = []float64{1, 3, 5, 7, 9, 11, 13, 15, 17, 19, 21}
)

// gpaBuckets is the number of letter grade buckets (A through F), P and NP
// come after and are not part of the gpa.
const gpaBuckets = 5

// WeightedMean computes sum(counts[i]*weights[i]) / sum(counts[i]) over the
// first `included` buckets. Buckets past len(weights) weigh 0.
func WeightedMean(counts []int32, weights []float64, included int) float64 {
	if included > len(counts) {
		included = len(counts)
	}
	var sum, total float64
	for i := 0; i < included; i++ {
		n := float64(counts[i])
		if i < len(weights) {
			sum += n * weights[i]
		}
		total += n
	}
	if total == 0 {
		return NoData
	}
	return sum / total
}

// GPA weighs A through D as 4 through 1, F counts towards the denominator
// only and pass/no pass is ignored.
func GPA(grades evals.Grades) float64 {
	return WeightedMean(grades[:], gpaWeights, gpaBuckets)
}

// HoursMean is the average weekly hours, the weights depend on the variant.
func HoursMean(hours evals.Hours) float64 {
	switch h := hours.(type) {
	case evals.ShortHours:
		return WeightedMean(h[:], shortHoursWeights, len(h))
	case evals.LongHours:
		return WeightedMean(h[:], longHoursWeights, len(h))
	}
	return NoData
}

// MeanHours is HoursMean for a raw distribution whose variant is not known yet.
func MeanHours(counts []int32) (float64, error) {
	hours, err := evals.NewHours(counts)
	if err != nil {
		return 0, err
	}
	return HoursMean(hours), nil
}

// Round2 rounds to 2 decimals for display, NoData is kept as is.
func Round2(v float64) float64 {
	if v == NoData {
		return NoData
	}
	return math.Round(v*100) / 100
}

// Format renders a statistic with 2 decimals.
func Format(v float64) string {
	return fmt.Sprintf("%.2f", Round2(v))
}
