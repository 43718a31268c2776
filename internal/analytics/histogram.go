package analytics

import (
	"math"
	"strconv"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

// BuildHistogram раскладывает значения по смежным полуоткрытым ячейкам одной целой
// ширины. Ширина подбирается так, чтобы ячеек было около maxBuckets; первая нижняя
// граница кратна ширине, последняя ячейка содержит максимум.
func BuildHistogram(values []float64, unit string, maxBuckets int) models.Histogram {
	h := models.Histogram{Unit: unit, Total: len(values), Buckets: []models.HistogramBucket{}}
	if len(values) == 0 {
		return h
	}
	if maxBuckets < 1 {
		maxBuckets = 1
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	span := math.Floor(hi) - math.Floor(lo) + 1
	width := math.Max(1, math.Ceil(span/float64(maxBuckets)))
	start := math.Floor(math.Floor(lo)/width) * width
	n := int(math.Floor((hi-start)/width)) + 1

	h.Width = width
	h.Buckets = make([]models.HistogramBucket, n)
	for i := range h.Buckets {
		lower := start + float64(i)*width
		upper := lower + width
		h.Buckets[i] = models.HistogramBucket{
			Label: bucketLabel(lower, upper, width, unit),
			Lower: lower,
			Upper: upper,
		}
	}
	for _, v := range values {
		i := int(math.Floor((v - start) / width))
		if i < 0 {
			i = 0
		}
		if i >= n {
			i = n - 1
		}
		h.Buckets[i].Count++
	}
	return h
}

// bucketLabel: "9d" для ширины 1, "10-14d" для более широких ячеек (включительно по целым).
func bucketLabel(lower, upper, width float64, unit string) string {
	l := strconv.FormatFloat(lower, 'f', -1, 64)
	if width == 1 {
		return l + unit
	}
	u := strconv.FormatFloat(upper-1, 'f', -1, 64)
	return l + "-" + u + unit
}
