package present

// HeatmapBucket is one interval of the fire heatmap
type HeatmapBucket struct {
	Label            string `json:"label"`
	IntervalTotal    int    `json:"intervalTotal"`
	WindowCumulative int    `json:"windowCumulative"`
	ActualTotal      int    `json:"actualTotal"`
}

// AggregateHeatmap fills ActualTotal for a windowed bucket sequence. The
// window only covers part of the session, so the fires before it are
// back-computed as total minus the window sum and accumulated forward.
// The input is not modified.
func AggregateHeatmap(buckets []HeatmapBucket, total int) []HeatmapBucket {
	out := make([]HeatmapBucket, len(buckets))
	copy(out, buckets)

	sum := 0
	for _, b := range out {
		sum += b.IntervalTotal
	}

	// a total older than the window it came with would push the baseline negative
	running := max(total-sum, 0)
	for i := range out {
		running += out[i].IntervalTotal
		out[i].ActualTotal = running
	}
	return out
}
