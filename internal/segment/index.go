package segment

import (
	"math"
	"sort"
)

const (
	// MinVisibleWidth is the narrowest rendered segment, in pixels.
	MinVisibleWidth = 4
	// MaxDisplayWidth bounds the bar width, and with it the bucket count.
	MaxDisplayWidth = 10000
)

// Index answers whether a range was watched in one continuous run. It is
// built once from a segment set and never updated; rebuild it when the set
// changes.
type Index struct {
	starts []float64
	reach  []float64
}

// BuildIndex maps every distinct start to the furthest end recorded for it.
// The input does not need to be merged.
func BuildIndex(segments []Segment) *Index {
	idx := &Index{}
	for _, s := range sorted(segments) {
		last := len(idx.starts) - 1
		if last >= 0 && idx.starts[last] == s.Start {
			idx.reach[last] = max(idx.reach[last], s.End)
			continue
		}
		idx.starts = append(idx.starts, s.Start)
		idx.reach = append(idx.reach, s.End)
	}
	return idx
}

func (idx *Index) Len() int {
	return len(idx.starts)
}

// HasWatchedEntireSegment reports whether the run anchored at the closest
// indexed start at or before start reaches end. Coverage assembled from
// several runs does not count.
func (idx *Index) HasWatchedEntireSegment(start, end float64) bool {
	i := sort.Search(len(idx.starts), func(i int) bool { return idx.starts[i] > start }) - 1
	if i < 0 {
		return false
	}
	return idx.reach[i] >= end
}

// VisibleSegments quantizes the watched timeline into buckets at least
// MinVisibleWidth pixels wide for a bar displayWidth pixels across, keeps
// the buckets watched in full and joins neighbours. Widths above
// MaxDisplayWidth are treated as MaxDisplayWidth; non-finite or non-positive
// arguments yield no segments.
func VisibleSegments(segments []Segment, maxDuration, displayWidth float64) []Segment {
	if !positiveFinite(displayWidth) || !positiveFinite(maxDuration) {
		return []Segment{}
	}
	displayWidth = math.Min(displayWidth, MaxDisplayWidth)

	minDuration := MinVisibleWidth * maxDuration / displayWidth
	if minDuration <= 0 {
		return []Segment{}
	}
	// maxDuration / minDuration, without the rounding of the quotient.
	buckets := int(math.Ceil(displayWidth / MinVisibleWidth))

	idx := BuildIndex(MergeAdjoining(segments))

	visible := make([]Segment, 0, buckets)
	for i := 0; i < buckets; i++ {
		start := float64(i) * minDuration
		end := math.Min(start+minDuration, maxDuration)
		if idx.HasWatchedEntireSegment(start, end) {
			visible = append(visible, Segment{Start: start, End: end})
		}
	}
	return MergeAdjoining(visible)
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// WatchedSeconds is the length of the boolean coverage of segments.
func WatchedSeconds(segments []Segment) float64 {
	var total float64
	for _, s := range MergeAdjoining(segments) {
		total += s.Duration()
	}
	return total
}

// Completed reports whether one watched run covers the whole video, allowing
// the final second to be missed.
func Completed(idx *Index, duration float64) bool {
	if duration <= 0 {
		return false
	}
	return idx.HasWatchedEntireSegment(0, duration-AdjoiningTolerance)
}
