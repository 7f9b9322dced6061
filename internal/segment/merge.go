package segment

import (
	"cmp"
	"slices"
	"sort"
)

func compareSegments(a, b Segment) int {
	if c := cmp.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(a.End, b.End); c != 0 {
		return c
	}
	return cmp.Compare(a.Count, b.Count)
}

func sorted(segments []Segment) []Segment {
	out := slices.Clone(segments)
	slices.SortFunc(out, compareSegments)
	return out
}

// MergeAdjoining returns the boolean coverage of segments: sorted,
// non-overlapping ranges where any two inputs separated by at most
// AdjoiningTolerance are joined. Counts are dropped.
func MergeAdjoining(segments []Segment) []Segment {
	merged := make([]Segment, 0, len(segments))
	for _, s := range sorted(segments) {
		if len(merged) == 0 {
			merged = append(merged, Segment{Start: s.Start, End: s.End})
			continue
		}
		prev := &merged[len(merged)-1]
		if s.Start > prev.End+AdjoiningTolerance {
			merged = append(merged, Segment{Start: s.Start, End: s.End})
			continue
		}
		prev.End = max(prev.End, s.End)
	}
	return merged
}

// MergeCounted partitions the union of segments so that every output range
// carries the total Count of the inputs covering it. Output ranges are
// sorted and disjoint; boundaries only ever come from input boundaries.
func MergeCounted(segments []Segment) []Segment {
	var acc []Segment
	for _, s := range sorted(segments) {
		acc = insertCounted(acc, s)
	}
	if acc == nil {
		return []Segment{}
	}
	return acc
}

// insertCounted adds s to an accumulator that is already sorted and
// disjoint. Inputs arrive in start order, so only entries ending at or after
// s.Start can overlap it; usually that is just the tail, but a split can
// leave a residual ahead of s, so the overlapped suffix is walked in order.
func insertCounted(acc []Segment, s Segment) []Segment {
	i := sort.Search(len(acc), func(i int) bool { return acc[i].End >= s.Start })
	if i == len(acc) {
		return append(acc, s)
	}

	out := make([]Segment, 0, len(acc)+3)
	out = append(out, acc[:i]...)

	cur, pending := s, true
	for _, e := range acc[i:] {
		if !pending {
			out = append(out, e)
			continue
		}
		if e.Start > cur.End {
			out = append(appendPiece(out, cur), e)
			pending = false
			continue
		}
		if cur.Start < e.Start {
			out = appendPiece(out, Segment{Start: cur.Start, End: e.Start - 1, Count: cur.Count})
			cur.Start = e.Start
		}
		var pieces []Segment
		pieces, cur, pending = overlay(e, cur)
		for _, p := range pieces {
			out = appendPiece(out, p)
		}
		pending = pending && cur.valid()
	}
	if pending {
		out = appendPiece(out, cur)
	}
	return out
}

// overlay splits an accumulated segment t against an overlapping new
// segment n with t.Start <= n.Start <= t.End. It returns the resolved pieces
// in start order and, when n runs past t, the residual of n still to place.
func overlay(t, n Segment) ([]Segment, Segment, bool) {
	sum := t.Count + n.Count
	switch {
	case n.Start == t.Start && n.End == t.End:
		return []Segment{{Start: t.Start, End: t.End, Count: sum}}, Segment{}, false

	case n.Start == t.Start && n.End < t.End:
		return []Segment{
			{Start: t.Start, End: n.End, Count: sum},
			{Start: n.End + 1, End: t.End, Count: t.Count},
		}, Segment{}, false

	case n.Start == t.Start:
		return []Segment{
			{Start: t.Start, End: t.End, Count: sum},
		}, Segment{Start: t.End + 1, End: n.End, Count: n.Count}, true

	case n.End == t.End:
		return []Segment{
			{Start: t.Start, End: n.Start - 1, Count: t.Count},
			{Start: n.Start, End: t.End, Count: sum},
		}, Segment{}, false

	case n.End < t.End:
		return []Segment{
			{Start: t.Start, End: n.Start - 1, Count: t.Count},
			{Start: n.Start, End: n.End, Count: sum},
			{Start: n.End + 1, End: t.End, Count: t.Count},
		}, Segment{}, false

	default:
		return []Segment{
			{Start: t.Start, End: n.Start - 1, Count: t.Count},
			{Start: n.Start, End: t.End, Count: sum},
		}, Segment{Start: t.End + 1, End: n.End, Count: n.Count}, true
	}
}

// appendPiece drops degenerate pieces, which only fractional input can
// produce.
func appendPiece(out []Segment, s Segment) []Segment {
	if !s.valid() {
		return out
	}
	return append(out, s)
}
