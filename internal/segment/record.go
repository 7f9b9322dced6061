package segment

import "math"

// Record is the wire shape exchanged with the watched-segments history
// endpoint.
type Record struct {
	VideoStartTime float64 `json:"video_start_time"`
	VideoEndTime   float64 `json:"video_end_time"`
	Count          int     `json:"count,omitempty"`
}

// FromRecords rounds times to whole seconds and treats a missing count as a
// single view.
func FromRecords(records []Record) []Segment {
	out := make([]Segment, 0, len(records))
	for _, r := range records {
		count := r.Count
		if count == 0 {
			count = 1
		}
		out = append(out, Segment{
			Start: math.Round(r.VideoStartTime),
			End:   math.Round(r.VideoEndTime),
			Count: count,
		})
	}
	return out
}

func ToRecords(segments []Segment) []Record {
	out := make([]Record, 0, len(segments))
	for _, s := range segments {
		out = append(out, Record{
			VideoStartTime: s.Start,
			VideoEndTime:   s.End,
			Count:          s.Count,
		})
	}
	return out
}
