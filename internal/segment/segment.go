// Package segment merges watched playback ranges and answers coverage
// questions about them.
//
// Times are seconds. The merge arithmetic treats endpoints as inclusive
// whole seconds, so fractional times must be rounded before merging; the
// wire decoder in this package does that.
package segment

import (
	"errors"
	"fmt"
	"math"
)

// AdjoiningTolerance is the largest gap, in seconds, between two segments
// that MergeAdjoining still treats as continuous.
const AdjoiningTolerance = 1

var ErrInvalidSegment = errors.New("invalid segment")

// Segment is a closed range [Start, End] of playback time. Count is the
// number of viewing events covering the range and is only meaningful for
// counted merges.
type Segment struct {
	Start float64
	End   float64
	Count int
}

func (s Segment) Duration() float64 {
	return s.End - s.Start
}

func (s Segment) valid() bool {
	return s.Start <= s.End
}

// Validate reports the first segment that breaks the input contract. It
// never corrects anything. When counted is true every segment must also
// carry a positive Count.
func Validate(segments []Segment, counted bool) error {
	for i, s := range segments {
		switch {
		case !finite(s.Start) || !finite(s.End):
			return fmt.Errorf("%w: segment %d has a non-finite time", ErrInvalidSegment, i)
		case s.Start < 0:
			return fmt.Errorf("%w: segment %d starts before zero", ErrInvalidSegment, i)
		case s.Start > s.End:
			return fmt.Errorf("%w: segment %d ends before it starts (%g > %g)", ErrInvalidSegment, i, s.Start, s.End)
		case counted && s.Count < 1:
			return fmt.Errorf("%w: segment %d has count %d", ErrInvalidSegment, i, s.Count)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
