package segment

import "math"

// Position places a segment on a bar as whole percentages of the total
// duration.
type Position struct {
	Left  int `json:"left"`
	Width int `json:"width"`
}

func Percent(t, total float64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Floor(t / total * 100))
}

func WidthPercent(duration, total float64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Ceil(duration / total * 100))
}

func Place(s Segment, total float64) Position {
	return Position{
		Left:  Percent(s.Start, total),
		Width: WidthPercent(s.Duration(), total),
	}
}
