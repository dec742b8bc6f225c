package availability

import "time"

// Split cuts a free interval into consecutive slots of length d. A trailing
// remainder shorter than d is dropped.
func Split(iv Interval, d time.Duration) []Interval {
	if d <= 0 {
		return nil
	}
	var out []Interval
	for s := iv.Start; !s.Add(d).After(iv.End); s = s.Add(d) {
		out = append(out, Interval{Start: s, End: s.Add(d)})
	}
	return out
}
