package workload

import (
	"math/bits"
	"time"

	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
)

// Span returns the time range covered by a trace: the earliest session start and
// the latest session end. ok is false for a trace without sessions.
func Span(sessions []model.Session) (start, end time.Time, ok bool) {
	for i := range sessions {
		s := &sessions[i]
		if !ok || s.StartTime.Before(start) {
			start = s.StartTime
		}
		if !ok || s.EndTime.After(end) {
			end = s.EndTime
		}
		ok = true
	}
	return start, end, ok
}

// Segment splits the trace into n equal time intervals and assigns every
// operation to the interval containing its query time. An instant on a boundary
// belongs to the earlier interval; the first interval is closed on both ends.
// Operations keep trace order within an interval.
func Segment(sessions []model.Session, n int) ([][]*model.Operation, error) {
	if n <= 0 {
		return nil, errors.InvalidConfiguration("skew_intervals", "must be positive")
	}

	segments := make([][]*model.Operation, n)
	start, end, ok := Span(sessions)
	if !ok {
		return segments, nil
	}

	span := end.Sub(start).Nanoseconds()
	for _, op := range model.Flatten(sessions) {
		idx := intervalIndex(op.QueryTime.Sub(start).Nanoseconds(), span, n)
		segments[idx] = append(segments[idx], op)
	}
	return segments, nil
}

// intervalIndex computes ceil(offset*n/span) - 1 clamped to [0, n), without
// overflow or floating point rounding.
func intervalIndex(offset, span int64, n int) int {
	if span <= 0 || offset <= 0 {
		return 0
	}
	if offset >= span {
		return n - 1
	}

	// offset < span, so hi < span and Div64 cannot overflow.
	hi, lo := bits.Mul64(uint64(offset), uint64(n))
	q, r := bits.Div64(hi, lo, uint64(span))
	if r > 0 {
		q++
	}
	idx := int(q) - 1
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

// Boundaries returns the n+1 instants delimiting the intervals of Segment.
// Interval i covers (b[i], b[i+1]], with b[0] included in interval 0.
func Boundaries(sessions []model.Session, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, errors.InvalidConfiguration("skew_intervals", "must be positive")
	}
	start, end, ok := Span(sessions)
	if !ok {
		return nil, nil
	}

	span := uint64(end.Sub(start).Nanoseconds())
	bounds := make([]time.Time, n+1)
	for i := 0; i <= n; i++ {
		hi, lo := bits.Mul64(span, uint64(i))
		q, _ := bits.Div64(hi, lo, uint64(n))
		bounds[i] = start.Add(time.Duration(q))
	}
	return bounds, nil
}
