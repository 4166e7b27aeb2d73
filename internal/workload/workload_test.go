package workload_test

import (
	"testing"
	"time"

	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
	"github.com/devrev/designer/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time {
	return base.Add(d)
}

func queryAt(d time.Duration) model.Operation {
	return model.Operation{
		Collection: "c",
		Type:       model.OpTypeQuery,
		QueryTime:  at(d),
		RespTime:   at(d),
	}
}

func sizes(segments [][]*model.Operation) []int {
	out := make([]int, len(segments))
	for i, s := range segments {
		out[i] = len(s)
	}
	return out
}

func TestSegment_RejectsNonPositiveIntervals(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := workload.Segment(nil, n)
		assert.True(t, errors.IsInvalidConfiguration(err))
	}
}

func TestSegment_EmptyTrace(t *testing.T) {
	segments, err := workload.Segment(nil, 4)
	require.NoError(t, err)
	require.Len(t, segments, 4)
	for _, s := range segments {
		assert.Empty(t, s)
	}
}

func TestSegment_Boundaries(t *testing.T) {
	sessions := []model.Session{{
		StartTime: at(0),
		EndTime:   at(10 * time.Second),
		// The 5s boundary instant belongs to the earlier interval.
		Operations: []model.Operation{
			queryAt(0),
			queryAt(time.Second),
			queryAt(5 * time.Second),
			queryAt(5*time.Second + time.Nanosecond),
			queryAt(10 * time.Second),
		},
	}}

	segments, err := workload.Segment(sessions, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, sizes(segments))
	assert.Equal(t, at(5*time.Second), segments[0][2].QueryTime)
	assert.Equal(t, at(5*time.Second+time.Nanosecond), segments[1][0].QueryTime)
}

func TestSegment_EveryOperationExactlyOnce(t *testing.T) {
	var sessions []model.Session
	for s := 0; s < 3; s++ {
		session := model.Session{
			SessionID: int64(s),
			StartTime: at(time.Duration(s) * time.Second),
			EndTime:   at(time.Duration(s)*time.Second + 7*time.Second),
		}
		for i := 0; i < 7; i++ {
			session.Operations = append(session.Operations,
				queryAt(time.Duration(s)*time.Second+time.Duration(i)*time.Second+333*time.Millisecond))
		}
		sessions = append(sessions, session)
	}

	segments, err := workload.Segment(sessions, 3)
	require.NoError(t, err)

	seen := make(map[*model.Operation]int)
	for i, segment := range segments {
		for _, op := range segment {
			seen[op]++
			bounds, err := workload.Boundaries(sessions, 3)
			require.NoError(t, err)
			if i > 0 {
				assert.True(t, op.QueryTime.After(bounds[i]))
			}
			assert.False(t, op.QueryTime.After(bounds[i+1]))
		}
	}
	assert.Len(t, seen, model.OperationCount(sessions))
	for _, count := range seen {
		assert.Equal(t, 1, count)
	}
}

func TestSegment_ZeroLengthSpan(t *testing.T) {
	sessions := []model.Session{{
		StartTime:  at(0),
		EndTime:    at(0),
		Operations: []model.Operation{queryAt(0), queryAt(0)},
	}}

	segments, err := workload.Segment(sessions, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 0, 0, 0}, sizes(segments))
}

func TestSegment_UnevenSpanUsesExactArithmetic(t *testing.T) {
	// 10ns span split in 3: boundaries at 10/3 and 20/3.
	sessions := []model.Session{{
		StartTime: at(0),
		EndTime:   at(10),
		Operations: []model.Operation{
			queryAt(3), queryAt(4), queryAt(6), queryAt(7), queryAt(10),
		},
	}}

	segments, err := workload.Segment(sessions, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, sizes(segments))
}

func TestBoundaries(t *testing.T) {
	sessions := []model.Session{{StartTime: at(0), EndTime: at(9 * time.Second)}}

	bounds, err := workload.Boundaries(sessions, 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(0), at(3 * time.Second), at(6 * time.Second), at(9 * time.Second)}, bounds)

	start, end, ok := workload.Span(sessions)
	assert.True(t, ok)
	assert.Equal(t, at(0), start)
	assert.Equal(t, at(9*time.Second), end)
}

func TestQueryClassifier(t *testing.T) {
	byUser := func(user string) *model.Operation {
		return &model.Operation{
			Collection:   "orders",
			Type:         model.OpTypeQuery,
			Predicates:   map[string]model.PredicateType{"user": model.PredicateEquality},
			QueryContent: []bson.D{{{Key: "user", Value: user}}},
		}
	}
	byRange := &model.Operation{
		Collection:   "orders",
		Type:         model.OpTypeQuery,
		Predicates:   map[string]model.PredicateType{"user": model.PredicateRange},
		QueryContent: []bson.D{{{Key: "user", Value: bson.D{{Key: "$gt", Value: "m"}}}}},
	}
	insert := &model.Operation{
		Collection:   "orders",
		Type:         model.OpTypeInsert,
		QueryContent: []bson.D{{{Key: "user", Value: "u9"}}},
	}

	c := workload.NewQueryClassifier()
	first := c.Add(byUser("u1"))
	assert.Equal(t, first, c.Add(byUser("u2")), "values do not change the class")
	assert.NotEqual(t, first, c.Add(byRange), "predicate kind changes the class")
	assert.NotEqual(t, first, c.Add(insert), "operation type changes the class")
	assert.Equal(t, first, workload.ClassID(byUser("u3")))

	hist := c.Histogram()
	require.Len(t, hist, 3)
	assert.Equal(t, int64(4), c.Total())
	assert.Equal(t, first, hist[0].ID)
	assert.Equal(t, int64(2), hist[0].Count)
	assert.Equal(t, []string{"user=eq"}, hist[0].Fields)
	assert.Equal(t, model.OpTypeInsert, hist[1].Type)
	assert.Equal(t, []string{"user=w"}, hist[1].Fields)
}
