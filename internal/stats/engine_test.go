package stats_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
	"github.com/devrev/designer/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func newEngine(t *testing.T, opts stats.Options) *stats.Engine {
	t.Helper()
	engine, err := stats.NewEngine(opts, zap.NewNop())
	require.NoError(t, err)
	return engine
}

func TestComputeStats_SizesAndCardinality(t *testing.T) {
	when := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	doc := func(a int32, s string) bson.D {
		return bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "a", Value: a},
			{Key: "s", Value: s},
			{Key: "f", Value: 1.5},
			{Key: "t", Value: when},
		}
	}
	samples := stats.Samples{
		"users": {doc(1, "abc"), doc(1, "abc"), doc(2, "abc"), doc(3, "xyz")},
	}

	result, err := stats.ComputeStats(samples, nil, 100)
	require.NoError(t, err)

	users := result["users"]
	require.NotNil(t, users)
	assert.Equal(t, int64(4), users.TupleCount)
	// _id 12 + int 4 + "abc" 3 + float 8 + datetime 8
	assert.Equal(t, int64(35), users.AvgDocSize)

	a := users.Fields["a"]
	assert.Equal(t, model.FieldTypeInt, a.Type)
	assert.Equal(t, int64(3), a.Cardinality)
	assert.InDelta(t, 0.75, a.Selectivity, 1e-9)

	assert.Equal(t, model.FieldTypeString, users.Fields["s"].Type)
	assert.Equal(t, int64(2), users.Fields["s"].Cardinality)
	assert.Equal(t, model.FieldTypeFloat, users.Fields["f"].Type)
	assert.Equal(t, model.FieldTypeDatetime, users.Fields["t"].Type)

	id := users.Fields["_id"]
	assert.Equal(t, int64(4), id.Cardinality)
	assert.Equal(t, 1.0, id.Selectivity)
}

func TestComputeStats_SampledAverageDocSize(t *testing.T) {
	rows := make([]bson.D, 1000)
	for i := range rows {
		rows[i] = bson.D{{Key: "_id", Value: int32(i)}, {Key: "x", Value: int32(i % 7)}}
	}

	result, err := stats.ComputeStats(stats.Samples{"points": rows}, nil, 10)
	require.NoError(t, err)

	points := result["points"]
	assert.Equal(t, int64(1000), points.TupleCount)
	// _id 12 + int 4, whatever share of rows was sampled
	assert.Equal(t, int64(16), points.AvgDocSize)
}

func TestComputeStats_EmptyCollection(t *testing.T) {
	result, err := stats.ComputeStats(stats.Samples{"empty": nil}, nil, 100)
	require.NoError(t, err)

	assert.Equal(t, int64(0), result["empty"].TupleCount)
	assert.Equal(t, int64(0), result["empty"].AvgDocSize)
	assert.Empty(t, result["empty"].Fields)
}

func TestComputeStats_QueryUseCount(t *testing.T) {
	samples := stats.Samples{
		"orders": {
			{{Key: "_id", Value: 1}, {Key: "customer", Value: "c1"}, {Key: "total", Value: 10.0}},
			{{Key: "_id", Value: 2}, {Key: "customer", Value: "c2"}, {Key: "total", Value: 12.0}},
		},
	}
	ops := []*model.Operation{
		{
			Collection:   "orders",
			Type:         model.OpTypeQuery,
			Predicates:   map[string]model.PredicateType{"customer": model.PredicateEquality},
			QueryContent: []bson.D{{{Key: "customer", Value: "c1"}}},
		},
		{
			Collection: "orders",
			Type:       model.OpTypeUpdate,
			QueryContent: []bson.D{
				{{Key: "_id", Value: 1}},
				{{Key: "$set", Value: bson.D{{Key: "total", Value: 11.0}, {Key: "unknown", Value: 1}}}},
			},
		},
		{
			Collection:   "orders",
			Type:         model.OpTypeInsert,
			QueryContent: []bson.D{{{Key: "_id", Value: 3}, {Key: "customer", Value: "c3"}}},
		},
	}

	result, err := stats.ComputeStats(samples, ops, 100)
	require.NoError(t, err)

	orders := result["orders"]
	assert.Equal(t, int64(2), orders.Fields["customer"].QueryUseCount, "counted once per operation")
	assert.Equal(t, int64(1), orders.Fields["total"].QueryUseCount)
	assert.Equal(t, int64(2), orders.Fields["_id"].QueryUseCount)
	_, tracked := orders.Fields["unknown"]
	assert.False(t, tracked, "fields absent from the dataset are ignored")

	// Recomputing must not double count.
	engine := newEngine(t, stats.Options{SampleRate: 100})
	require.NoError(t, engine.ProcessWorkload(result, ops))
	assert.Equal(t, int64(2), orders.Fields["customer"].QueryUseCount)
}

func TestComputeStats_UnknownCollection(t *testing.T) {
	samples := stats.Samples{"orders": {{{Key: "_id", Value: 1}}}}
	ops := []*model.Operation{{Collection: "ghosts", Type: model.OpTypeQuery}}

	_, err := stats.ComputeStats(samples, ops, 100)
	require.Error(t, err)
	assert.True(t, errors.IsUnknownCollection(err))
}

func TestNewEngine_RejectsSampleRate(t *testing.T) {
	for _, rate := range []int{0, -5, 101} {
		t.Run(fmt.Sprintf("rate=%d", rate), func(t *testing.T) {
			_, err := stats.NewEngine(stats.Options{SampleRate: rate}, nil)
			assert.True(t, errors.IsInvalidConfiguration(err))
		})
	}
}

func TestComputeStats_SamplingIsDeterministic(t *testing.T) {
	docs := make([]bson.D, 0, 1000)
	for i := 0; i < 1000; i++ {
		docs = append(docs, bson.D{{Key: "_id", Value: i}, {Key: "v", Value: int64(i % 97)}})
	}
	samples := stats.Samples{"c": docs}
	opts := stats.Options{SampleRate: 30, Seed: 42}

	first, err := newEngine(t, opts).ComputeStats(samples, nil)
	require.NoError(t, err)
	second, err := newEngine(t, opts).ComputeStats(samples, nil)
	require.NoError(t, err)

	assert.Equal(t, first["c"], second["c"])
	assert.Equal(t, int64(1000), first["c"].TupleCount, "every row counts towards tuple_count")
	assert.Less(t, first["c"].Fields["_id"].Cardinality, int64(1000), "only sampled rows are inspected")
}

func TestComputeStats_SketchFallback(t *testing.T) {
	docs := make([]bson.D, 0, 5000)
	for i := 0; i < 5000; i++ {
		docs = append(docs, bson.D{{Key: "k", Value: fmt.Sprintf("key-%d", i)}})
	}

	engine := newEngine(t, stats.Options{SampleRate: 100, ExactDistinctLimit: 100})
	result, err := engine.ComputeStats(stats.Samples{"c": docs}, nil)
	require.NoError(t, err)

	assert.InEpsilon(t, 5000, result["c"].Fields["k"].Cardinality, 0.05)
}

func TestInterestingFields(t *testing.T) {
	cs := model.NewCollectionStat("c")
	cs.TupleCount = 100
	cs.Fields["low"] = &model.FieldStat{Cardinality: 1, QueryUseCount: 5}
	cs.Fields["mid"] = &model.FieldStat{Cardinality: 40, QueryUseCount: 1}
	cs.Fields["high"] = &model.FieldStat{Cardinality: 90, QueryUseCount: 2}
	cs.Fields["unused"] = &model.FieldStat{Cardinality: 100}
	cs.UpdateSelectivity()

	assert.Equal(t, []string{"high", "mid"}, stats.InterestingFields(cs, 0.1))
}
