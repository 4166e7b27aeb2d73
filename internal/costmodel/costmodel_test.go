package costmodel_test

import (
	"testing"
	"time"

	"github.com/devrev/designer/internal/costmodel"
	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/model"
	"github.com/devrev/designer/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func testConfig(nodes, intervals int) model.ResourceConfig {
	return model.ResourceConfig{
		MaxMemoryBytes:  1 << 30,
		SkewIntervals:   intervals,
		AddressSizeBits: 64,
		NodeCount:       nodes,
		Weights:         model.EqualWeights(),
	}
}

func collection(name string, tuples, avgSize int64, cardinalities map[string]int64) *model.CollectionStat {
	cs := model.NewCollectionStat(name)
	cs.TupleCount = tuples
	cs.AvgDocSize = avgSize
	cs.Fields[model.IDField] = &model.FieldStat{Type: model.FieldTypeOther, Cardinality: tuples}
	for field, card := range cardinalities {
		cs.Fields[field] = &model.FieldStat{Type: model.FieldTypeInt, Cardinality: card}
	}
	cs.UpdateSelectivity()
	return cs
}

// testStats has A{x: 50 distinct, y: 10, flag: 1} with 100 documents and B with 20.
func testStats() model.Statistics {
	return model.Statistics{
		"A": collection("A", 100, 100, map[string]int64{"x": 50, "y": 10, "flag": 1}),
		"B": collection("B", 20, 50, map[string]int64{"a_id": 20}),
	}
}

func eqQuery(coll, field string, value interface{}) *model.Operation {
	return &model.Operation{
		Collection:   coll,
		Type:         model.OpTypeQuery,
		Predicates:   map[string]model.PredicateType{field: model.PredicateEquality},
		QueryContent: []bson.D{{{Key: field, Value: value}}},
	}
}

func scan(coll string) *model.Operation {
	return &model.Operation{Collection: coll, Type: model.OpTypeQuery, QueryContent: []bson.D{{}}}
}

func newModel(t *testing.T, stats model.Statistics, cfg model.ResourceConfig, segments ...[]*model.Operation) *costmodel.CostModel {
	t.Helper()
	m, err := costmodel.New(stats, segments, cfg, costmodel.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	return m
}

func TestEndToEnd_ShardKeyOnFilteredFieldHalvesBroadcasts(t *testing.T) {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	session := model.Session{StartTime: base, EndTime: base.Add(200 * time.Second)}
	for i := 0; i < 100; i++ {
		op := *eqQuery("A", "x", int32(i%50))
		op.QueryTime = base.Add(time.Duration(2*i) * time.Second)
		op.RespTime = op.QueryTime
		session.Operations = append(session.Operations, op)

		bc := *scan("A")
		bc.QueryTime = base.Add(time.Duration(2*i+1) * time.Second)
		bc.RespTime = bc.QueryTime
		session.Operations = append(session.Operations, bc)
	}
	sessions := []model.Session{session}
	require.NoError(t, model.ValidateSessions(sessions))

	cfg := testConfig(2, 4)
	segments, err := workload.Segment(sessions, cfg.SkewIntervals)
	require.NoError(t, err)

	byX, err := costmodel.Evaluate(model.NewDesign().AddShardKey("A", []string{"x"}), testStats(), segments, cfg)
	require.NoError(t, err)
	byID, err := costmodel.Evaluate(model.NewDesign().AddShardKey("A", []string{"_id"}), testStats(), segments, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 1.5, byX.Network, 1e-9)
	assert.InDelta(t, 2.0, byID.Network, 1e-9)
	assert.Less(t, byX.Network, byID.Network)
	assert.Equal(t, byX.DiskBytes, byID.DiskBytes)
}

func TestNetworkCost_SingleNodeVersusBroadcast(t *testing.T) {
	ops := []*model.Operation{eqQuery("A", "y", int32(3))}
	m := newModel(t, testStats(), testConfig(4, 1), ops)

	targeted := m.NetworkCost(model.NewDesign().AddShardKey("A", []string{"y"}))
	unrelated := m.NetworkCost(model.NewDesign().AddShardKey("A", []string{"_id"}))

	assert.Equal(t, 1.0, targeted)
	assert.Equal(t, 4.0, unrelated)
	assert.Greater(t, unrelated, targeted)
}

func TestNetworkCost_Routing(t *testing.T) {
	both := &model.Operation{
		Collection: "A",
		Type:       model.OpTypeQuery,
		Predicates: map[string]model.PredicateType{
			"flag": model.PredicateEquality,
			"y":    model.PredicateEquality,
		},
		QueryContent: []bson.D{{{Key: "flag", Value: true}, {Key: "y", Value: int32(1)}}},
	}
	rangeOnX := &model.Operation{
		Collection:   "A",
		Type:         model.OpTypeQuery,
		Predicates:   map[string]model.PredicateType{"x": model.PredicateRange},
		QueryContent: []bson.D{{{Key: "x", Value: bson.D{{Key: "$gt", Value: 3}}}}},
	}
	insert := &model.Operation{
		Collection:   "A",
		Type:         model.OpTypeInsert,
		QueryContent: []bson.D{{{Key: "x", Value: int32(9)}, {Key: "y", Value: int32(1)}}},
	}
	batchInsert := &model.Operation{Collection: "A", Type: model.OpTypeInsert}
	for i := 0; i < 50; i++ {
		batchInsert.QueryContent = append(batchInsert.QueryContent, bson.D{{Key: "x", Value: int32(i)}})
	}
	sameKeyInsert := &model.Operation{
		Collection:   "A",
		Type:         model.OpTypeInsert,
		QueryContent: []bson.D{{{Key: "x", Value: int32(4)}}, {{Key: "x", Value: int32(4)}, {Key: "y", Value: int32(2)}}},
	}
	partialInsert := &model.Operation{
		Collection:   "A",
		Type:         model.OpTypeInsert,
		QueryContent: []bson.D{{{Key: "x", Value: int32(4)}}, {{Key: "y", Value: int32(2)}}},
	}
	valueless := &model.Operation{
		Collection:   "A",
		Type:         model.OpTypeQuery,
		Predicates:   map[string]model.PredicateType{"x": model.PredicateEquality},
		QueryContent: []bson.D{{}},
	}

	tests := []struct {
		name   string
		design *model.Design
		op     *model.Operation
		want   float64
	}{
		{"unsharded collection", model.NewDesign(), scan("A"), 1},
		{"key cardinality below node count", model.NewDesign().AddShardKey("A", []string{"flag"}), eqQuery("A", "flag", true), 3},
		{"compound key cardinality multiplies", model.NewDesign().AddShardKey("A", []string{"flag", "y"}), both, 1},
		{"compound key partially bound", model.NewDesign().AddShardKey("A", []string{"x", "y"}), eqQuery("A", "x", 1), 3},
		{"range predicate broadcasts", model.NewDesign().AddShardKey("A", []string{"x"}), rangeOnX, 3},
		{"insert binds its document", model.NewDesign().AddShardKey("A", []string{"x"}), insert, 1},
		{"insert missing key broadcasts", model.NewDesign().AddShardKey("A", []string{"_id"}), insert, 3},
		{"batch insert touches every node its documents hash to", model.NewDesign().AddShardKey("A", []string{"x"}), batchInsert, 3},
		{"batch insert with one key value", model.NewDesign().AddShardKey("A", []string{"x"}), sameKeyInsert, 1},
		{"batch insert document missing key broadcasts", model.NewDesign().AddShardKey("A", []string{"x"}), partialInsert, 3},
		{"equality predicate without value broadcasts", model.NewDesign().AddShardKey("A", []string{"x"}), valueless, 3},
		{"key field without statistics", model.NewDesign().AddShardKey("A", []string{"ghost"}), eqQuery("A", "ghost", 1), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newModel(t, testStats(), testConfig(3, 1), []*model.Operation{tt.op})
			assert.Equal(t, tt.want, m.NetworkCost(tt.design))
		})
	}
}

func TestNetworkCost_EmbeddedCollectionUsesRootShardKey(t *testing.T) {
	design := model.NewDesign().
		AddShardKey("A", []string{"x"}).
		SetDenormalizationParent("B", "A")

	ops := []*model.Operation{eqQuery("B", "x", 5), eqQuery("B", "a_id", 5)}
	m := newModel(t, testStats(), testConfig(2, 1), ops)

	// One targeted via A's key, one broadcast.
	assert.Equal(t, 1.5, m.NetworkCost(design))
}

func TestNetworkCost_WeightsReadsByResponseSize(t *testing.T) {
	bigRead := scan("A")
	bigRead.ResponseSize = 10000 // 3 messages
	write := &model.Operation{
		Collection:   "A",
		Type:         model.OpTypeUpdate,
		Predicates:   map[string]model.PredicateType{"x": model.PredicateEquality},
		QueryContent: []bson.D{{{Key: "x", Value: 4}}, {{Key: "$set", Value: bson.D{{Key: "y", Value: 2}}}}},
	}
	write.ResponseSize = 1 << 20

	m := newModel(t, testStats(), testConfig(2, 1), []*model.Operation{bigRead, write})
	design := model.NewDesign().AddShardKey("A", []string{"x"})

	// (3 messages × 2 nodes + 1 message × 1 node) / 4 messages
	assert.InDelta(t, 1.75, m.NetworkCost(design), 1e-9)
}

func TestIntervalLoad_BatchInsertLoadsEachTouchedNode(t *testing.T) {
	insert := &model.Operation{Collection: "A", Type: model.OpTypeInsert}
	for i := 0; i < 50; i++ {
		insert.QueryContent = append(insert.QueryContent, bson.D{{Key: "x", Value: int32(i)}})
	}
	m := newModel(t, testStats(), testConfig(3, 1), []*model.Operation{insert})
	design := model.NewDesign().AddShardKey("A", []string{"x"})

	assert.Equal(t, [][]int64{{1, 1, 1}}, m.IntervalLoad(design))
	assert.Equal(t, 0.0, m.SkewCost(design))
}

func TestNetworkCost_NormalizedByMessageWeight(t *testing.T) {
	bigRead := eqQuery("A", "x", int32(7))
	bigRead.ResponseSize = 40960 // 10 messages
	m := newModel(t, testStats(), testConfig(2, 1), []*model.Operation{bigRead, scan("A")})

	// (10 messages × 1 node + 1 message × 2 nodes) / 11 messages
	cost := m.NetworkCost(model.NewDesign().AddShardKey("A", []string{"x"}))
	assert.InDelta(t, 12.0/11.0, cost, 1e-9)
	assert.LessOrEqual(t, cost, 2.0)
}

func TestSkewCost(t *testing.T) {
	design := model.NewDesign().AddShardKey("A", []string{"x"})

	uniform := newModel(t, testStats(), testConfig(2, 2),
		[]*model.Operation{scan("A"), scan("A")},
		[]*model.Operation{scan("A")})
	assert.Equal(t, 0.0, uniform.SkewCost(design))

	var hot []*model.Operation
	for i := 0; i < 10; i++ {
		hot = append(hot, eqQuery("A", "x", 7))
	}
	hotSpot := newModel(t, testStats(), testConfig(2, 2), hot, []*model.Operation{scan("A")})
	assert.InDelta(t, 1.0, hotSpot.SkewCost(design), 1e-9)
	assert.Greater(t, hotSpot.SkewCost(design), uniform.SkewCost(design))

	load := hotSpot.IntervalLoad(design)
	require.Len(t, load, 2)
	assert.ElementsMatch(t, []int64{10, 0}, load[0])
	assert.Equal(t, []int64{1, 1}, load[1])
}

func TestSkewCost_UnshardedLivesOnFirstNode(t *testing.T) {
	m := newModel(t, testStats(), testConfig(3, 1), []*model.Operation{scan("A"), scan("B")})

	load := m.IntervalLoad(model.NewDesign())
	assert.Equal(t, [][]int64{{2, 0, 0}}, load)
	assert.Greater(t, m.SkewCost(model.NewDesign()), 0.0)
}

func TestEmptyWorkload(t *testing.T) {
	cfg := testConfig(4, 3)
	segments, err := workload.Segment(nil, cfg.SkewIntervals)
	require.NoError(t, err)

	m, err := costmodel.New(testStats(), segments, cfg)
	require.NoError(t, err)

	design := model.NewDesign().AddShardKey("A", []string{"x"})
	assert.Equal(t, 0.0, m.NetworkCost(design))
	assert.Equal(t, 0.0, m.SkewCost(design))
	assert.Equal(t, 0, m.OperationCount())
}

func TestDiskBytes(t *testing.T) {
	m := newModel(t, testStats(), testConfig(2, 1), nil)

	plain := model.NewDesign()
	assert.Equal(t, int64(100*100+20*50), m.DiskBytes(plain))

	indexed := model.NewDesign().
		AddIndex("A", []string{"x"}).
		AddIndex("A", []string{"x"}).
		AddIndex("B", []string{"a_id"})
	// One pointer per document per distinct index, 8 bytes each.
	assert.Equal(t, int64(100*100+20*50+100*8+20*8), m.DiskBytes(indexed))
}

func TestDiskBytes_MonotonicInSizeAndCount(t *testing.T) {
	design := model.NewDesign()
	footprint := func(tuples, avg int64) int64 {
		stats := model.Statistics{"A": collection("A", tuples, avg, nil)}
		return newModel(t, stats, testConfig(2, 1), nil).DiskBytes(design)
	}

	assert.Less(t, footprint(100, 10), footprint(101, 10))
	assert.Less(t, footprint(100, 10), footprint(100, 11))
	assert.Equal(t, int64(0), footprint(0, 10))
}

func TestDiskBytes_DenormalizationRoundTrip(t *testing.T) {
	// One child document per parent.
	stats := model.Statistics{
		"users":     collection("users", 100, 200, nil),
		"addresses": collection("addresses", 100, 64, nil),
	}
	m := newModel(t, stats, testConfig(2, 1), nil)

	standalone := m.DiskBytes(model.NewDesign())
	embedded := m.DiskBytes(model.NewDesign().SetDenormalizationParent("addresses", "users"))
	assert.Equal(t, standalone, embedded)

	// Several children per parent are stored inside the parent's documents.
	stats["addresses"] = collection("addresses", 300, 64, nil)
	m = newModel(t, stats, testConfig(2, 1), nil)
	assert.Equal(t, int64(100*200+300*64), m.DiskBytes(model.NewDesign().SetDenormalizationParent("addresses", "users")))
}

func TestDiskCost_Infeasible(t *testing.T) {
	cfg := testConfig(2, 1)
	cfg.MaxMemoryBytes = 5500
	m := newModel(t, testStats(), cfg, nil)
	design := model.NewDesign()

	assert.InDelta(t, costmodel.InfeasiblePenalty+2.0, m.DiskCost(design), 1e-9)
	err := m.Feasible(design)
	require.Error(t, err)
	assert.True(t, errors.IsInfeasibleDesign(err))

	res, err := m.Evaluate(design)
	require.NoError(t, err)
	assert.True(t, res.Infeasible)

	cfg.MaxMemoryBytes = 22000
	roomy := newModel(t, testStats(), cfg, nil)
	assert.NoError(t, roomy.Feasible(design))
	assert.InDelta(t, 0.5, roomy.DiskCost(design), 1e-9)
	assert.Less(t, roomy.DiskCost(design), m.DiskCost(design))
}

func TestOverallCost_NonDecreasingInEachTerm(t *testing.T) {
	cfg := testConfig(2, 1)
	cfg.Weights = model.Weights{Network: 2, Skew: 0, Disk: 0.5}
	m := newModel(t, testStats(), cfg, nil)

	base := m.OverallCost(1, 1, 1)
	assert.Equal(t, 2.0+0.5, base)
	assert.Greater(t, m.OverallCost(1.5, 1, 1), base)
	assert.GreaterOrEqual(t, m.OverallCost(1, 3, 1), base)
	assert.Greater(t, m.OverallCost(1, 1, 2), base)
}

func TestEvaluate(t *testing.T) {
	ops := []*model.Operation{eqQuery("A", "x", 1), scan("B")}
	m := newModel(t, testStats(), testConfig(2, 1), ops)
	design := model.NewDesign().AddShardKey("A", []string{"x"}).AddIndex("B", []string{"a_id"})

	first, err := m.Evaluate(design)
	require.NoError(t, err)
	second, err := m.Evaluate(design)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 1.0, first.Network)
	assert.Equal(t, first.Network+first.Skew+first.Disk, first.Overall)
	assert.False(t, first.Infeasible)

	_, err = m.Evaluate(model.NewDesign().SetDenormalizationParent("A", "A"))
	assert.Equal(t, errors.ErrCodeInvalidDesign, errors.GetCode(err))

	_, err = m.Evaluate(nil)
	assert.Equal(t, errors.ErrCodeInvalidDesign, errors.GetCode(err))
}

func TestNew_Errors(t *testing.T) {
	_, err := costmodel.New(testStats(), [][]*model.Operation{nil}, testConfig(0, 1))
	assert.True(t, errors.IsInvalidConfiguration(err))

	_, err = costmodel.New(testStats(), [][]*model.Operation{{scan("ghost")}}, testConfig(2, 1))
	assert.True(t, errors.IsUnknownCollection(err))

	_, err = costmodel.New(testStats(), [][]*model.Operation{nil, nil}, testConfig(2, 1))
	assert.True(t, errors.IsInvalidConfiguration(err))
}
