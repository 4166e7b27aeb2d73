package workload

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/devrev/designer/internal/model"
)

// writtenField marks a field an operation writes rather than filters on
const writtenField = "w"

// QueryClass groups operations with the same shape: collection, type and the set
// of fields referenced with their predicate kinds. Literal values are ignored.
type QueryClass struct {
	ID         uint64       `json:"id" yaml:"id"`
	Collection string       `json:"collection" yaml:"collection"`
	Type       model.OpType `json:"type" yaml:"type"`
	Fields     []string     `json:"fields" yaml:"fields"`
	Count      int64        `json:"count" yaml:"count"`
}

// QueryClassifier assigns query class ids and keeps a histogram of how often
// each class occurs. Not safe for concurrent use.
type QueryClassifier struct {
	classes map[uint64]*QueryClass
	total   int64
}

// NewQueryClassifier creates an empty classifier
func NewQueryClassifier() *QueryClassifier {
	return &QueryClassifier{classes: make(map[uint64]*QueryClass)}
}

// shape renders the value-free signature of an operation
func shape(op *model.Operation) []string {
	fields := op.ReferencedFields()
	sig := make([]string, 0, len(fields))
	for _, field := range fields {
		kind := string(op.Predicates[field])
		if kind == "" {
			kind = writtenField
		}
		sig = append(sig, field+"="+kind)
	}
	return sig
}

// ClassID hashes the shape of op into a stable query class id
func ClassID(op *model.Operation) uint64 {
	return classID(op, shape(op))
}

func classID(op *model.Operation, sig []string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(op.Collection)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(string(op.Type))
	for _, part := range sig {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(part)
	}
	return d.Sum64()
}

// Add classifies op, counts it and returns its class id
func (c *QueryClassifier) Add(op *model.Operation) uint64 {
	sig := shape(op)
	id := classID(op, sig)
	class, ok := c.classes[id]
	if !ok {
		class = &QueryClass{
			ID:         id,
			Collection: op.Collection,
			Type:       op.Type,
			Fields:     sig,
		}
		c.classes[id] = class
	}
	class.Count++
	c.total++
	return id
}

// AddAll classifies every operation of the trace
func (c *QueryClassifier) AddAll(sessions []model.Session) {
	for _, op := range model.Flatten(sessions) {
		c.Add(op)
	}
}

// Total returns the number of operations classified
func (c *QueryClassifier) Total() int64 {
	return c.total
}

// Histogram returns a copy of every class, most frequent first. Ties are broken by
// collection, type and shape so the order is stable.
func (c *QueryClassifier) Histogram() []QueryClass {
	out := make([]QueryClass, 0, len(c.classes))
	for _, class := range c.classes {
		cp := *class
		cp.Fields = append([]string(nil), class.Fields...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Collection != b.Collection {
			return a.Collection < b.Collection
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return strings.Join(a.Fields, ",") < strings.Join(b.Fields, ",")
	})
	return out
}
