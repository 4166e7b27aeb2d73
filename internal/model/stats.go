package model

import "sort"

// FieldType is the storage class used to size a field's values
type FieldType string

const (
	FieldTypeInt      FieldType = "int"
	FieldTypeString   FieldType = "str"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeFloat    FieldType = "float"
	FieldTypeOther    FieldType = "other"
)

// IDField is the name of the document identifier field
const IDField = "_id"

// FieldStat holds the derived statistics of one field of a collection
type FieldStat struct {
	Type          FieldType `json:"type" yaml:"type"`
	Cardinality   int64     `json:"cardinality" yaml:"cardinality"`
	Selectivity   float64   `json:"selectivity" yaml:"selectivity"`
	QueryUseCount int64     `json:"query_use_count" yaml:"query_use_count"`
}

// CollectionStat holds the statistics of one collection
type CollectionStat struct {
	Name              string                `json:"name" yaml:"name"`
	TupleCount        int64                 `json:"tuple_count" yaml:"tuple_count"`
	AvgDocSize        int64                 `json:"avg_doc_size" yaml:"avg_doc_size"`
	Fields            map[string]*FieldStat `json:"fields" yaml:"fields"`
	InterestingFields []string              `json:"interesting_fields,omitempty" yaml:"interesting_fields,omitempty"`
}

// NewCollectionStat creates an empty CollectionStat
func NewCollectionStat(name string) *CollectionStat {
	return &CollectionStat{
		Name:   name,
		Fields: make(map[string]*FieldStat),
	}
}

// Field returns the statistics of a field, if known
func (c *CollectionStat) Field(name string) (*FieldStat, bool) {
	fs, ok := c.Fields[name]
	return fs, ok
}

// FieldNames returns the known field names in sorted order
func (c *CollectionStat) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResetUsage clears the workload-derived counters so they can be recomputed
func (c *CollectionStat) ResetUsage() {
	for _, fs := range c.Fields {
		fs.QueryUseCount = 0
	}
	c.InterestingFields = nil
}

// UpdateSelectivity recomputes every field's selectivity from its cardinality
func (c *CollectionStat) UpdateSelectivity() {
	for _, fs := range c.Fields {
		fs.Selectivity = Selectivity(fs.Cardinality, c.TupleCount)
	}
}

// Selectivity is cardinality / tupleCount, clamped to [0,1], and 0 for an empty collection
func Selectivity(cardinality, tupleCount int64) float64 {
	if tupleCount <= 0 || cardinality <= 0 {
		return 0
	}
	if cardinality >= tupleCount {
		return 1
	}
	return float64(cardinality) / float64(tupleCount)
}

// Statistics maps collection name to its statistics
type Statistics map[string]*CollectionStat

// Names returns the collection names in sorted order
func (s Statistics) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
