package model

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// OpType is the kind of a traced operation
type OpType string

const (
	OpTypeQuery  OpType = "$query"
	OpTypeInsert OpType = "$insert"
	OpTypeUpdate OpType = "$update"
	OpTypeDelete OpType = "$delete"
)

// IsRead reports whether the operation returns documents to the client
func (t OpType) IsRead() bool {
	return t == OpTypeQuery
}

// Valid reports whether t is one of the known operation types
func (t OpType) Valid() bool {
	switch t {
	case OpTypeQuery, OpTypeInsert, OpTypeUpdate, OpTypeDelete:
		return true
	}
	return false
}

// PredicateType is the kind of constraint an operation places on a field
type PredicateType string

const (
	PredicateEquality PredicateType = "eq"
	PredicateRange    PredicateType = "range"
	PredicateRegex    PredicateType = "regex"
)

// Operation is a single traced request against one collection.
//
// QueryContent layout depends on Type:
//   - $query, $delete: [criteria]
//   - $insert:         [doc, doc, ...]
//   - $update:         [criteria, update]
type Operation struct {
	Collection   string                   `bson:"collection" json:"collection"`
	Type         OpType                   `bson:"type" json:"type"`
	Predicates   map[string]PredicateType `bson:"predicates,omitempty" json:"predicates,omitempty"`
	QueryContent []bson.D                 `bson:"query_content,omitempty" json:"-"`
	ResponseSize int64                    `bson:"resp_size" json:"resp_size"`
	QueryTime    time.Time                `bson:"query_time" json:"query_time"`
	RespTime     time.Time                `bson:"resp_time" json:"resp_time"`
}

// criteria returns the document holding the operation's filter, if any
func (op *Operation) criteria() bson.D {
	if op.Type == OpTypeInsert || len(op.QueryContent) == 0 {
		return nil
	}
	doc := op.QueryContent[0]
	// Sniffed queries may wrap the filter as {$query: {...}, $orderby: {...}}.
	if wrapped, ok := lookup(doc, "$query"); ok {
		if inner, isDoc := wrapped.(bson.D); isDoc {
			return inner
		}
	}
	return doc
}

// ReferencedFields returns the sorted, de-duplicated set of fields the operation
// filters on or writes. Keys of update operators such as $set are descended into.
func (op *Operation) ReferencedFields() []string {
	seen := make(map[string]struct{})
	for field := range op.Predicates {
		seen[field] = struct{}{}
	}

	for _, doc := range op.QueryContent {
		collectKeys(doc, seen)
	}

	fields := make([]string, 0, len(seen))
	for field := range seen {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func collectKeys(doc bson.D, seen map[string]struct{}) {
	for _, elem := range doc {
		if strings.HasPrefix(elem.Key, "$") {
			if nested, ok := elem.Value.(bson.D); ok {
				collectKeys(nested, seen)
			}
			continue
		}
		seen[elem.Key] = struct{}{}
	}
}

// EqualityValue returns the value the operation binds field to, and whether the
// field is bound by equality at all. An insert binds field only when every
// inserted document carries the same value for it. An equality predicate
// recorded without its value binds nothing.
func (op *Operation) EqualityValue(field string) (interface{}, bool) {
	if op.Type == OpTypeInsert {
		if len(op.QueryContent) == 0 {
			return nil, false
		}
		first, ok := lookup(op.QueryContent[0], field)
		if !ok {
			return nil, false
		}
		for _, doc := range op.QueryContent[1:] {
			if v, ok := lookup(doc, field); !ok || !reflect.DeepEqual(v, first) {
				return nil, false
			}
		}
		return first, true
	}

	if op.Predicates[field] != PredicateEquality {
		return nil, false
	}
	value, ok := lookup(op.criteria(), field)
	if !ok {
		return nil, false
	}
	if nested, isDoc := value.(bson.D); isDoc {
		if eq, found := lookup(nested, "$eq"); found {
			return eq, true
		}
	}
	return value, true
}

// KeyBindings returns the values op binds to key, one tuple per document the
// operation targets: each inserted document for an insert, the criteria
// otherwise. It reports false when any tuple leaves a key field unbound.
func (op *Operation) KeyBindings(key []string) ([]bson.D, bool) {
	if op.Type != OpTypeInsert {
		tuple := make(bson.D, 0, len(key))
		for _, field := range key {
			value, ok := op.EqualityValue(field)
			if !ok {
				return nil, false
			}
			tuple = append(tuple, bson.E{Key: field, Value: value})
		}
		return []bson.D{tuple}, true
	}

	if len(op.QueryContent) == 0 {
		return nil, false
	}
	tuples := make([]bson.D, 0, len(op.QueryContent))
	for _, doc := range op.QueryContent {
		tuple := make(bson.D, 0, len(key))
		for _, field := range key {
			value, ok := lookup(doc, field)
			if !ok {
				return nil, false
			}
			tuple = append(tuple, bson.E{Key: field, Value: value})
		}
		tuples = append(tuples, tuple)
	}
	return tuples, true
}

// lookup resolves a possibly dotted path inside doc
func lookup(doc bson.D, path string) (interface{}, bool) {
	head, rest, dotted := strings.Cut(path, ".")
	for _, elem := range doc {
		if elem.Key == path {
			return elem.Value, true
		}
		if dotted && elem.Key == head {
			if nested, ok := elem.Value.(bson.D); ok {
				return lookup(nested, rest)
			}
		}
	}
	return nil, false
}

// Session is the ordered list of operations issued over one client connection
type Session struct {
	SessionID  int64       `bson:"session_id" json:"session_id"`
	ClientAddr string      `bson:"ip_client,omitempty" json:"ip_client,omitempty"`
	ServerAddr string      `bson:"ip_server,omitempty" json:"ip_server,omitempty"`
	StartTime  time.Time   `bson:"start_time" json:"start_time"`
	EndTime    time.Time   `bson:"end_time" json:"end_time"`
	Operations []Operation `bson:"operations" json:"operations"`
}

// OperationCount returns the number of operations across all sessions
func OperationCount(sessions []Session) int {
	total := 0
	for i := range sessions {
		total += len(sessions[i].Operations)
	}
	return total
}

// Flatten returns pointers to every operation in trace order
func Flatten(sessions []Session) []*Operation {
	ops := make([]*Operation, 0, OperationCount(sessions))
	for i := range sessions {
		for j := range sessions[i].Operations {
			ops = append(ops, &sessions[i].Operations[j])
		}
	}
	return ops
}
