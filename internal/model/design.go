package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devrev/designer/internal/errors"
)

// Design is a candidate physical design proposed by a search algorithm.
// It is never mutated once handed to the cost model.
type Design struct {
	ShardKeys    map[string][]string   `json:"shard_keys,omitempty" yaml:"shard_keys,omitempty"`
	DenormParent map[string]string     `json:"denorm_parent,omitempty" yaml:"denorm_parent,omitempty"`
	Indexes      map[string][][]string `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// Candidate is a named design, as listed in a design file
type Candidate struct {
	Name   string `json:"name" yaml:"name"`
	Design Design `json:"design" yaml:",inline"`
}

// NewDesign creates an empty design
func NewDesign() *Design {
	return &Design{
		ShardKeys:    make(map[string][]string),
		DenormParent: make(map[string]string),
		Indexes:      make(map[string][][]string),
	}
}

// AddShardKey sets the shard key of a collection
func (d *Design) AddShardKey(collection string, fields []string) *Design {
	if d.ShardKeys == nil {
		d.ShardKeys = make(map[string][]string)
	}
	d.ShardKeys[collection] = append([]string(nil), fields...)
	return d
}

// SetDenormalizationParent embeds collection inside parent
func (d *Design) SetDenormalizationParent(collection, parent string) *Design {
	if d.DenormParent == nil {
		d.DenormParent = make(map[string]string)
	}
	d.DenormParent[collection] = parent
	return d
}

// AddIndex declares a secondary index on collection
func (d *Design) AddIndex(collection string, fields []string) *Design {
	if d.Indexes == nil {
		d.Indexes = make(map[string][][]string)
	}
	d.Indexes[collection] = append(d.Indexes[collection], append([]string(nil), fields...))
	return d
}

// IsDenormalized reports whether collection is embedded in a parent
func (d *Design) IsDenormalized(collection string) bool {
	return d.DenormParent[collection] != ""
}

// Root follows the denormalization links from collection to the collection that
// physically stores its documents. On a cyclic design, which Validate rejects,
// the walk stops after visiting every link once.
func (d *Design) Root(collection string) string {
	for hops := 0; hops <= len(d.DenormParent); hops++ {
		parent := d.DenormParent[collection]
		if parent == "" {
			return collection
		}
		collection = parent
	}
	return collection
}

// ShardKey returns the shard key that governs where collection's documents live,
// i.e. the shard key of its root.
func (d *Design) ShardKey(collection string) []string {
	return d.ShardKeys[d.Root(collection)]
}

// IndexKeys returns the distinct index key sequences declared on collection in
// a stable order.
func (d *Design) IndexKeys(collection string) [][]string {
	seen := make(map[string]struct{})
	keys := make([][]string, 0, len(d.Indexes[collection]))
	for _, fields := range d.Indexes[collection] {
		sig := strings.Join(fields, "\x00")
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		keys = append(keys, fields)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.Join(keys[i], "\x00") < strings.Join(keys[j], "\x00")
	})
	return keys
}

// Collections returns every collection the design mentions, sorted
func (d *Design) Collections() []string {
	seen := make(map[string]struct{})
	for c := range d.ShardKeys {
		seen[c] = struct{}{}
	}
	for c, p := range d.DenormParent {
		seen[c] = struct{}{}
		if p != "" {
			seen[p] = struct{}{}
		}
	}
	for c := range d.Indexes {
		seen[c] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for c := range seen {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}

// Validate rejects structurally invalid designs: denormalization must be at most
// one level deep (which also excludes cycles), an embedded collection has no
// shard key of its own, and key lists must be non-empty without duplicates.
func (d *Design) Validate() error {
	for _, child := range sortedKeys(d.DenormParent) {
		parent := d.DenormParent[child]
		if parent == "" {
			continue
		}
		if parent == child {
			return errors.InvalidDesign(child, "collection cannot be denormalized into itself")
		}
		if grand := d.DenormParent[parent]; grand != "" {
			return errors.InvalidDesign(child, fmt.Sprintf("parent '%s' is itself embedded in '%s'", parent, grand))
		}
		if len(d.ShardKeys[child]) > 0 {
			return errors.InvalidDesign(child, "embedded collection cannot have its own shard key")
		}
	}

	for _, collection := range sortedKeys(d.ShardKeys) {
		if err := validateKey(d.ShardKeys[collection]); err != nil {
			return errors.InvalidDesign(collection, "shard key "+err.Error())
		}
	}

	for _, collection := range sortedKeys(d.Indexes) {
		for _, fields := range d.Indexes[collection] {
			if err := validateKey(fields); err != nil {
				return errors.InvalidDesign(collection, "index "+err.Error())
			}
		}
	}
	return nil
}

func validateKey(fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("has no fields")
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f == "" {
			return fmt.Errorf("has an empty field name")
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("repeats field '%s'", f)
		}
		seen[f] = struct{}{}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
