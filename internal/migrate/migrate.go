// Package migrate upgrades stored story documents to the current schema.
//
// A Registry maps schema versions to transformations. Migrating a document
// stored at version v applies, in order, every transformation registered for
// v+1 up to the target version, then tags the document with the target.
// Versions without transformations pass through untouched.
package migrate

import (
	"fmt"
	"sort"
)

// Document is a decoded JSON story document.
type Document = map[string]any

// Transform upgrades a document by one schema step. It receives a private
// copy it may modify and must not rely on the document's version field.
type Transform func(Document) (Document, error)

// Error reports the transformation that failed. A document that failed to
// migrate must not be edited.
type Error struct {
	Version int
	Index   int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("migrate to version %d (step %d): %v", e.Version, e.Index, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Registry struct {
	steps map[int][]Transform
}

func NewRegistry() *Registry {
	return &Registry{steps: make(map[int][]Transform)}
}

// Register appends transformations for version. Transformations of one
// version run in registration order.
func (r *Registry) Register(version int, fns ...Transform) *Registry {
	r.steps[version] = append(r.steps[version], fns...)
	return r
}

// Current is the highest registered version.
func (r *Registry) Current() int {
	current := 0
	for version := range r.steps {
		if version > current {
			current = version
		}
	}
	return current
}

// Versions lists the registered versions in ascending order.
func (r *Registry) Versions() []int {
	versions := make([]int, 0, len(r.steps))
	for version := range r.steps {
		versions = append(versions, version)
	}
	sort.Ints(versions)
	return versions
}

// Migrate brings doc from version from to Current.
func (r *Registry) Migrate(doc Document, from int) (Document, error) {
	return r.MigrateTo(doc, from, r.Current())
}

// MigrateTo applies the transformations for from+1..to. The input document
// is not modified. When from is already at or past to the result is a copy
// of doc tagged with from.
func (r *Registry) MigrateTo(doc Document, from, to int) (Document, error) {
	out := Clone(doc)
	if out == nil {
		out = Document{}
	}
	if from >= to {
		out["version"] = from
		return out, nil
	}
	for version := from + 1; version <= to; version++ {
		for i, fn := range r.steps[version] {
			next, err := fn(out)
			if err != nil {
				return nil, &Error{Version: version, Index: i, Err: err}
			}
			out = next
		}
	}
	out["version"] = to
	return out, nil
}

// Clone deep-copies a decoded JSON value tree.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	return cloneValue(doc).(Document)
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[key] = cloneValue(value)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, value := range typed {
			out[i] = cloneValue(value)
		}
		return out
	default:
		return v
	}
}
