package models

import (
	"math"
	"reflect"
	"sort"
)

// Format names the syntax of a record's metadata block.
type Format string

const (
	FormatNone Format = "none"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ContentRecord is a parsed content file: its metadata block plus the body
// text that follows it. Records are built once by the parser and are not
// modified afterwards; accessors hand out copies.
type ContentRecord struct {
	path     string
	format   Format
	keys     []string
	metadata map[string]any
	body     string
}

// NewContentRecord builds a record from parsed parts. keys gives the order in
// which metadata keys appeared; keys missing from it are appended sorted.
func NewContentRecord(path string, format Format, keys []string, metadata map[string]any, body string) *ContentRecord {
	if format == "" {
		format = FormatNone
	}
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = cloneValue(v)
	}

	ordered := make([]string, 0, len(meta))
	seen := make(map[string]bool, len(meta))
	for _, k := range keys {
		if _, ok := meta[k]; ok && !seen[k] {
			ordered = append(ordered, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range meta {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	ordered = append(ordered, rest...)

	return &ContentRecord{
		path:     path,
		format:   format,
		keys:     ordered,
		metadata: meta,
		body:     body,
	}
}

// Path is the slash separated source path, empty for in-memory input.
func (r *ContentRecord) Path() string { return r.path }

// Format reports which metadata block syntax the source used.
func (r *ContentRecord) Format() Format { return r.format }

// HasMetadata reports whether the source carried a metadata block at all.
func (r *ContentRecord) HasMetadata() bool { return r.format != FormatNone }

func (r *ContentRecord) Body() string { return r.body }

// Keys returns metadata keys in source order.
func (r *ContentRecord) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Metadata returns a deep copy of the metadata mapping. It is never nil.
func (r *ContentRecord) Metadata() map[string]any {
	out := make(map[string]any, len(r.metadata))
	for k, v := range r.metadata {
		out[k] = cloneValue(v)
	}
	return out
}

func (r *ContentRecord) Get(key string) (any, bool) {
	v, ok := r.metadata[key]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// String returns a string valued metadata entry.
func (r *ContentRecord) String(key string) (string, bool) {
	s, ok := r.metadata[key].(string)
	return s, ok
}

// Strings returns a sequence of strings such as authors. A single string
// value is returned as a one element slice.
func (r *ContentRecord) Strings(key string) ([]string, bool) {
	switch v := r.metadata[key].(type) {
	case string:
		return []string{v}, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Equal reports whether two records carry the same format, metadata and body.
// NaN values compare equal to each other.
func (r *ContentRecord) Equal(other *ContentRecord) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.format == other.format &&
		r.body == other.body &&
		valuesEqual(r.metadata, other.metadata)
}

func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !valuesEqual(v, w) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valuesEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	case float64:
		y, ok := b.(float64)
		return ok && (x == y || math.IsNaN(x) && math.IsNaN(y))
	}
	return reflect.DeepEqual(a, b)
}

// RecordView is the serialisable form of a record used for CLI output.
type RecordView struct {
	Path     string         `json:"path" yaml:"path"`
	Format   Format         `json:"format" yaml:"format"`
	Keys     []string       `json:"keys" yaml:"keys"`
	Metadata map[string]any `json:"metadata" yaml:"metadata"`
	Body     string         `json:"body" yaml:"body"`
}

func (r *ContentRecord) View() RecordView {
	return RecordView{
		Path:     r.path,
		Format:   r.format,
		Keys:     r.Keys(),
		Metadata: r.Metadata(),
		Body:     r.body,
	}
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = cloneValue(v[i])
		}
		return out
	default:
		return v
	}
}
