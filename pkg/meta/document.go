package meta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"sort"
	"strconv"

	"github.com/buger/jsonparser"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Document is the decoded metadata of one record: an insertion-ordered
// mapping whose values are nil, bool, json.Number, string, []any or nested
// *Document values. Documents decoded from storage only ever contain those
// types; values written by callers are stored as given until the next
// round trip through storage normalizes them.
//
// A Document is not safe for concurrent mutation.
type Document struct {
	entries *orderedmap.OrderedMap[string, any]
}

// NewDocument returns an empty Document.
func NewDocument() *Document {
	return &Document{entries: orderedmap.New[string, any]()}
}

// FromMap converts a plain map into a Document. Keys are inserted in sorted
// order since Go maps carry none; nested map[string]any values are converted
// recursively.
func FromMap(m map[string]any) *Document {
	doc := NewDocument()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		doc.Set(k, fromPlain(m[k]))
	}
	return doc
}

func fromPlain(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return FromMap(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = fromPlain(val[i])
		}
		return out
	default:
		return v
	}
}

func (d *Document) ensure() {
	if d.entries == nil {
		d.entries = orderedmap.New[string, any]()
	}
}

// Len returns the number of top-level keys.
func (d *Document) Len() int {
	if d == nil || d.entries == nil {
		return 0
	}
	return d.entries.Len()
}

// Get returns the value stored under the top-level key.
func (d *Document) Get(key string) (any, bool) {
	if d == nil || d.entries == nil {
		return nil, false
	}
	return d.entries.Get(key)
}

// Set stores value under key. Existing keys keep their position; new keys are
// appended. Set returns d so literal documents can be built inline.
func (d *Document) Set(key string, value any) *Document {
	d.ensure()
	d.entries.Set(key, value)
	return d
}

// Delete removes key, reporting whether it was present.
func (d *Document) Delete(key string) bool {
	if d == nil || d.entries == nil {
		return false
	}
	_, ok := d.entries.Delete(key)
	return ok
}

// Keys returns the top-level keys in insertion order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, d.Len())
	for k := range d.All() {
		keys = append(keys, k)
	}
	return keys
}

// All yields the top-level entries in insertion order.
func (d *Document) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if d == nil || d.entries == nil {
			return
		}
		for pair := d.entries.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}

// Map converts the Document into plain Go maps, recursively. Ordering is
// lost.
func (d *Document) Map() map[string]any {
	out := make(map[string]any, d.Len())
	for k, v := range d.All() {
		out[k] = toPlain(v)
	}
	return out
}

func toPlain(v any) any {
	switch val := v.(type) {
	case *Document:
		return val.Map()
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = toPlain(val[i])
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of the Document structure. Scalar values are
// shared.
func (d *Document) Clone() *Document {
	out := NewDocument()
	for k, v := range d.All() {
		out.Set(k, cloneValue(v))
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *Document:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return v
	}
}

// MarshalJSON encodes the Document as a JSON object preserving key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil || d.entries == nil || d.entries.Len() == 0 {
		return []byte("{}"), nil
	}
	return d.entries.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object into d, replacing its content.
func (d *Document) UnmarshalJSON(data []byte) error {
	parsed, err := ParseDocument(data)
	if err != nil {
		return err
	}
	d.entries = parsed.entries
	return nil
}

// String returns the JSON encoding of the Document, or an error marker when
// it holds a value that cannot be encoded.
func (d *Document) String() string {
	raw, err := d.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid document: %v>", err)
	}
	return string(raw)
}

// ParseDocument decodes raw JSON into a Document. The JSON literal null
// yields an empty Document and a top-level array is read as a mapping keyed
// by decimal index. Anything else that is not a JSON object fails with a
// *DeserializationError.
func ParseDocument(raw []byte) (*Document, error) {
	if !json.Valid(raw) {
		return nil, &DeserializationError{Raw: string(raw), Err: fmt.Errorf("malformed JSON")}
	}
	trimmed := bytes.TrimSpace(raw)
	value, dataType, _, err := jsonparser.Get(trimmed)
	if err != nil {
		return nil, &DeserializationError{Raw: string(raw), Err: err}
	}
	switch dataType {
	case jsonparser.Null:
		return NewDocument(), nil
	case jsonparser.Object:
		doc, err := decodeObject(value)
		if err != nil {
			return nil, &DeserializationError{Raw: string(raw), Err: err}
		}
		return doc, nil
	case jsonparser.Array:
		items, err := decodeArray(value)
		if err != nil {
			return nil, &DeserializationError{Raw: string(raw), Err: err}
		}
		return listToDocument(items), nil
	default:
		return nil, &DeserializationError{Raw: string(raw), Err: fmt.Errorf("top-level %s is not a mapping", dataType)}
	}
}

// ParseValue decodes any JSON value. Objects become *Document so nested key
// order survives, numbers become json.Number.
func ParseValue(raw []byte) (any, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("meta: malformed JSON value %q", raw)
	}
	value, dataType, _, err := jsonparser.Get(bytes.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("meta: parse value: %w", err)
	}
	return decodeValue(value, dataType)
}

func decodeObject(data []byte) (*Document, error) {
	doc := NewDocument()
	err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		// ObjectEach hands over keys already unescaped.
		name := string(key)
		decoded, err := decodeValue(value, dataType)
		if err != nil {
			return fmt.Errorf("key %q: %w", name, err)
		}
		doc.Set(name, decoded)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// listToDocument keys the items of a list by decimal index.
func listToDocument(items []any) *Document {
	doc := NewDocument()
	for i, item := range items {
		doc.Set(strconv.Itoa(i), item)
	}
	return doc
}

func decodeArray(data []byte) ([]any, error) {
	items := []any{}
	if bytes.Equal(bytes.Join(bytes.Fields(data), nil), []byte("[]")) {
		return items, nil
	}
	var firstErr error
	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if firstErr != nil {
			return
		}
		if err != nil {
			firstErr = err
			return
		}
		decoded, err := decodeValue(value, dataType)
		if err != nil {
			firstErr = err
			return
		}
		items = append(items, decoded)
	})
	if err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return items, nil
}

func decodeValue(value []byte, dataType jsonparser.ValueType) (any, error) {
	switch dataType {
	case jsonparser.Object:
		return decodeObject(value)
	case jsonparser.Array:
		return decodeArray(value)
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Number:
		return json.Number(string(value)), nil
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(value)
	case jsonparser.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported value %q", value)
	}
}
