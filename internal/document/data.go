package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Shape tags the structure of parsed data. It is decided once at parse time.
type Shape string

const (
	// ShapeRecords is an array whose elements are all objects.
	ShapeRecords Shape = "records"
	// ShapeLines is an array holding at least one non-object element.
	ShapeLines Shape = "lines"
	// ShapeObject is a single JSON object.
	ShapeObject Shape = "object"
	// ShapePrimitive is a scalar wrapped as {"value": <scalar>}.
	ShapePrimitive Shape = "primitive"
)

// Data is the parsed content of a document: a shape tag plus its compact JSON encoding.
type Data struct {
	Shape Shape
	Raw   json.RawMessage
}

// NewData encodes v as compact JSON under the given shape.
func NewData(shape Shape, v any) (Data, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Data{}, fmt.Errorf("encode %s data: %w", shape, err)
	}
	return Data{Shape: shape, Raw: raw}, nil
}

// DataFromJSON classifies an arbitrary JSON document. Scalars are wrapped as {"value": ...}.
func DataFromJSON(raw []byte) (Data, error) {
	raw = bytes.TrimSpace(raw)
	if !gjson.ValidBytes(raw) {
		return Data{}, errors.New("invalid JSON")
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return Data{}, err
	}
	res := gjson.ParseBytes(compact.Bytes())
	switch {
	case res.IsArray():
		shape := ShapeRecords
		res.ForEach(func(_, v gjson.Result) bool {
			if !v.IsObject() {
				shape = ShapeLines
				return false
			}
			return true
		})
		return Data{Shape: shape, Raw: compact.Bytes()}, nil
	case res.IsObject():
		return Data{Shape: ShapeObject, Raw: compact.Bytes()}, nil
	default:
		wrapped := Record{{Name: "value", Value: json.RawMessage(compact.Bytes())}}
		return NewData(ShapePrimitive, wrapped)
	}
}

// Len returns the number of top-level elements: array length, or 1 for objects and primitives.
func (d Data) Len() int {
	switch d.Shape {
	case ShapeRecords, ShapeLines:
		return int(gjson.GetBytes(d.Raw, "#").Int())
	case ShapeObject, ShapePrimitive:
		return 1
	}
	return 0
}

// Keys returns the keys of the first record (records) or of the object itself (object, primitive).
func (d Data) Keys() []string {
	var target gjson.Result
	root := gjson.ParseBytes(d.Raw)
	switch d.Shape {
	case ShapeRecords, ShapeLines:
		target = root.Get("0")
	default:
		target = root
	}
	return ObjectKeys(target)
}

// ObjectKeys lists the distinct keys of a JSON object in document order.
func ObjectKeys(obj gjson.Result) []string {
	keys := []string{}
	if !obj.IsObject() {
		return keys
	}
	seen := make(map[string]struct{})
	obj.ForEach(func(k, _ gjson.Result) bool {
		name := k.String()
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			keys = append(keys, name)
		}
		return true
	})
	return keys
}

func (d Data) MarshalJSON() ([]byte, error) {
	if len(d.Raw) == 0 {
		return []byte("null"), nil
	}
	return d.Raw, nil
}

func (d *Data) UnmarshalJSON(b []byte) error {
	parsed, err := DataFromJSON(b)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
