package native

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotSerializable is returned when a process-local value is encoded for
// the wire.
var ErrNotSerializable = errors.New("native: pointer values cannot be serialized")

type wireValue struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

var tagByName = func() map[string]Tag {
	m := make(map[string]Tag, len(tagNames))
	for i, name := range tagNames {
		m[name] = Tag(i)
	}
	return m
}()

// MarshalJSON encodes v as {"t": tag, "v": payload}.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.Tag {
	case TagNull:
		return json.Marshal(wireValue{T: v.Tag.String()})
	case TagString, TagJSON:
		payload = v.str
	case TagInt64, TagFunction, TagAsyncFunction:
		payload = v.num
	case TagFloat64:
		payload = v.float
	case TagBool:
		payload = v.num != 0
	case TagList:
		items := v.list
		if items == nil {
			items = []Value{}
		}
		payload = items
	case TagBytes:
		payload = v.bytes
	case TagPointer:
		return nil, ErrNotSerializable
	default:
		return nil, fmt.Errorf("native: unknown tag %d", v.Tag)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{T: v.Tag.String(), V: raw})
}

// UnmarshalJSON decodes the form produced by MarshalJSON. A JSON null decodes to a Null value.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Null()
		return nil
	}
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	tag, ok := tagByName[w.T]
	if !ok {
		return fmt.Errorf("native: unknown tag %q", w.T)
	}
	out := Value{Tag: tag}
	var err error
	switch tag {
	case TagNull:
	case TagString, TagJSON:
		err = json.Unmarshal(w.V, &out.str)
	case TagInt64, TagFunction, TagAsyncFunction:
		err = json.Unmarshal(w.V, &out.num)
	case TagFloat64:
		err = json.Unmarshal(w.V, &out.float)
	case TagBool:
		var b bool
		err = json.Unmarshal(w.V, &b)
		out = Bool(b)
	case TagList:
		err = json.Unmarshal(w.V, &out.list)
	case TagBytes:
		err = json.Unmarshal(w.V, &out.bytes)
	case TagPointer:
		return ErrNotSerializable
	}
	if err != nil {
		return fmt.Errorf("native: decode %s payload: %w", w.T, err)
	}
	*v = out
	return nil
}
