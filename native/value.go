// Package native defines the tagged value form exchanged between script-side
// objects and the host process.
package native

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Tag identifies the payload carried by a Value.
type Tag uint8

const (
	TagNull Tag = iota
	TagString
	TagInt64
	TagFloat64
	TagBool
	TagJSON
	TagList
	TagPointer
	TagFunction
	TagAsyncFunction
	TagBytes
)

var tagNames = [...]string{
	TagNull:          "null",
	TagString:        "string",
	TagInt64:         "int64",
	TagFloat64:       "float64",
	TagBool:          "bool",
	TagJSON:          "json",
	TagList:          "list",
	TagPointer:       "pointer",
	TagFunction:      "function",
	TagAsyncFunction: "async_function",
	TagBytes:         "bytes",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "tag(" + strconv.Itoa(int(t)) + ")"
}

// Value is a tagged union. The zero Value is Null.
//
// Pointer values are process-local: they let an in-process host hand opaque
// Go values back to the bridge and are rejected by the wire encoding.
type Value struct {
	Tag Tag

	str   string
	num   int64
	float float64
	list  []Value
	ptr   any
	bytes []byte
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{Tag: TagString, str: s} }

// Int64 wraps an integer.
func Int64(i int64) Value { return Value{Tag: TagInt64, num: i} }

// Float64 wraps a float.
func Float64(f float64) Value { return Value{Tag: TagFloat64, float: f} }

// Bool wraps a boolean.
func Bool(b bool) Value {
	v := Value{Tag: TagBool}
	if b {
		v.num = 1
	}
	return v
}

// JSON wraps an already encoded JSON document.
func JSON(raw string) Value { return Value{Tag: TagJSON, str: raw} }

// List wraps a sequence of values.
func List(items ...Value) Value { return Value{Tag: TagList, list: items} }

// Pointer wraps an opaque process-local value.
func Pointer(p any) Value { return Value{Tag: TagPointer, ptr: p} }

// Function references a host-implemented synchronous function by id.
func Function(id int64) Value { return Value{Tag: TagFunction, num: id} }

// AsyncFunction references a host-implemented asynchronous function by id.
func AsyncFunction(id int64) Value { return Value{Tag: TagAsyncFunction, num: id} }

// Bytes wraps a byte slice.
func Bytes(b []byte) Value { return Value{Tag: TagBytes, bytes: b} }

// IsNull reports whether v carries no payload.
func (v Value) IsNull() bool { return v.Tag == TagNull }

// Text returns the string payload of String and JSON values.
func (v Value) Text() string {
	switch v.Tag {
	case TagString, TagJSON:
		return v.str
	}
	return ""
}

// Int returns the integer payload, truncating floats.
func (v Value) Int() int64 {
	switch v.Tag {
	case TagInt64, TagBool, TagFunction, TagAsyncFunction:
		return v.num
	case TagFloat64:
		return int64(v.float)
	}
	return 0
}

// Float returns the numeric payload as a float.
func (v Value) Float() float64 {
	switch v.Tag {
	case TagFloat64:
		return v.float
	case TagInt64:
		return float64(v.num)
	}
	return 0
}

// Truthy returns the boolean payload.
func (v Value) Truthy() bool {
	switch v.Tag {
	case TagBool, TagInt64:
		return v.num != 0
	case TagFloat64:
		return v.float != 0 && !math.IsNaN(v.float)
	case TagString:
		return v.str != ""
	case TagNull:
		return false
	}
	return true
}

// Items returns the elements of a List value.
func (v Value) Items() []Value {
	if v.Tag != TagList {
		return nil
	}
	return v.list
}

// Ptr returns the payload of a Pointer value.
func (v Value) Ptr() any {
	if v.Tag != TagPointer {
		return nil
	}
	return v.ptr
}

// FunctionID returns the host function id of Function and AsyncFunction values.
func (v Value) FunctionID() int64 {
	if v.Tag == TagFunction || v.Tag == TagAsyncFunction {
		return v.num
	}
	return 0
}

// RawBytes returns the payload of a Bytes value.
func (v Value) RawBytes() []byte {
	if v.Tag != TagBytes {
		return nil
	}
	return v.bytes
}

func (v Value) String() string {
	switch v.Tag {
	case TagNull:
		return "null"
	case TagString:
		return strconv.Quote(v.str)
	case TagJSON:
		return v.str
	case TagInt64:
		return strconv.FormatInt(v.num, 10)
	case TagFloat64:
		return strconv.FormatFloat(v.float, 'g', -1, 64)
	case TagBool:
		return strconv.FormatBool(v.num != 0)
	case TagList:
		return fmt.Sprintf("%v", v.list)
	case TagPointer:
		return fmt.Sprintf("pointer(%T)", v.ptr)
	case TagFunction, TagAsyncFunction:
		return fmt.Sprintf("%s#%d", v.Tag, v.num)
	case TagBytes:
		return fmt.Sprintf("bytes[%d]", len(v.bytes))
	}
	return v.Tag.String()
}

// Equal reports deep equality. Pointer values compare by identity.
func (v Value) Equal(o Value) bool {
	if v.Tag != o.Tag {
		return false
	}
	switch v.Tag {
	case TagNull:
		return true
	case TagString, TagJSON:
		return v.str == o.str
	case TagInt64, TagBool, TagFunction, TagAsyncFunction:
		return v.num == o.num
	case TagFloat64:
		return v.float == o.float
	case TagPointer:
		return v.ptr == o.ptr
	case TagBytes:
		return string(v.bytes) == string(o.bytes)
	case TagList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// FromAny converts a plain Go value into a Value. Maps and structs are
// carried as JSON.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int64(int64(t)), nil
	case int32:
		return Int64(int64(t)), nil
	case int64:
		return Int64(t), nil
	case uint32:
		return Int64(int64(t)), nil
	case float32:
		return Float64(float64(t)), nil
	case float64:
		return Float64(t), nil
	case []byte:
		return Bytes(t), nil
	case []Value:
		return List(t...), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, e := range t {
			item, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("list item %d: %w", i, err)
			}
			items = append(items, item)
		}
		return List(items...), nil
	case []string:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = String(e)
		}
		return List(items...), nil
	}
	raw, err := json.Marshal(x)
	if err != nil {
		return Value{}, fmt.Errorf("native: cannot convert %T: %w", x, err)
	}
	return JSON(string(raw)), nil
}

// Any converts v back into a plain Go value. JSON payloads are decoded;
// malformed JSON is returned as its raw string.
func (v Value) Any() any {
	switch v.Tag {
	case TagString:
		return v.str
	case TagInt64:
		return v.num
	case TagFloat64:
		return v.float
	case TagBool:
		return v.num != 0
	case TagJSON:
		var out any
		if err := json.Unmarshal([]byte(v.str), &out); err != nil {
			return v.str
		}
		return out
	case TagList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	case TagPointer:
		return v.ptr
	case TagFunction, TagAsyncFunction:
		return v.num
	case TagBytes:
		return v.bytes
	}
	return nil
}
