package native

import "strconv"

// CallOp is a well-known operation code sent in place of a method name.
type CallOp int64

const (
	OpGetProperty CallOp = iota
	OpSetProperty
	OpGetAllPropertyNames
	OpAnonymousFunctionCall
	OpAsyncAnonymousFunction
)

func (op CallOp) String() string {
	switch op {
	case OpGetProperty:
		return "get-property"
	case OpSetProperty:
		return "set-property"
	case OpGetAllPropertyNames:
		return "get-all-property-names"
	case OpAnonymousFunctionCall:
		return "anonymous-function-call"
	case OpAsyncAnonymousFunction:
		return "async-anonymous-function"
	}
	return "op(" + strconv.FormatInt(int64(op), 10) + ")"
}

// Value encodes op as the method slot of an invocation.
func (op CallOp) Value() Value { return Int64(int64(op)) }

// Method is the decoded method slot of an invocation: either a named method
// or an operation code.
type Method struct {
	Name string
	Op   CallOp
	IsOp bool
}

// ParseMethod decodes the method slot produced by the bridge.
func ParseMethod(v Value) Method {
	if v.Tag == TagInt64 {
		return Method{Op: CallOp(v.num), IsOp: true}
	}
	return Method{Name: v.Text()}
}

func (m Method) String() string {
	if m.IsOp {
		return m.Op.String()
	}
	return m.Name
}
