/*
Package server implements the callee side of the RPC runtime: the method
registry, the per-request server session, and the bounded, self-healing
worker pool that drains a service queue.
*/
package server

import (
	"fmt"

	"github.com/gosrf/gosrf"
)

// Arity constraint of a method.
type ParamCount struct {
	variant paramCountVariant
	lo, hi  int
}

type paramCountVariant int

const (
	pcAny paramCountVariant = iota
	pcZero
	pcExactly
	pcAtLeast
	pcRange
)

func ParamCountAny() ParamCount          { return ParamCount{variant: pcAny} }
func ParamCountZero() ParamCount         { return ParamCount{variant: pcZero} }
func ParamCountExactly(n int) ParamCount { return ParamCount{variant: pcExactly, lo: n, hi: n} }
func ParamCountAtLeast(n int) ParamCount { return ParamCount{variant: pcAtLeast, lo: n} }
func ParamCountRange(a, b int) ParamCount {
	return ParamCount{variant: pcRange, lo: a, hi: b}
}

// Whether a call providing count parameters satisfies the constraint.
func (pc ParamCount) Matches(count int) bool {
	switch pc.variant {
	case pcAny:
		return true
	case pcZero:
		return count == 0
	case pcExactly:
		return count == pc.lo
	case pcAtLeast:
		return count >= pc.lo
	case pcRange:
		return count >= pc.lo && count <= pc.hi
	}
	return false
}

// The smallest parameter count the constraint accepts.
func (pc ParamCount) Minimum() int {
	switch pc.variant {
	case pcAny, pcZero:
		return 0
	default:
		return pc.lo
	}
}

func (pc ParamCount) String() string {
	switch pc.variant {
	case pcAny:
		return "Any"
	case pcZero:
		return "Zero"
	case pcExactly:
		return fmt.Sprintf("Exactly(%d)", pc.lo)
	case pcAtLeast:
		return fmt.Sprintf("AtLeast(%d)", pc.lo)
	case pcRange:
		return fmt.Sprintf("Range(%d..%d)", pc.lo, pc.hi)
	}
	return "Unknown"
}

/*
Shallow type constraint of one declared parameter. Checked against the
decoded JSON value before invocation; contents of arrays and objects are
never inspected.
*/
type ParamDataType int

const (
	ParamAny ParamDataType = iota
	ParamString
	ParamNumber
	ParamArray
	ParamObject
	// A bool, a 0/1 number, or one of the usual true-ish/false-ish strings.
	ParamBoolish
	// Anything that is not an array or object.
	ParamScalar
)

var param_type_strings []string = []string{
	"Any", "String", "Number", "Array", "Object", "Boolish", "Scalar"}

func (t ParamDataType) String() string {
	return param_type_strings[t]
}

func (t ParamDataType) Matches(value any) bool {
	switch t {
	case ParamAny:
		return true
	case ParamString:
		_, ok := value.(string)
		return ok
	case ParamNumber:
		_, ok := value.(float64)
		return ok
	case ParamArray:
		_, ok := value.([]any)
		return ok
	case ParamObject:
		_, ok := value.(map[string]any)
		return ok
	case ParamBoolish:
		switch v := value.(type) {
		case bool:
			return true
		case float64:
			return v == 0 || v == 1
		case string:
			switch v {
			case "t", "f", "true", "false", "0", "1":
				return true
			}
		}
		return false
	case ParamScalar:
		switch value.(type) {
		case []any, map[string]any:
			return false
		}
		return true
	}
	return false
}

// One declared parameter of a method.
type StaticParam struct {
	Name     string
	Datatype ParamDataType
}

/*
The function bound to a method name. The worker argument is the service's
per-worker object; ses streams results back to the caller. A returned
error is reported to the application's APICallError hook and turned into
an Internal Server Error status for the caller.
*/
type MethodHandler func(worker ApplicationWorker, ses *Session, call *gosrf.MethodCall) error

/*
One registered method. Registered once at startup, immutable thereafter,
looked up by exact name. Calls to "<name>.atomic" resolve to the same
definition with the response stream collapsed into a single array result.
*/
type MethodDef struct {
	Name       string
	Desc       string
	ParamCount ParamCount
	Params     []StaticParam
	Handler    MethodHandler
}

// One-line introspection summary.
func (m *MethodDef) Summary() string {
	s := fmt.Sprintf("%s (%s)", m.Name, m.ParamCount)
	for _, p := range m.Params {
		s += fmt.Sprintf(" %s:%s", p.Name, p.Datatype)
	}
	return s
}

/*
Validate a decoded call against the definition. Returns the status to
send the caller when validation fails; the handler must not run in that
case.
*/
func (m *MethodDef) Validate(call *gosrf.MethodCall) (gosrf.MessageStatus, string) {
	if !m.ParamCount.Matches(len(call.Params)) {
		return gosrf.StatusBadRequest,
			fmt.Sprintf("method %s expects %s params, got %d", m.Name, m.ParamCount, len(call.Params))
	}

	for i, decl := range m.Params {
		if i >= len(call.Params) {
			break
		}
		if !decl.Datatype.Matches(call.Params[i]) {
			return gosrf.StatusBadRequest,
				fmt.Sprintf("method %s param %s must be %s", m.Name, decl.Name, decl.Datatype)
		}
	}

	return gosrf.StatusOk, ""
}
