package server

import (
	"testing"

	"github.com/gosrf/gosrf"
)

func TestParamCountMatches(t *testing.T) {
	cases := []struct {
		pc      ParamCount
		count   int
		matches bool
	}{
		{ParamCountAny(), 0, true},
		{ParamCountAny(), 7, true},
		{ParamCountZero(), 0, true},
		{ParamCountZero(), 1, false},
		{ParamCountExactly(2), 2, true},
		{ParamCountExactly(2), 1, false},
		{ParamCountExactly(2), 3, false},
		{ParamCountAtLeast(2), 1, false},
		{ParamCountAtLeast(2), 2, true},
		{ParamCountAtLeast(2), 9, true},
		{ParamCountRange(1, 3), 0, false},
		{ParamCountRange(1, 3), 1, true},
		{ParamCountRange(1, 3), 3, true},
		{ParamCountRange(1, 3), 4, false},
	}

	for _, c := range cases {
		if c.pc.Matches(c.count) != c.matches {
			t.Fatal("constraint", c.pc.String(), "count", c.count, "expected", c.matches)
		}
	}
}

// Matches must be false for any count below the constraint's minimum.
func TestParamCountMinimum(t *testing.T) {
	constraints := []ParamCount{
		ParamCountAny(), ParamCountZero(), ParamCountExactly(3),
		ParamCountAtLeast(2), ParamCountRange(2, 5),
	}

	for _, pc := range constraints {
		for count := 0; count < pc.Minimum(); count++ {
			if pc.Matches(count) {
				t.Fatal(pc.String(), "matches", count, "below its minimum", pc.Minimum())
			}
		}
	}
}

func TestParamDataTypeMatches(t *testing.T) {
	obj := map[string]any{"k": "v"}
	arr := []any{1.0}

	cases := []struct {
		dt      ParamDataType
		value   any
		matches bool
	}{
		{ParamAny, obj, true},
		{ParamAny, nil, true},
		{ParamString, "x", true},
		{ParamString, 1.0, false},
		{ParamNumber, 1.5, true},
		{ParamNumber, "1.5", false},
		{ParamArray, arr, true},
		{ParamArray, obj, false},
		{ParamObject, obj, true},
		{ParamObject, arr, false},
		{ParamBoolish, true, true},
		{ParamBoolish, 1.0, true},
		{ParamBoolish, 2.0, false},
		{ParamBoolish, "t", true},
		{ParamBoolish, "yes", false},
		{ParamScalar, "x", true},
		{ParamScalar, 1.0, true},
		{ParamScalar, arr, false},
		{ParamScalar, obj, false},
	}

	for _, c := range cases {
		if c.dt.Matches(c.value) != c.matches {
			t.Fatal("type", c.dt.String(), "value", c.value, "expected", c.matches)
		}
	}
}

// Shallow means shallow: array and object contents are not inspected.
func TestParamDataTypeShallow(t *testing.T) {
	junk := []any{map[string]any{"nested": []any{"anything"}}}
	if !ParamArray.Matches(junk) {
		t.Fail()
	}
}

func TestValidate(t *testing.T) {
	def := &MethodDef{
		Name:       "v.test",
		ParamCount: ParamCountExactly(2),
		Params: []StaticParam{
			{Name: "name", Datatype: ParamString},
			{Name: "count", Datatype: ParamNumber},
		},
	}

	if status, _ := def.Validate(gosrf.NewMethodCall("v.test", "a", 1.0)); status.Failed() {
		t.Fatal("valid call rejected")
	}

	if status, _ := def.Validate(gosrf.NewMethodCall("v.test")); !status.Failed() {
		t.Fatal("arity violation accepted")
	}

	if status, _ := def.Validate(gosrf.NewMethodCall("v.test", 1.0, 1.0)); !status.Failed() {
		t.Fatal("type violation accepted")
	}
}
