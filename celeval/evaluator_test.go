package celeval

import (
	"context"
	"testing"

	"github.com/OmniMCP-AI/cfengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cell(name string) cfengine.Address {
	return cfengine.MustParseRange(name).Start
}

func TestTranslate(t *testing.T) {
	for _, tc := range []struct {
		expression string
		source     string
		refs       []cfengine.Address
	}{
		{"=$B2>100", "ref0 > 100.0", []cfengine.Address{cell("B2")}},
		{"A1=\"x\"", "ref0 == \"x\"", []cfengine.Address{cell("A1")}},
		{"A1<>B1", "ref0 != ref1", []cfengine.Address{cell("A1"), cell("B1")}},
		{"AND(A1>=1,A1<=5)", "(ref0 >= 1.0 && ref1 <= 5.0)", []cfengine.Address{cell("A1"), cell("A1")}},
		{"OR(value>2,row=1)", "(value > 2.0 || row == 1.0)", nil},
		{"NOT(value>2)", "!(value > 2.0)", nil},
		{"A1&\"b\"=\"ab\"", "ref0 + \"b\" == \"ab\"", []cfengine.Address{cell("A1")}},
		{"A1>1.5", "ref0 > 1.5", []cfengine.Address{cell("A1")}},
	} {
		p, err := translate(tc.expression)
		require.NoError(t, err, tc.expression)
		assert.Equal(t, tc.source, p.source, tc.expression)
		assert.Equal(t, tc.refs, p.refs, tc.expression)
	}
}

func TestTranslateErrors(t *testing.T) {
	for _, tc := range []struct {
		expression string
		err        error
	}{
		{"", ErrEmptyExpression},
		{"SUM(A1,A2)>2", ErrUnsupportedFunction},
		{"Sheet2!A1>1", ErrUnsupportedReference},
		{"A1:A3>1", ErrUnsupportedReference},
		{"A1^2>1", ErrUnsupportedOperator},
		{"NOT(A1,A2)", ErrSyntax},
	} {
		_, err := translate(tc.expression)
		assert.ErrorIs(t, err, tc.err, tc.expression)
	}
}

func TestEvaluate(t *testing.T) {
	values := map[cfengine.Address]any{
		cell("A1"): 5.0,
		cell("A2"): "x",
		cell("A3"): 0.6,
		cell("B2"): 150,
		cell("B3"): 50.0,
	}
	getValue := func(addr cfengine.Address) any { return values[addr] }
	e := New()

	for _, tc := range []struct {
		expression string
		addr       string
		value      any
		want       any
	}{
		{"$B2>100", "A2", nil, true},
		{"$B3>100", "A3", nil, false},
		{"A2=\"x\"", "A2", nil, true},
		{"AND(A1>=1,A1<=5)", "A1", nil, true},
		{"A3>50%", "A3", nil, true},
		{"value>=row", "C3", 3, true},
		{"value*2", "C1", 4.0, 8.0},
		{"IF(A1>1,\"big\",\"small\")=\"big\"", "A1", nil, true},
	} {
		got, err := e.Evaluate(tc.expression, cfengine.FormulaContext{
			Address:  cell(tc.addr),
			Value:    tc.value,
			GetValue: getValue,
		})
		require.NoError(t, err, tc.expression)
		assert.Equal(t, tc.want, got, tc.expression)
	}
}

func TestEvaluateErrors(t *testing.T) {
	e := New()
	getValue := func(cfengine.Address) any { return nil }

	_, err := e.Evaluate("$B2>100", cfengine.FormulaContext{Address: cell("A2"), GetValue: getValue})
	assert.Error(t, err, "empty cells read as null")

	_, err = e.Evaluate("undefined_name>1", cfengine.FormulaContext{Address: cell("A1"), GetValue: getValue})
	assert.Error(t, err)
}

func TestProgramCache(t *testing.T) {
	e := New()
	getValue := func(cfengine.Address) any { return 200.0 }
	for _, expr := range []string{"$B1>100", "$B2>100", "$B3>100"} {
		got, err := e.Evaluate(expr, cfengine.FormulaContext{Address: cell("A1"), GetValue: getValue})
		require.NoError(t, err)
		assert.Equal(t, true, got)
	}
	assert.Equal(t, 1, e.Len())
}

func TestFormulaRule(t *testing.T) {
	values := map[cfengine.Address]any{
		cell("B1"): 10.0,
		cell("B2"): 250.0,
		cell("B3"): 99.0,
	}
	engine := cfengine.NewEngine(cfengine.Options{Workers: 2})
	_, err := engine.AddRule("big", cfengine.Rule{
		Ranges:    []cfengine.Range{cfengine.MustParseRange("A1:A3")},
		Style:     &cfengine.Style{FillColor: "#FFC7CE"},
		Condition: &cfengine.FormulaCondition{Expression: "=$B1>100"},
	})
	require.NoError(t, err)

	results, err := engine.EvaluateRange(context.Background(), cfengine.MustParseRange("A1:A3"), cfengine.EvalOptions{
		GetValue:         func(addr cfengine.Address) any { return values[addr] },
		FormulaEvaluator: New(),
	})
	require.NoError(t, err)
	assert.False(t, results[cell("A1")].Matched())
	assert.True(t, results[cell("A2")].Matched())
	assert.False(t, results[cell("A3")].Matched())
}
