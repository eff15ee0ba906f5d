package eval

import "github.com/HMB-research/fql/internal/value"

// Variables maps names to values for one evaluation scope.
type Variables map[string]value.Value

// Clone returns a shallow copy; values themselves are immutable and shared.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Context carries the effective date and variable bindings of one
// evaluation.
type Context struct {
	effectiveDate value.Date
	variables     Variables
}

// NewContext builds an evaluation context.
func NewContext(effectiveDate value.Date, variables Variables) *Context {
	if variables == nil {
		variables = Variables{}
	}
	return &Context{effectiveDate: effectiveDate, variables: variables}
}

// Variable looks up a binding by name.
func (c *Context) Variable(name string) (value.Value, bool) {
	v, ok := c.variables[name]
	return v, ok
}

// EffectiveDate returns the date rate references resolve at.
func (c *Context) EffectiveDate() value.Date {
	return c.effectiveDate
}

// SetEffectiveDate changes the resolution date for subsequent expressions.
func (c *Context) SetEffectiveDate(date value.Date) {
	c.effectiveDate = date
}
