package vectorstore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rcliao/meeting-rag/internal/model"
)

// Op is a metadata comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

var validOps = map[Op]bool{OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true, OpIn: true}

// Condition constrains one metadata field.
type Condition struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Values returns the operands of c: the list for in, otherwise the single value.
func (c Condition) Values() []any {
	if c.Op == OpIn {
		vs, _ := listValues(c.Value)
		return vs
	}
	return []any{c.Value}
}

// Filter is a conjunction of conditions. A nil Filter matches everything.
type Filter []Condition

// Eq matches documents whose field equals v.
func Eq(field string, v any) Filter {
	return Filter{{Field: field, Op: OpEq, Value: v}}
}

// In matches documents whose field is one of values.
func In(field string, values []string) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Filter{{Field: field, Op: OpIn, Value: vs}}
}

// And returns the conjunction of both filters.
func (f Filter) And(other Filter) Filter {
	out := make(Filter, 0, len(f)+len(other))
	out = append(out, f...)
	return append(out, other...)
}

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool { return len(f) == 0 }

func (f Filter) String() string {
	parts := make([]string, len(f))
	for i, c := range f {
		parts[i] = fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
	}
	return strings.Join(parts, " and ")
}

var fieldRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks operators, field names and value shapes.
func (f Filter) Validate() error {
	for _, c := range f {
		if !fieldRegex.MatchString(c.Field) {
			return fmt.Errorf("invalid filter field %q", c.Field)
		}
		if !validOps[c.Op] {
			return fmt.Errorf("invalid filter op %q on %s", c.Op, c.Field)
		}
		if c.Op == OpIn {
			if _, ok := listValues(c.Value); !ok {
				return fmt.Errorf("filter op in on %s needs a list, got %T", c.Field, c.Value)
			}
			continue
		}
		if _, ok := scalar(c.Value); !ok {
			return fmt.Errorf("filter value for %s must be a scalar, got %T", c.Field, c.Value)
		}
	}
	return nil
}

// Matches evaluates the filter against a metadata map. A missing field only
// satisfies ne.
func (f Filter) Matches(m model.Metadata) bool {
	for _, c := range f {
		if !c.matches(m) {
			return false
		}
	}
	return true
}

func (c Condition) matches(m model.Metadata) bool {
	raw, present := m[c.Field]
	if !present {
		return c.Op == OpNe
	}
	got, ok := scalar(raw)
	if !ok {
		return false
	}

	if c.Op == OpIn {
		values, _ := listValues(c.Value)
		for _, v := range values {
			if want, ok := scalar(v); ok && compare(got, want) == 0 {
				return true
			}
		}
		return false
	}

	want, ok := scalar(c.Value)
	if !ok {
		return false
	}
	cmp := compare(got, want)
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpGt:
		return cmp == 1
	case OpGte:
		return cmp == 1 || cmp == 0
	case OpLt:
		return cmp == -1
	case OpLte:
		return cmp == -1 || cmp == 0
	}
	return false
}

// scalar normalizes numbers to float64 so ints and floats compare.
func scalar(v any) (any, bool) {
	switch x := v.(type) {
	case string, bool, float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return nil, false
}

func listValues(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// compare returns -1, 0 or 1, or 2 when the values are of different kinds.
func compare(a, b any) int {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 2
		}
		return strings.Compare(x, y)
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 2
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 2
		}
		if x == y {
			return 0
		}
		return 2
	}
	return 2
}
