package executor

import (
	"fmt"
	"strings"

	"github.com/scryerhq/scryer-core/internal/uimodel"
)

// conditionState is the current screen state a condition is evaluated
// against.
type conditionState struct {
	tree           *uimodel.Element
	currentActivity string
}

var comparisonOperators = []string{"==", "!=", ">=", "<=", ">", "<"}

// evaluateCondition implements the condition grammar documented in
// §4.6.4: element_exists / screen_activity / var comparisons, with a bare
// expression falling back to a truthy-variable test.
func (c *flowContext) evaluateCondition(expr string, state conditionState) (bool, error) {
	expr = strings.TrimSpace(c.substitute(expr))

	switch {
	case strings.HasPrefix(expr, "element_exists:"):
		return evaluateElementExists(strings.TrimPrefix(expr, "element_exists:"), state.tree), nil
	case strings.HasPrefix(expr, "screen_activity:"):
		want := strings.TrimPrefix(expr, "screen_activity:")
		return strings.Contains(state.currentActivity, want), nil
	case strings.HasPrefix(expr, "var:"):
		return c.evaluateVarCondition(strings.TrimPrefix(expr, "var:"))
	default:
		value, _ := c.getVar(expr)
		return isTruthy(value), nil
	}
}

// evaluateElementExists parses "text=X", "resource-id=X" or "class=X" and
// checks whether any node in tree matches.
func evaluateElementExists(clause string, tree *uimodel.Element) bool {
	parts := strings.SplitN(clause, "=", 2)
	if len(parts) != 2 {
		return false
	}
	key := strings.TrimSpace(parts[0])
	value := strings.TrimSpace(parts[1])

	for _, el := range tree.Flatten() {
		switch key {
		case "text":
			if el.Text == value {
				return true
			}
		case "resource-id":
			if el.ResourceID == value {
				return true
			}
		case "class":
			if el.Class == value {
				return true
			}
		}
	}
	return false
}

// evaluateVarCondition parses "NAME OP VALUE" and compares the variable's
// current value against VALUE, trying numeric comparison first and
// falling back to string equality/inequality.
func (c *flowContext) evaluateVarCondition(clause string) (bool, error) {
	var op string
	var opIdx int = -1
	for _, candidate := range comparisonOperators {
		if idx := strings.Index(clause, candidate); idx >= 0 {
			if opIdx == -1 || idx < opIdx {
				op, opIdx = candidate, idx
			}
		}
	}
	if opIdx < 0 {
		return false, fmt.Errorf("%w: %q missing comparison operator", ErrConditionSyntax, clause)
	}

	name := strings.TrimSpace(clause[:opIdx])
	want := strings.TrimSpace(clause[opIdx+len(op):])

	current, _ := c.getVar(name)

	if curNum, curOK := numericValue(current); curOK {
		if wantNum, wantOK := numericValue(want); wantOK {
			return compareNumeric(curNum, op, wantNum), nil
		}
	}
	return compareString(current, op, want), nil
}

func compareNumeric(a float64, op string, b float64) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case "<":
		return a < b
	}
	return false
}

func compareString(a, op, b string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	default:
		// Ordering operators on non-numeric strings have no defined
		// meaning here; treat as false rather than guessing.
		return false
	}
}

// isTruthy implements the bare-expression truthy-variable test: the
// condition is true iff the variable's value is non-empty and not one of
// the fixed falsy tokens.
func isTruthy(value string) bool {
	return value != "" &&
		value != "0" &&
		!strings.EqualFold(value, "false") &&
		!strings.EqualFold(value, "none")
}
