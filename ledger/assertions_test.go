package ledger

import (
	"errors"
	"fmt"
)

// ShouldNotWrap asserts that the actual error does not wrap the expected
// error. goconvey ships ShouldWrap but no negated form, so it is defined
// here with the same assertion signature.
func ShouldNotWrap(actual interface{}, expected ...interface{}) string {
	if len(expected) != 1 {
		return fmt.Sprintf("This assertion requires exactly 1 comparison value (you provided %d).", len(expected))
	}
	actualErr, ok := actual.(error)
	if !ok {
		return "The actual value must be an error."
	}
	expectedErr, ok := expected[0].(error)
	if !ok {
		return "The expected value must be an error."
	}
	if errors.Is(actualErr, expectedErr) {
		return fmt.Sprintf("Expected error %q not to wrap %q, but it did.", actualErr, expectedErr)
	}
	return ""
}
