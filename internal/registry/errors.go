package registry

import "fmt"

// ValidationError reports malformed registration or report input.
// The request is rejected and no state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnknownAgentError reports an operation against an id that was never
// registered. Reports never create agents implicitly.
type UnknownAgentError struct {
	ID string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent: %s", e.ID)
}
