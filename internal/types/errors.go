package types

import "errors"

var (
	ErrAgentNotFound     = errors.New("agent not found")
	ErrAgentNotConnected = errors.New("agent not connected")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrTemplateReadOnly  = errors.New("system template is read-only")
	ErrExecutionNotFound = errors.New("command execution not found")
	ErrDeliveryFailed    = errors.New("command delivery failed")
	ErrInvalidDriver     = errors.New("invalid database driver")

	// Resolution-time validation failures. These surface before any
	// network I/O takes place.
	ErrMissingRequiredParameter    = errors.New("missing required parameter")
	ErrUndeclaredPlaceholder       = errors.New("undeclared placeholder in template body")
	ErrUnresolvedDeclaredParameter = errors.New("required parameter has no value and no default")
)
