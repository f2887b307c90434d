package runner

import (
	"errors"
	"fmt"
)

// maxPipelineDepth bounds reentrant pipeline execution. Self-referential or
// mutually-recursive pipelines hit this instead of exhausting the stack.
const maxPipelineDepth = 8

var (
	// ErrPluginNotFound marks a dispatch target missing from the loaded set.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrPipelineDepth marks a pipeline chain that exceeded the depth bound.
	ErrPipelineDepth = errors.New("pipeline depth limit exceeded")
)

// HTTPStatusError carries a non-2xx response with a truncated body so the
// user sees what the endpoint said.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, e.Body)
}
