package executor

import "github.com/Ashwinachu030493/AIde/internal/ipc"

// DirectExecutor calls the session handler in-process. The chat REPL uses
// it so slash commands and socket clients share one code path.
type DirectExecutor struct {
	handler ipc.Handler
}

// NewDirectExecutor creates a direct executor for handler.
func NewDirectExecutor(handler ipc.Handler) *DirectExecutor {
	return &DirectExecutor{handler: handler}
}

// Execute calls the handler and returns its response.
func (e *DirectExecutor) Execute(req ipc.Request) (ipc.Response, error) {
	return e.handler(req), nil
}

// Close is a no-op.
func (e *DirectExecutor) Close() error {
	return nil
}
