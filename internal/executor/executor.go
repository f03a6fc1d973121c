// Package executor runs session commands either in-process or against a
// running session over the control socket.
package executor

import "github.com/Ashwinachu030493/AIde/internal/ipc"

// Executor executes commands and returns responses.
type Executor interface {
	Execute(req ipc.Request) (ipc.Response, error)
	Close() error
}
