package executor

import "github.com/Ashwinachu030493/AIde/internal/ipc"

// IPCExecutor sends commands to a running chat session.
type IPCExecutor struct {
	client *ipc.Client
}

// NewIPCExecutor connects to the session at the default socket path.
func NewIPCExecutor() (*IPCExecutor, error) {
	return NewIPCExecutorPath(ipc.DefaultSocketPath())
}

// NewIPCExecutorPath connects to the session at socketPath.
func NewIPCExecutorPath(socketPath string) (*IPCExecutor, error) {
	client, err := ipc.DialPath(socketPath)
	if err != nil {
		return nil, err
	}
	return &IPCExecutor{client: client}, nil
}

// Execute sends req and returns the session's response.
func (e *IPCExecutor) Execute(req ipc.Request) (ipc.Response, error) {
	return e.client.Send(req)
}

// Close closes the connection.
func (e *IPCExecutor) Close() error {
	return e.client.Close()
}
