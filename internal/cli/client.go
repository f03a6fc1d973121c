package cli

import (
	"github.com/Ashwinachu030493/AIde/internal/executor"
	"github.com/Ashwinachu030493/AIde/internal/ipc"
)

// ExecutorFactory creates executors and checks whether a chat session is running.
type ExecutorFactory interface {
	NewExecutor() (executor.Executor, error)
	IsRunning() bool
}

// defaultFactory uses IPC executor.
type defaultFactory struct{}

func (f defaultFactory) NewExecutor() (executor.Executor, error) {
	return executor.NewIPCExecutor()
}

func (f defaultFactory) IsRunning() bool {
	return ipc.IsRunning()
}

// directFactory serves commands from inside a chat session.
type directFactory struct {
	handler ipc.Handler
}

func (f directFactory) NewExecutor() (executor.Executor, error) {
	return executor.NewDirectExecutor(f.handler), nil
}

func (f directFactory) IsRunning() bool {
	return true
}

// execFactory is the package-level factory, replaceable for testing.
var execFactory ExecutorFactory = defaultFactory{}

// SetExecutorFactory sets the executor factory (for testing).
func SetExecutorFactory(f ExecutorFactory) {
	execFactory = f
}

// ResetExecutorFactory resets to the default factory.
func ResetExecutorFactory() {
	execFactory = defaultFactory{}
}
