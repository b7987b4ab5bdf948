package framework

import "context"

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners: simulated
// clocks, link pumps, telemetry connections.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// RunnerAdder adds its runnables to a Runner.
type RunnerAdder interface {
	AddToRunner(*Runner)
}
