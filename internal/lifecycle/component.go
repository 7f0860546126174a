// Package lifecycle starts and stops the long-running parts of the server
// in dependency order.
package lifecycle

import "context"

// Component is a long-running part of the process.
type Component interface {
	// Start brings the component up. It must return once the component is
	// ready; background work keeps running until Stop.
	Start(ctx context.Context) error

	// Stop shuts the component down, finishing in-flight work before the
	// ctx deadline where possible.
	Stop(ctx context.Context) error

	// Name is used in logs and error messages. Must be non-empty.
	Name() string
}
