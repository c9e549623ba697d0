package health

import "context"

// ReadinessCheck is implemented by components that gate the serving status.
type ReadinessCheck interface {
	IsReady(ctx context.Context) error
	Name() string
}
