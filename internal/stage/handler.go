package stage

import (
	"context"
)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Name() string
	Execute(context.Context, *Run) error
	HealthCheck(context.Context) Health
}
