package observability

import (
	"context"

	"github.com/aretw0/lattice/pkg/domain"
	"github.com/aretw0/lattice/pkg/ports"
)

// CheckpointObserver persists the run state at every node entry and at the end of the
// run, keyed by run id. The saved token can be handed to Engine.Resume.
// Entries into nodes of a nested sub-graph are skipped: a checkpoint is always
// positioned on a node of the graph the run was started with.
type CheckpointObserver struct {
	store ports.CheckpointStore
}

// NewCheckpointObserver creates an observer saving into store.
func NewCheckpointObserver(store ports.CheckpointStore) *CheckpointObserver {
	return &CheckpointObserver{store: store}
}

func (c *CheckpointObserver) Name() string { return "checkpoint" }

func (c *CheckpointObserver) OnRunStarted(ctx context.Context, e *domain.RunStarted) error {
	return c.save(ctx, e.State)
}

func (c *CheckpointObserver) OnNodeEntered(ctx context.Context, e *domain.NodeEntered) error {
	if e.Nested {
		return nil
	}
	return c.save(ctx, e.State)
}

func (c *CheckpointObserver) OnRunCompleted(ctx context.Context, e *domain.RunCompleted) error {
	return c.save(ctx, e.State)
}

func (c *CheckpointObserver) OnRunFailed(ctx context.Context, e *domain.RunFailed) error {
	return c.save(ctx, e.State)
}

func (c *CheckpointObserver) save(ctx context.Context, s *domain.RunState) error {
	if s == nil {
		return nil
	}
	// The run may be ending because ctx was cancelled; the checkpoint must still land.
	return c.store.Save(context.WithoutCancel(ctx), s.RunID, s)
}
