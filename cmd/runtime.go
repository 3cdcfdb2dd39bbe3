package cmd

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/weave/internal/executor"
	"github.com/zjrosen/weave/internal/git"
	"github.com/zjrosen/weave/internal/infrastructure/sqlite"
	"github.com/zjrosen/weave/internal/orchestrator"
	"github.com/zjrosen/weave/internal/planner"
	"github.com/zjrosen/weave/internal/stories/domain"
	"github.com/zjrosen/weave/internal/tracing"
)

// runtime bundles the wired subsystems for one command invocation.
type runtime struct {
	store  domain.Store
	orch   *orchestrator.Orchestrator
	tracer *tracing.Provider
}

// newRuntime opens the store and wires the orchestrator. withPlanner
// controls whether a missing planner credential is fatal; commands
// that never refine run without one.
func newRuntime(withPlanner bool) (*runtime, error) {
	db, err := sqlite.NewDB(cfg.Store.Connection)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	store := sqlite.NewStore(db)

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}

	var p planner.Planner
	if withPlanner {
		p, err = planner.NewAnthropicPlanner(cfg.Planner)
		if err != nil {
			_ = store.Close()
			_ = provider.Shutdown(context.Background())
			return nil, err
		}
	}

	workDir, err := os.Getwd()
	if err != nil {
		_ = store.Close()
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}

	var tracer trace.Tracer
	if provider.Enabled() {
		tracer = provider.Tracer()
	}
	orch := orchestrator.New(store, p, executor.NewClaudeExecutor(),
		git.NewRealExecutor(workDir), cfg, tracer)

	return &runtime{store: store, orch: orch, tracer: provider}, nil
}

// close releases the runtime's resources.
func (r *runtime) close() {
	_ = r.tracer.Shutdown(context.Background())
	_ = r.store.Close()
}

// recoverOrphans resets stories orphaned by a crashed run before any
// scheduling decision.
func (r *runtime) recoverOrphans(ctx context.Context) error {
	_, err := r.orch.Recover(ctx)
	return err
}
