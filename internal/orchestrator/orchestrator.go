// Package orchestrator coordinates the story lifecycle: work item
// intake, LLM refinement into a story graph, scheduling, and agent
// execution in isolated workspaces.
package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/weave/internal/config"
	"github.com/zjrosen/weave/internal/executor"
	"github.com/zjrosen/weave/internal/git"
	"github.com/zjrosen/weave/internal/log"
	"github.com/zjrosen/weave/internal/planner"
	"github.com/zjrosen/weave/internal/scheduler"
	"github.com/zjrosen/weave/internal/stories/domain"
	"github.com/zjrosen/weave/internal/stories/statemachine"
	"github.com/zjrosen/weave/internal/workspace"
)

// Orchestrator owns the work item and story lifecycle. All state lives
// in the store; the orchestrator itself is stateless and safe to
// recreate between commands.
type Orchestrator struct {
	store    domain.Store
	planner  planner.Planner
	executor executor.Executor
	gitExec  git.Executor
	cfg      config.Config
	tracer   trace.Tracer
}

// New creates an Orchestrator. A nil tracer degrades to no-op spans.
func New(store domain.Store, p planner.Planner, exec executor.Executor, gitExec git.Executor, cfg config.Config, tracer trace.Tracer) *Orchestrator {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return &Orchestrator{
		store:    store,
		planner:  p,
		executor: exec,
		gitExec:  gitExec,
		cfg:      cfg,
		tracer:   tracer,
	}
}

// CreateWorkItem validates and persists a new work item in pending.
func (o *Orchestrator) CreateWorkItem(ctx context.Context, itemType domain.WorkItemType, title, description, acceptance string, priority int) (*domain.WorkItem, error) {
	item, err := domain.NewWorkItem(itemType, title, description, acceptance, priority)
	if err != nil {
		return nil, err
	}
	if err := o.store.SaveWorkItem(ctx, item); err != nil {
		return nil, err
	}
	log.Info(log.CatOrch, "work item created", "id", item.ID, "type", item.Type, "title", item.Title)
	return item, nil
}

// Refine decomposes a pending work item into a dependency graph of
// developer stories.
//
// The refining status is persisted before the planner call so a
// concurrent operator sees the item as busy; on planner failure the
// item lands in error with the message attached. The story graph is
// inserted in one transaction: a decomposition whose edges would form
// a cycle is rejected whole and the item errors without partial
// stories.
func (o *Orchestrator) Refine(ctx context.Context, id int64) (*planner.Result, error) {
	ctx, span := o.tracer.Start(ctx, "weave.refine",
		trace.WithAttributes(attribute.Int64("work_item.id", id)))
	defer span.End()

	item, err := o.store.WorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := statemachine.ApplyWorkItem(item, domain.WorkItemRefining); err != nil {
		return nil, err
	}
	if err := o.store.SaveWorkItem(ctx, item); err != nil {
		return nil, err
	}

	planCtx, cancel := context.WithTimeout(ctx, o.cfg.PlannerTimeout())
	defer cancel()

	result, err := o.planner.Refine(planCtx, item)
	if err != nil {
		o.failWorkItem(ctx, item, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "refinement failed")
		return nil, err
	}

	if err := o.persistPlan(ctx, item, result); err != nil {
		o.failWorkItem(ctx, item, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan rejected")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("plan.stories", len(result.Stories)),
		attribute.Int("plan.dependencies", len(result.Dependencies)),
	)
	log.Info(log.CatOrch, "work item refined", "id", item.ID,
		"stories", len(result.Stories), "dependencies", len(result.Dependencies))
	return result, nil
}

// persistPlan inserts the decomposition atomically and moves the item
// to refined. A plan with zero stories still refines; the item simply
// has nothing to schedule.
func (o *Orchestrator) persistPlan(ctx context.Context, item *domain.WorkItem, result *planner.Result) error {
	return o.store.WithTransaction(ctx, func(tx domain.Store) error {
		now := time.Now().UTC()
		ids := make([]int64, len(result.Stories))
		for i, planned := range result.Stories {
			priority := planned.Priority
			if priority <= 0 {
				priority = domain.DefaultStoryPriority
			}
			story := &domain.DeveloperStory{
				WorkItemID:   item.ID,
				StoryType:    domain.StoryType(planned.StoryType),
				Title:        planned.Title,
				Description:  planned.Description,
				Instructions: planned.Instructions,
				Priority:     priority,
				Status:       domain.StoryPending,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.SaveStory(ctx, story); err != nil {
				return err
			}
			ids[i] = story.ID
		}

		edges := make([][2]int64, len(result.Dependencies))
		for i, dep := range result.Dependencies {
			edges[i] = [2]int64{ids[dep.DependentStoryIndex], ids[dep.RequiredStoryIndex]}
		}
		if err := scheduler.New(tx).ValidateAcyclic(ctx, edges); err != nil {
			return err
		}
		for _, dep := range result.Dependencies {
			if err := tx.SaveDependency(ctx, &domain.Dependency{
				DependentStoryID: ids[dep.DependentStoryIndex],
				RequiredStoryID:  ids[dep.RequiredStoryIndex],
				Description:      dep.Description,
				CreatedAt:        now,
			}); err != nil {
				return err
			}
		}

		if _, err := scheduler.New(tx).UpdateReadiness(ctx); err != nil {
			return err
		}

		if err := statemachine.ApplyWorkItem(item, domain.WorkItemRefined); err != nil {
			return err
		}
		return tx.SaveWorkItem(ctx, item)
	})
}

// failWorkItem moves the item to error with the failure attached.
// Best effort: the original error must survive, so save problems are
// only logged.
func (o *Orchestrator) failWorkItem(ctx context.Context, item *domain.WorkItem, cause error) {
	if err := statemachine.ApplyWorkItem(item, domain.WorkItemError); err != nil {
		log.ErrorErr(log.CatOrch, "cannot mark work item errored", err, "id", item.ID)
		return
	}
	item.ErrorMessage = cause.Error()
	if err := o.store.SaveWorkItem(ctx, item); err != nil {
		log.ErrorErr(log.CatOrch, "saving errored work item failed", err, "id", item.ID)
	}
}

// SelectNext recomputes readiness and returns the next runnable story,
// or nil when nothing is ready.
func (o *Orchestrator) SelectNext(ctx context.Context) (*domain.DeveloperStory, error) {
	sched := scheduler.New(o.store)
	if _, err := sched.UpdateReadiness(ctx); err != nil {
		return nil, err
	}
	return sched.SelectNext(ctx)
}

// BlockedStories returns blocked stories with their unmet prerequisites.
func (o *Orchestrator) BlockedStories(ctx context.Context) ([]domain.BlockedStory, error) {
	return scheduler.New(o.store).BlockedStories(ctx)
}

// ListWorkItems returns work items matching the filter.
func (o *Orchestrator) ListWorkItems(ctx context.Context, filter domain.WorkItemFilter) ([]*domain.WorkItem, error) {
	return o.store.ListWorkItems(ctx, filter)
}

// StoriesByWorkItem returns a work item's stories.
func (o *Orchestrator) StoriesByWorkItem(ctx context.Context, workItemID int64) ([]*domain.DeveloperStory, error) {
	return o.store.StoriesByWorkItem(ctx, workItemID)
}

// LogsByStory returns a story's execution log.
func (o *Orchestrator) LogsByStory(ctx context.Context, storyID int64) ([]*domain.ExecutionLog, error) {
	return o.store.LogsByStory(ctx, storyID)
}

// DeleteWorkItem removes a work item and everything under it.
func (o *Orchestrator) DeleteWorkItem(ctx context.Context, id int64) error {
	if err := o.store.DeleteWorkItem(ctx, id); err != nil {
		return err
	}
	log.Info(log.CatOrch, "work item deleted", "id", id)
	return nil
}

// RetryWorkItem resets an errored work item to pending for another
// refinement attempt.
func (o *Orchestrator) RetryWorkItem(ctx context.Context, id int64) (*domain.WorkItem, error) {
	item, err := o.store.WorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := statemachine.ApplyWorkItem(item, domain.WorkItemPending); err != nil {
		return nil, err
	}
	if err := o.store.SaveWorkItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// RetryStory resets an errored story for another run. The story drops
// to pending and the next readiness pass re-derives ready or blocked
// from its prerequisites.
func (o *Orchestrator) RetryStory(ctx context.Context, id int64) (*domain.DeveloperStory, error) {
	var story *domain.DeveloperStory
	err := o.store.WithTransaction(ctx, func(tx domain.Store) error {
		var err error
		story, err = tx.Story(ctx, id)
		if err != nil {
			return err
		}
		if err := statemachine.ApplyStory(story, domain.StoryPending); err != nil {
			return err
		}
		if err := tx.SaveStory(ctx, story); err != nil {
			return err
		}
		if err := tx.AppendLog(ctx, domain.NewLog(story.ID, domain.EventRetried, "story reset for retry")); err != nil {
			return err
		}
		_, err = scheduler.New(tx).UpdateReadiness(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return story, nil
}

// isolator builds the workspace isolator from configuration.
func (o *Orchestrator) isolator() *workspace.Isolator {
	return workspace.NewIsolator(o.gitExec, o.cfg.Repo.WorktreeBasePath)
}

// recorder returns a workspace Recorder that appends audit entries to
// the story's execution log. Append failures are logged, not returned:
// workspace events are diagnostics, not control flow.
func (o *Orchestrator) recorder(ctx context.Context, storyID int64) workspace.Recorder {
	return func(event domain.EventType, details string, meta map[string]string) {
		entry := domain.NewLog(storyID, event, details)
		for k, v := range meta {
			entry.WithMeta(k, v)
		}
		if err := o.store.AppendLog(ctx, entry); err != nil {
			log.ErrorErr(log.CatOrch, "appending workspace event failed", err, "story", storyID)
		}
	}
}

// executorOptions maps config onto a single agent invocation.
func (o *Orchestrator) executorOptions() executor.Options {
	return executor.Options{
		APIKey:  o.cfg.Executor.APIKey,
		BaseURL: o.cfg.Executor.BaseURL,
		Model:   o.cfg.Executor.Model,
		Timeout: o.cfg.ExecutorTimeout(),
	}
}
