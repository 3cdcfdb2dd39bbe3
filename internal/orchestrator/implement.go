package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/weave/internal/executor"
	"github.com/zjrosen/weave/internal/log"
	"github.com/zjrosen/weave/internal/scheduler"
	"github.com/zjrosen/weave/internal/stories/domain"
	"github.com/zjrosen/weave/internal/stories/statemachine"
)

// heartbeatInterval is how often a running implementation stamps the
// story so crash recovery can tell a live run from a dead one.
const heartbeatInterval = 30 * time.Second

// ImplementationResult reports one implementation attempt.
type ImplementationResult struct {
	Story        *domain.DeveloperStory
	Run          *executor.Result
	Branch       string
	WorktreePath string
	Completed    bool
}

// Implement claims a ready story, runs the coding agent in the story's
// isolated workspace, and settles the outcome.
//
// Claiming and settling each run in their own transaction; the agent
// run itself happens outside any transaction since it can take
// minutes. The workspace is released on every exit path, including
// agent failure, so a later retry re-acquires it cleanly from the
// surviving branch.
func (o *Orchestrator) Implement(ctx context.Context, storyID int64) (*ImplementationResult, error) {
	return o.ImplementOn(ctx, storyID, "")
}

// ImplementOn is Implement with an explicit base branch for the story
// branch; empty falls back to the configured default branch.
func (o *Orchestrator) ImplementOn(ctx context.Context, storyID int64, baseBranch string) (*ImplementationResult, error) {
	if baseBranch == "" {
		baseBranch = o.cfg.Repo.DefaultBranch
	}

	ctx, span := o.tracer.Start(ctx, "weave.implement",
		trace.WithAttributes(attribute.Int64("story.id", storyID)))
	defer span.End()

	// Reject unrunnable stories before probing the agent binary so a
	// call against a terminal or blocked story never spawns a process.
	current, err := o.store.Story(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !statemachine.CanTransitionStory(current.Status, domain.StoryInProgress) {
		err := &domain.TransitionError{
			Entity: "story", From: current.Status.String(), To: domain.StoryInProgress.String(),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "story not runnable")
		return nil, err
	}

	if !o.executor.IsAvailable(ctx) {
		return nil, fmt.Errorf("%w: coding agent is not available", domain.ErrExecutor)
	}

	story, item, err := o.claim(ctx, storyID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return nil, err
	}

	ws, err := o.isolator().Acquire(ctx, story, baseBranch, o.recorder(ctx, story.ID))
	if err != nil {
		settleErr := o.settleFailure(ctx, story, item, err)
		if settleErr != nil {
			log.ErrorErr(log.CatOrch, "settling workspace failure", settleErr, "story", story.ID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "workspace acquisition failed")
		return nil, err
	}
	defer ws.Release()

	stopHeartbeat := o.startHeartbeat(ctx, story.ID)
	runResult, runErr := o.runAgent(ctx, story, ws.Path)
	stopHeartbeat()

	// The session token survives even failed runs so a retry can resume
	// the conversation.
	if runResult != nil && runResult.SessionID != "" && runResult.SessionID != story.SessionID {
		story.SessionID = runResult.SessionID
	}

	out := &ImplementationResult{
		Story:        story,
		Run:          runResult,
		Branch:       ws.Branch,
		WorktreePath: ws.Path,
	}

	if runErr != nil || !runResult.Success() {
		cause := runErr
		if cause == nil {
			cause = fmt.Errorf("%w: agent exited with code %d: %s",
				domain.ErrExecutor, runResult.ExitCode, firstLine(runResult.Stderr))
		}
		if err := o.settleFailure(ctx, story, item, cause); err != nil {
			return out, err
		}
		span.RecordError(cause)
		span.SetStatus(codes.Error, "agent run failed")
		return out, cause
	}

	if err := o.settleSuccess(ctx, story, item, runResult); err != nil {
		return out, err
	}
	out.Completed = true
	span.SetAttributes(attribute.String("story.session_id", story.SessionID))
	log.Info(log.CatOrch, "story implemented", "id", story.ID,
		"duration", runResult.Duration, "branch", ws.Branch)
	return out, nil
}

// claim atomically moves a ready story to in_progress and its work
// item along with it, enforcing the single-active-user-story rule.
func (o *Orchestrator) claim(ctx context.Context, storyID int64) (*domain.DeveloperStory, *domain.WorkItem, error) {
	var story *domain.DeveloperStory
	var item *domain.WorkItem

	err := o.store.WithTransaction(ctx, func(tx domain.Store) error {
		var err error
		story, err = tx.Story(ctx, storyID)
		if err != nil {
			return err
		}
		item, err = tx.WorkItem(ctx, story.WorkItemID)
		if err != nil {
			return err
		}

		if item.Type == domain.TypeUserStory {
			active, err := tx.InProgressUserStory(ctx)
			if err != nil {
				return err
			}
			if active != nil && active.ID != item.ID {
				return fmt.Errorf("%w: user story %d is already in progress",
					domain.ErrInvariantViolation, active.ID)
			}
		}

		if item.Status == domain.WorkItemRefined {
			if err := statemachine.ApplyWorkItem(item, domain.WorkItemInProgress); err != nil {
				return err
			}
			if err := tx.SaveWorkItem(ctx, item); err != nil {
				return err
			}
		} else if item.Status != domain.WorkItemInProgress {
			return &domain.TransitionError{
				Entity: "work item", From: item.Status.String(), To: domain.WorkItemInProgress.String(),
			}
		}

		if err := statemachine.ApplyStory(story, domain.StoryInProgress); err != nil {
			return err
		}
		now := time.Now().UTC()
		story.LastHeartbeatAt = &now
		if err := tx.SaveStory(ctx, story); err != nil {
			return err
		}

		resume := ""
		if story.SessionID != "" {
			resume = " (resuming session)"
		}
		return tx.AppendLog(ctx, domain.NewLog(story.ID, domain.EventStarted,
			"implementation started"+resume))
	})
	if err != nil {
		return nil, nil, err
	}
	return story, item, nil
}

// runAgent executes the agent, continuing the story's session when one
// exists.
func (o *Orchestrator) runAgent(ctx context.Context, story *domain.DeveloperStory, workDir string) (*executor.Result, error) {
	opts := o.executorOptions()
	if story.SessionID != "" {
		return o.executor.ContinueSession(ctx, story.SessionID, story.Instructions, workDir, opts)
	}
	return o.executor.Start(ctx, story.Instructions, workDir, opts)
}

// settleSuccess records completion, propagates readiness to dependents,
// and completes the work item when this was its last open story.
func (o *Orchestrator) settleSuccess(ctx context.Context, story *domain.DeveloperStory, item *domain.WorkItem, run *executor.Result) error {
	return o.store.WithTransaction(ctx, func(tx domain.Store) error {
		if err := statemachine.ApplyStory(story, domain.StoryCompleted); err != nil {
			return err
		}
		if err := tx.SaveStory(ctx, story); err != nil {
			return err
		}

		entry := domain.NewLog(story.ID, domain.EventCompleted, "implementation completed").
			WithMeta("duration_ms", strconv.FormatInt(run.Duration.Milliseconds(), 10)).
			WithMeta("exit_code", strconv.Itoa(run.ExitCode))
		if run.SessionID != "" {
			entry.WithMeta("session_id", run.SessionID)
		}
		if err := tx.AppendLog(ctx, entry); err != nil {
			return err
		}

		if _, err := scheduler.New(tx).UpdateReadiness(ctx); err != nil {
			return err
		}

		done, err := allStoriesCompleted(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		if done {
			if err := statemachine.ApplyWorkItem(item, domain.WorkItemCompleted); err != nil {
				return err
			}
			if err := tx.SaveWorkItem(ctx, item); err != nil {
				return err
			}
			log.Info(log.CatOrch, "work item completed", "id", item.ID)
		}
		return nil
	})
}

// settleFailure records the failure on the story. The work item stays
// in_progress; other ready stories of the item may still run, and the
// operator decides whether to retry.
func (o *Orchestrator) settleFailure(ctx context.Context, story *domain.DeveloperStory, _ *domain.WorkItem, cause error) error {
	return o.store.WithTransaction(ctx, func(tx domain.Store) error {
		if err := statemachine.ApplyStory(story, domain.StoryError); err != nil {
			return err
		}
		story.ErrorMessage = cause.Error()
		if err := tx.SaveStory(ctx, story); err != nil {
			return err
		}
		return tx.AppendLog(ctx, domain.NewLog(story.ID, domain.EventFailed,
			"implementation failed").WithError(cause.Error()))
	})
}

// startHeartbeat stamps the story periodically while the agent runs.
// The returned stop function is idempotent and waits for the goroutine
// to finish so no write races the settle transaction.
func (o *Orchestrator) startHeartbeat(ctx context.Context, storyID int64) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.beat(ctx, storyID)
			}
		}
	}()

	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		close(stop)
		<-done
	}
}

func (o *Orchestrator) beat(ctx context.Context, storyID int64) {
	story, err := o.store.Story(ctx, storyID)
	if err != nil {
		log.ErrorErr(log.CatOrch, "heartbeat load failed", err, "story", storyID)
		return
	}
	now := time.Now().UTC()
	story.LastHeartbeatAt = &now
	if err := o.store.SaveStory(ctx, story); err != nil {
		log.ErrorErr(log.CatOrch, "heartbeat save failed", err, "story", storyID)
	}
}

// allStoriesCompleted reports whether every story of the work item is
// completed.
func allStoriesCompleted(ctx context.Context, tx domain.Store, workItemID int64) (bool, error) {
	stories, err := tx.StoriesByWorkItem(ctx, workItemID)
	if err != nil {
		return false, err
	}
	for _, s := range stories {
		if s.Status != domain.StoryCompleted {
			return false, nil
		}
	}
	return true, nil
}

// firstLine trims agent stderr down to something that fits an error
// message.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
