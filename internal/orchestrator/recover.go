package orchestrator

import (
	"context"
	"time"

	"github.com/zjrosen/weave/internal/log"
	"github.com/zjrosen/weave/internal/scheduler"
	"github.com/zjrosen/weave/internal/stories/domain"
	"github.com/zjrosen/weave/internal/stories/statemachine"
)

// Recover resets stories orphaned by a crashed run. A story counts as
// orphaned when it is in_progress and its heartbeat is missing or
// older than the configured TTL; a live run stamps the heartbeat every
// 30 seconds.
//
// Orphans pass through error before returning to ready, which clears
// their run timestamps and error message; the session token survives
// so the retry resumes the conversation. Returns the number of stories
// recovered. Intended to run at process startup before any scheduling.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	ttl := o.cfg.HeartbeatTTL()
	cutoff := time.Now().UTC().Add(-ttl)

	recovered := 0
	err := o.store.WithTransaction(ctx, func(tx domain.Store) error {
		running, err := tx.StoriesByStatus(ctx, domain.StoryInProgress)
		if err != nil {
			return err
		}

		for _, story := range running {
			if story.LastHeartbeatAt != nil && story.LastHeartbeatAt.After(cutoff) {
				continue
			}

			// in_progress cannot reach ready directly; the orphan passes
			// through error, and the retry transition wipes its run state.
			if err := statemachine.ApplyStory(story, domain.StoryError); err != nil {
				return err
			}
			if err := statemachine.ApplyStory(story, domain.StoryReady); err != nil {
				return err
			}
			if err := tx.SaveStory(ctx, story); err != nil {
				return err
			}
			if err := tx.AppendLog(ctx, domain.NewLog(story.ID, domain.EventRetried,
				"recovered orphaned story after stale heartbeat")); err != nil {
				return err
			}
			recovered++
		}

		if recovered > 0 {
			if _, err := scheduler.New(tx).UpdateReadiness(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if recovered > 0 {
		log.Info(log.CatOrch, "crash recovery reset stories", "count", recovered)
	}
	return recovered, nil
}
