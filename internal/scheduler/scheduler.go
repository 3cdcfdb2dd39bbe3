// Package scheduler answers "what runs next?" and keeps story statuses
// consistent with their position in the dependency graph.
//
// All methods operate on the store they are handed; callers that need
// atomicity pass a transaction-scoped store.
package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/zjrosen/weave/internal/log"
	"github.com/zjrosen/weave/internal/stories/domain"
	"github.com/zjrosen/weave/internal/stories/statemachine"
)

// Scheduler computes readiness and selects the next runnable story.
type Scheduler struct {
	store domain.Store
}

// New creates a Scheduler over the given store.
func New(store domain.Store) *Scheduler {
	return &Scheduler{store: store}
}

// graph is an in-memory snapshot of the story DAG for one pass.
type graph struct {
	stories  map[int64]*domain.DeveloperStory
	requires map[int64][]int64 // story -> its prerequisites
	enables  map[int64][]int64 // story -> stories it unblocks
}

func (s *Scheduler) loadGraph(ctx context.Context) (*graph, error) {
	g := &graph{
		stories:  make(map[int64]*domain.DeveloperStory),
		requires: make(map[int64][]int64),
		enables:  make(map[int64][]int64),
	}

	for _, status := range []domain.StoryStatus{
		domain.StoryPending, domain.StoryBlocked, domain.StoryReady,
		domain.StoryInProgress, domain.StoryCompleted, domain.StoryError,
	} {
		stories, err := s.store.StoriesByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		for _, st := range stories {
			g.stories[st.ID] = st
		}
	}

	edges, err := s.store.AllDependencies(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if _, ok := g.stories[e.RequiredStoryID]; !ok {
			return nil, fmt.Errorf("%w: dependency %d references missing required story %d",
				domain.ErrInvariantViolation, e.ID, e.RequiredStoryID)
		}
		if _, ok := g.stories[e.DependentStoryID]; !ok {
			return nil, fmt.Errorf("%w: dependency %d references missing dependent story %d",
				domain.ErrInvariantViolation, e.ID, e.DependentStoryID)
		}
		g.requires[e.DependentStoryID] = append(g.requires[e.DependentStoryID], e.RequiredStoryID)
		g.enables[e.RequiredStoryID] = append(g.enables[e.RequiredStoryID], e.DependentStoryID)
	}
	return g, nil
}

// topoOrder runs Kahn's algorithm over the snapshot, required before
// dependent. Fails with ErrCycle when edges remain after the queue
// drains.
func (g *graph) topoOrder() ([]int64, error) {
	indegree := make(map[int64]int, len(g.stories))
	for id := range g.stories {
		indegree[id] = len(g.requires[id])
	}

	var queue []int64
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	// Deterministic pass order.
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })

	order := make([]int64, 0, len(g.stories))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		next := append([]int64(nil), g.enables[id]...)
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(g.stories) {
		return nil, fmt.Errorf("%w: %d stories unreachable in topological order",
			domain.ErrCycle, len(g.stories)-len(order))
	}
	return order, nil
}

// UpdateReadiness evaluates every pending, blocked, and ready story
// against its prerequisites and applies the indicated transitions:
// all prerequisites completed promotes pending/blocked to ready; an
// unmet prerequisite demotes pending and ready stories to blocked.
// Returns the number of transitions applied.
//
// The pass runs in topological order so a single linear sweep reaches a
// fixed point; running it again with no intervening mutation applies
// zero transitions. A cyclic graph fails with ErrCycle before any
// mutation.
func (s *Scheduler) UpdateReadiness(ctx context.Context) (int, error) {
	g, err := s.loadGraph(ctx)
	if err != nil {
		return 0, err
	}

	order, err := g.topoOrder()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, id := range order {
		story := g.stories[id]

		var target domain.StoryStatus
		switch story.Status {
		case domain.StoryPending, domain.StoryBlocked, domain.StoryReady:
			if g.satisfied(id) {
				target = domain.StoryReady
			} else {
				target = domain.StoryBlocked
			}
		default:
			continue
		}
		if target == story.Status {
			continue
		}
		// A pending story with met prerequisites goes straight to ready;
		// a ready story that acquired a new unmet prerequisite drops back
		// to blocked.
		if err := statemachine.ApplyStory(story, target); err != nil {
			return applied, err
		}
		if err := s.store.SaveStory(ctx, story); err != nil {
			return applied, err
		}
		applied++
	}

	if applied > 0 {
		log.Debug(log.CatSched, "readiness updated", "transitions", applied)
	}
	return applied, nil
}

// satisfied reports whether every prerequisite of the story is
// completed, against the in-pass snapshot.
func (g *graph) satisfied(id int64) bool {
	for _, req := range g.requires[id] {
		if g.stories[req].Status != domain.StoryCompleted {
			return false
		}
	}
	return true
}

// SelectNext returns the single runnable story minimal by the key
// (workItem.priority, storyType, story.priority, id), or nil when no
// story is ready. It does not mutate state; claiming is the caller's
// transaction.
func (s *Scheduler) SelectNext(ctx context.Context) (*domain.DeveloperStory, error) {
	ready, err := s.store.StoriesByStatus(ctx, domain.StoryReady)
	if err != nil {
		return nil, err
	}
	if len(ready) == 0 {
		return nil, nil
	}

	itemPriority := make(map[int64]int)
	for _, st := range ready {
		if _, ok := itemPriority[st.WorkItemID]; ok {
			continue
		}
		item, err := s.store.WorkItem(ctx, st.WorkItemID)
		if err != nil {
			return nil, fmt.Errorf("%w: ready story %d has no work item: %v",
				domain.ErrInvariantViolation, st.ID, err)
		}
		itemPriority[st.WorkItemID] = item.Priority
	}

	sort.SliceStable(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if pa, pb := itemPriority[a.WorkItemID], itemPriority[b.WorkItemID]; pa != pb {
			return pa < pb
		}
		if a.StoryType != b.StoryType {
			return a.StoryType < b.StoryType
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})

	// Defense in depth: re-check prerequisites from the store before
	// handing the story out.
	for _, st := range ready {
		deps, err := s.store.DependenciesOf(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		met := true
		for _, d := range deps {
			if !d.Satisfied() {
				met = false
				break
			}
		}
		if met {
			log.Debug(log.CatSched, "selected story", "id", st.ID, "title", st.Title)
			return st, nil
		}
	}
	return nil, nil
}

// BlockedStories returns every blocked story paired with its unmet
// prerequisites, for operator diagnostics.
func (s *Scheduler) BlockedStories(ctx context.Context) ([]domain.BlockedStory, error) {
	blocked, err := s.store.BlockedStories(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.BlockedStory, 0, len(blocked))
	for _, st := range blocked {
		deps, err := s.store.DependenciesOf(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		var unmet []domain.ResolvedDependency
		for _, d := range deps {
			if !d.Satisfied() {
				unmet = append(unmet, d)
			}
		}
		out = append(out, domain.BlockedStory{Story: st, Unmet: unmet})
	}
	return out, nil
}

// ValidateAcyclic checks that adding the candidate edges to the current
// graph keeps it a DAG, without persisting anything. Edge pairs are
// (dependent, required) story ids.
func (s *Scheduler) ValidateAcyclic(ctx context.Context, edges [][2]int64) error {
	g, err := s.loadGraph(ctx)
	if err != nil {
		return err
	}
	for _, e := range edges {
		g.requires[e[0]] = append(g.requires[e[0]], e[1])
		g.enables[e[1]] = append(g.enables[e[1]], e[0])
	}
	_, err = g.topoOrder()
	return err
}
