// Package maintain runs a periodic gc/defrag/divergence-check scheduler
// for a Repo. Merge, defrag and gc remain callable operations; this
// package is what calls them on a schedule instead of on demand.
//
// Registry changelogs (the repo's own and every collection's) always use
// collection.RegistrySchema, so they can be swept generically. A leaf
// series' data schema is not discoverable from its changelog alone, so
// callers that want a series gc'd/defragged/merged automatically must
// Watch it with its schema; unwatched series are left to on-demand
// maintenance (e.g. the CLI's gc/defrag/merge commands).
package maintain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bertrandchenal/lakota/pkg/collection"
	"github.com/bertrandchenal/lakota/pkg/events"
	"github.com/bertrandchenal/lakota/pkg/gc"
	"github.com/bertrandchenal/lakota/pkg/log"
	"github.com/bertrandchenal/lakota/pkg/pod"
	"github.com/bertrandchenal/lakota/pkg/repo"
	"github.com/bertrandchenal/lakota/pkg/schema"
	"github.com/rs/zerolog"
)

// DefaultInterval is how often a Scheduler runs a maintenance cycle.
const DefaultInterval = 10 * time.Second

// watchedSeries is a (collection, label) pair the Scheduler is allowed to
// gc/defrag/merge, paired with the schema needed to do so.
type watchedSeries struct {
	collection string
	label      string
	schema     schema.Schema
}

// Scheduler runs periodic maintenance over a Repo.
type Scheduler struct {
	repo          *repo.Repo
	interval      time.Duration
	safetyHorizon time.Duration
	autoMerge     bool
	autoDefragAt  int // Log() length that triggers a defrag; 0 disables

	mu      sync.Mutex
	watched []watchedSeries

	logger zerolog.Logger
	stopCh chan struct{}
}

// NewScheduler returns a Scheduler for r, ticking every interval (or
// DefaultInterval if interval <= 0).
func NewScheduler(r *repo.Repo, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		repo:          r,
		interval:      interval,
		safetyHorizon: gc.DefaultSafetyHorizon,
		logger:        log.WithComponent("maintain"),
		stopCh:        make(chan struct{}),
	}
}

// SetSafetyHorizon overrides gc's default blob-age horizon.
func (s *Scheduler) SetSafetyHorizon(d time.Duration) { s.safetyHorizon = d }

// SetAutoMerge enables merging a watched series' heads when more than one
// is observed.
func (s *Scheduler) SetAutoMerge(enabled bool) { s.autoMerge = enabled }

// SetAutoDefragThreshold enables defragging a watched series once its log
// grows past n revisions; 0 disables auto-defrag.
func (s *Scheduler) SetAutoDefragThreshold(n int) { s.autoDefragAt = n }

// Watch registers label in collectionName for automatic merge/defrag,
// using s as that series' data schema.
func (s *Scheduler) Watch(collectionName, label string, sc schema.Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched = append(s.watched, watchedSeries{collection: collectionName, label: label, schema: sc})
}

// Start begins the maintenance loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop ends the maintenance loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("maintenance scheduler started")

	for {
		select {
		case <-ticker.C:
			if err := s.cycle(context.Background()); err != nil {
				log.Fail(s.logger, err, "maintenance cycle failed")
			}
		case <-s.stopCh:
			s.logger.Info().Msg("maintenance scheduler stopped")
			return
		}
	}
}

// cycle runs one maintenance pass: reachability across every registry and
// watched series, a sweep, divergence checks, and optional auto-merge and
// auto-defrag of watched series.
func (s *Scheduler) cycle(ctx context.Context) error {
	reachable := gc.NewReachable()

	if err := gc.CollectChangelog(ctx, s.repoPod(), collection.RegistrySchema, s.repo.Changelog(), reachable); err != nil {
		return fmt.Errorf("maintain: collect repo registry: %w", err)
	}

	entries, err := s.repo.Collections(ctx)
	if err != nil {
		return fmt.Errorf("maintain: list collections: %w", err)
	}
	for _, entry := range entries {
		col := collection.Open(s.repoPod(), entry.Label)
		if err := gc.CollectChangelog(ctx, s.repoPod(), collection.RegistrySchema, col.Changelog(), reachable); err != nil {
			return fmt.Errorf("maintain: collect collection %q registry: %w", entry.Label, err)
		}
		heads, err := col.Changelog().Heads(ctx)
		if err != nil {
			return fmt.Errorf("maintain: heads of collection %q: %w", entry.Label, err)
		}
		if len(heads) > 1 {
			s.repo.Events().Publish(&events.Event{Type: events.EventDivergenceDetected, Repo: s.repo.Name(), Collection: entry.Label, Message: fmt.Sprintf("%d divergent registry heads", len(heads))})
		}
	}

	s.mu.Lock()
	watched := append([]watchedSeries(nil), s.watched...)
	s.mu.Unlock()

	for _, w := range watched {
		if err := s.maintainWatched(ctx, w, reachable); err != nil {
			log.Fail(s.logger.With().Str("collection", w.collection).Str("label", w.label).Logger(), err, "watched series maintenance failed")
		}
	}

	deleted, err := gc.Sweep(ctx, s.repoPod(), reachable, s.safetyHorizon)
	if err != nil {
		return fmt.Errorf("maintain: sweep: %w", err)
	}
	if deleted > 0 {
		s.repo.Events().Publish(&events.Event{Type: events.EventGCCompleted, Repo: s.repo.Name(), Message: fmt.Sprintf("swept %d blobs", deleted)})
	}
	s.logger.Debug().Int("blobs_deleted", deleted).Int("watched", len(watched)).Msg("maintenance cycle complete")
	return nil
}

func (s *Scheduler) maintainWatched(ctx context.Context, w watchedSeries, reachable gc.Reachable) error {
	col, ok, err := s.repo.Collection(ctx, w.collection)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("collection %q not found", w.collection)
	}
	sr, err := col.OpenSeries(ctx, w.label, w.schema)
	if err != nil {
		return err
	}

	if err := gc.CollectChangelog(ctx, s.repoPod(), w.schema, sr.Changelog(), reachable); err != nil {
		return fmt.Errorf("collect series %q/%q: %w", w.collection, w.label, err)
	}

	heads, err := sr.Heads(ctx)
	if err != nil {
		return err
	}
	if len(heads) > 1 {
		s.repo.Events().Publish(&events.Event{Type: events.EventDivergenceDetected, Repo: s.repo.Name(), Collection: w.collection, Series: w.label, Message: fmt.Sprintf("%d divergent heads", len(heads))})
		if s.autoMerge {
			if _, err := sr.Merge(ctx, "maintain", time.Now().UnixMicro()); err != nil {
				return fmt.Errorf("merge series %q/%q: %w", w.collection, w.label, err)
			}
			s.repo.Events().Publish(&events.Event{Type: events.EventMergeCompleted, Repo: s.repo.Name(), Collection: w.collection, Series: w.label})
		}
	}

	if s.autoDefragAt > 0 {
		revisions, err := sr.Log(ctx)
		if err != nil {
			return err
		}
		if len(revisions) > s.autoDefragAt {
			if err := sr.Defrag(ctx, "maintain", time.Now().UnixMicro()); err != nil {
				return fmt.Errorf("defrag series %q/%q: %w", w.collection, w.label, err)
			}
			s.repo.Events().Publish(&events.Event{Type: events.EventDefragCompleted, Repo: s.repo.Name(), Collection: w.collection, Series: w.label})
		}
	}
	return nil
}

// repoPod exposes the Pod a Repo is backed by; maintenance needs raw Pod
// access for gc's global blob sweep.
func (s *Scheduler) repoPod() pod.Pod { return s.repo.Pod() }
