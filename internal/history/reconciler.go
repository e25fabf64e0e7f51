package history

import (
	"sync"

	"github.com/examportal/realtime-platform/internal/dedup"
	"github.com/examportal/realtime-platform/internal/model"
)

// Reconciler owns a consumer's event log across the snapshot/live-stream
// boundary. Push events that arrive before the snapshot resolves are queued
// and merged in after it installs, through the same dedup rules, so a live
// event cannot be silently duplicated by the history rows that follow it.
type Reconciler struct {
	mu        sync.Mutex
	installed bool
	log       dedup.Log
	queued    []model.Event
}

// NewReconciler creates an empty reconciler awaiting its snapshot.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Push merges one live event and returns the updated log plus whether the
// event was inserted as a new entry. Before the snapshot installs the event
// is queued (inserted is false); a duplicate absorbed by the dedup rules
// also reports false.
func (r *Reconciler) Push(evt model.Event) (dedup.Log, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.installed {
		r.queued = append(r.queued, evt)
		return nil, false
	}

	before := len(r.log)
	r.log = dedup.Merge(r.log, evt)
	return r.log, len(r.log) > before
}

// Install seeds the log with the fetched snapshot, then drains everything
// queued while the fetch was in flight. A failed fetch installs nil: the
// consumer proceeds with live events only.
func (r *Reconciler) Install(snapshot []model.Event) dedup.Log {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log = dedup.MergeAll(nil, snapshot)
	r.log = dedup.MergeAll(r.log, r.queued)
	r.queued = nil
	r.installed = true
	return r.log
}

// Log returns the current log.
func (r *Reconciler) Log() dedup.Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log
}

// Installed reports whether the snapshot has been installed.
func (r *Reconciler) Installed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.installed
}
