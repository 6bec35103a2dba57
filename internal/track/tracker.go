// Package track derives change-tracking state from the document store and a
// captured baseline: local-edit detection, numeric change counts, remote
// divergence, and per-source structural diffs. Every query recomputes from
// current state; nothing is cached between calls.
package track

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"tokencore/pkg/domain"
)

// PendingCounts carries externally-reported edit state that the tracker
// folds into its results but never recomputes itself: in-memory override
// changes not yet persisted, and staged configuration changes.
type PendingCounts struct {
	OverrideChanges int
	ConfigChanges   int
}

// Total returns the summed pending count.
func (p PendingCounts) Total() int { return p.OverrideChanges + p.ConfigChanges }

// SyncState describes the remote-sync preconditions for divergence checks.
type SyncState struct {
	Authenticated  bool
	SourceSelected bool
	LastSync       *time.Time
}

// State is the composite change-tracking summary consumed by editor chrome.
// Export is blocked only when local changes have also diverged from the
// remote baseline; an edit-then-revert working copy must not block export.
type State struct {
	HasLocalChanges     bool       `json:"hasLocalChanges"`
	HasGitHubDivergence bool       `json:"hasGitHubDivergence"`
	CanExport           bool       `json:"canExport"`
	ChangeCount         int        `json:"changeCount"`
	LastSync            *time.Time `json:"lastSync,omitempty"`
}

// Tracker reads the document store and its baselines on demand.
type Tracker struct {
	store   domain.DocumentStore
	pending func() PendingCounts
	sync    func() SyncState
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPendingCounts wires the callback reporting pending override and
// staged configuration changes.
func WithPendingCounts(fn func() PendingCounts) Option {
	return func(t *Tracker) { t.pending = fn }
}

// WithSyncState wires the callback reporting authentication and remote
// source selection.
func WithSyncState(fn func() SyncState) Option {
	return func(t *Tracker) { t.sync = fn }
}

// New constructs a tracker over the given store.
func New(store domain.DocumentStore, opts ...Option) *Tracker {
	t := &Tracker{
		store:   store,
		pending: func() PendingCounts { return PendingCounts{} },
		sync:    func() SyncState { return SyncState{} },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HasLocalChanges reports whether the working copy has diverged from the
// captured baseline, or pending override/configuration changes exist. A
// fresh load without a baseline has no changes by definition.
func (t *Tracker) HasLocalChanges(ctx context.Context) (bool, error) {
	baseline, ok := t.store.Baseline()
	if !ok {
		return false, nil
	}
	if t.pending().Total() > 0 {
		return true, nil
	}
	current := t.store.ExportState()
	return !snapshotsEqual(baseline, current), nil
}

// ChangeCount sums per-collection added/modified/removed counts keyed by
// entity id, adds 1 per ordered list (taxonomyOrder, dimensionOrder) that
// differs at all, and adds the externally-reported pending counts. An entity
// is counted at most once.
func (t *Tracker) ChangeCount(ctx context.Context) (int, error) {
	pending := t.pending().Total()
	baseline, ok := t.store.Baseline()
	if !ok {
		return pending, nil
	}
	current := t.store.ExportState()
	set := DiffSnapshots(baseline, current)
	return set.TotalChanges + pending, nil
}

// HasGitHubDivergence reports whether the current working copy differs from
// the baseline captured at the last sync. It short-circuits to false when
// unauthenticated, no remote source is selected, or no baseline exists:
// divergence is meaningless without all three. The comparison is against the
// captured baseline, never a live remote re-fetch; a remote edit made after
// capture stays invisible until the next explicit sync.
func (t *Tracker) HasGitHubDivergence(ctx context.Context) (bool, error) {
	sync := t.sync()
	if !sync.Authenticated || !sync.SourceSelected {
		return false, nil
	}
	baseline, ok := t.store.Baseline()
	if !ok {
		return false, nil
	}
	current := t.store.ExportState()
	return !snapshotsEqual(baseline, current), nil
}

// State assembles the composite tracking summary.
func (t *Tracker) State(ctx context.Context) (State, error) {
	local, err := t.HasLocalChanges(ctx)
	if err != nil {
		return State{}, err
	}
	divergence, err := t.HasGitHubDivergence(ctx)
	if err != nil {
		return State{}, err
	}
	count, err := t.ChangeCount(ctx)
	if err != nil {
		return State{}, err
	}
	return State{
		HasLocalChanges:     local,
		HasGitHubDivergence: divergence,
		CanExport:           !local || !divergence,
		ChangeCount:         count,
		LastSync:            t.sync().LastSync,
	}, nil
}

// DiffSource diffs the current content of one source against its captured
// per-source baseline, returning a structured change set keyed by entity id.
func (t *Tracker) DiffSource(ref domain.SourceRef) (domain.ChangeSet, error) {
	baseline, ok := t.store.SourceBaseline(ref)
	if !ok {
		return domain.ChangeSet{}, domain.ErrNotFound{What: "source baseline", ID: ref.Key()}
	}
	current := map[string]json.RawMessage{}
	if doc, ok := t.store.SourceDocument(ref); ok {
		entries, err := DocumentEntries(doc)
		if err != nil {
			return domain.ChangeSet{}, err
		}
		current = entries
	}
	return diffRaw(baseline.Entries, current), nil
}

// DocumentEntries serializes a document's token-level entries keyed by
// identity, the unit of per-source structural diffing. The switch over the
// document union is exhaustive: a new document kind fails loudly here.
func DocumentEntries(doc domain.Document) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	switch d := doc.(type) {
	case *domain.CoreDocument:
		for _, tok := range d.Tokens {
			raw, err := json.Marshal(tok)
			if err != nil {
				return nil, err
			}
			out[tok.ID] = raw
		}
	case *domain.PlatformExtensionDocument:
		for _, ov := range d.TokenOverrides {
			raw, err := json.Marshal(ov)
			if err != nil {
				return nil, err
			}
			out[ov.ID] = raw
		}
	case *domain.ThemeOverrideDocument:
		for _, ov := range d.TokenOverrides {
			raw, err := json.Marshal(ov)
			if err != nil {
				return nil, err
			}
			out[ov.TokenID] = raw
		}
	default:
		return nil, domain.ErrNotFound{What: "document kind", ID: string(doc.Kind())}
	}
	return out, nil
}

// DiffSnapshots computes the structural diff between two snapshots: keyed
// set comparison per entity collection plus a single change per ordered
// list that differs.
func DiffSnapshots(before, after domain.Snapshot) domain.ChangeSet {
	var set domain.ChangeSet
	set.Merge(diffKeyed(before.Tokens, after.Tokens))
	set.Merge(diffKeyed(before.TokenCollections, after.TokenCollections))
	set.Merge(diffKeyed(before.Modes, after.Modes))
	set.Merge(diffKeyed(before.Dimensions, after.Dimensions))
	set.Merge(diffKeyed(before.Platforms, after.Platforms))
	set.Merge(diffKeyed(before.Themes, after.Themes))
	set.Merge(diffKeyed(before.Taxonomies, after.Taxonomies))
	set.Merge(diffKeyed(before.Algorithms, after.Algorithms))
	set.Merge(diffKeyed(before.ValueTypes, after.ValueTypes))
	if !orderedEqual(before.TaxonomyOrder, after.TaxonomyOrder) {
		set.Merge(domain.ChangeSet{Modified: []string{"taxonomyOrder"}, TotalChanges: 1})
	}
	if !orderedEqual(before.DimensionOrder, after.DimensionOrder) {
		set.Merge(domain.ChangeSet{Modified: []string{"dimensionOrder"}, TotalChanges: 1})
	}
	return set
}

// snapshotsEqual compares every tracked collection and ordered list,
// ignoring capture timestamps.
func snapshotsEqual(a, b domain.Snapshot) bool {
	return collectionEqual(a.Tokens, b.Tokens) &&
		collectionEqual(a.TokenCollections, b.TokenCollections) &&
		collectionEqual(a.Modes, b.Modes) &&
		collectionEqual(a.Dimensions, b.Dimensions) &&
		collectionEqual(a.Platforms, b.Platforms) &&
		collectionEqual(a.Themes, b.Themes) &&
		collectionEqual(a.Taxonomies, b.Taxonomies) &&
		collectionEqual(a.Algorithms, b.Algorithms) &&
		collectionEqual(a.ValueTypes, b.ValueTypes) &&
		orderedEqual(a.TaxonomyOrder, b.TaxonomyOrder) &&
		orderedEqual(a.DimensionOrder, b.DimensionOrder)
}

func collectionEqual[T any](a, b map[string]T) bool {
	if len(a) != len(b) {
		return false
	}
	for id, av := range a {
		bv, ok := b[id]
		if !ok || !domain.StructurallyEqual(av, bv) {
			return false
		}
	}
	return true
}

func orderedEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// diffKeyed partitions ids into added, modified, and removed. Two entities
// with the same id are modified iff their structural serializations differ.
func diffKeyed[T any](before, after map[string]T) domain.ChangeSet {
	var set domain.ChangeSet
	for id, bv := range before {
		av, ok := after[id]
		if !ok {
			set.Removed = append(set.Removed, id)
			continue
		}
		if !domain.StructurallyEqual(bv, av) {
			set.Modified = append(set.Modified, id)
		}
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			set.Added = append(set.Added, id)
		}
	}
	sort.Strings(set.Added)
	sort.Strings(set.Modified)
	sort.Strings(set.Removed)
	set.TotalChanges = len(set.Added) + len(set.Modified) + len(set.Removed)
	return set
}

func diffRaw(before, after map[string]json.RawMessage) domain.ChangeSet {
	return diffKeyed(before, after)
}
