// Package source orchestrates the multi-source lifecycle: loading the core
// document, linking and refreshing platform extension and theme override
// sources, re-merging after every change, and persisting synthesized
// override fragments back through the repository gateway.
//
// Remote fetches run outside the manager lock; results are applied under the
// lock only if no newer load of the same source started in the meantime, so
// a slow fetch can never clobber a fresher one.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"tokencore/internal/merge"
	"tokencore/internal/override"
	"tokencore/internal/schema"
	"tokencore/internal/track"
	"tokencore/pkg/domain"
)

const (
	opLoadCore        = "load_core"
	opLinkSource      = "link_source"
	opRefreshSource   = "refresh_source"
	opUnlinkSource    = "unlink_source"
	opActivateTheme   = "activate_theme"
	opPersistOverride = "persist_override"
)

type linkState struct {
	ref        domain.SourceRef
	loc        Location
	status     LinkStatus
	err        error
	gen        uint64
	lastLoaded *time.Time
}

// Manager owns the link table and drives all document loads and merges.
type Manager struct {
	store   domain.DocumentStore
	gateway Gateway
	metrics MetricsRecorder
	tracer  Tracer
	nowFn   func() time.Time

	mu          sync.Mutex
	links       map[string]*linkState
	activeTheme string
	lastMerge   merge.Result
	lastSync    *time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics wires a metrics recorder.
func WithMetrics(rec MetricsRecorder) Option {
	return func(m *Manager) { m.metrics = rec }
}

// WithTracer wires a tracer.
func WithTracer(t Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithNowFunc overrides the clock, for deterministic timestamps in tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(m *Manager) { m.nowFn = fn }
}

// New constructs a manager over the given store and gateway.
func New(store domain.DocumentStore, gateway Gateway, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		gateway: gateway,
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		nowFn:   func() time.Time { return time.Now().UTC() },
		links:   make(map[string]*linkState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	m.metrics.Observe(ctx, op, err == nil, time.Since(start))
	return err
}

// LoadCore fetches, validates, and installs the core document, replacing the
// working copy and recapturing the global baseline. Loading the core starts
// a fresh editing session.
func (m *Manager) LoadCore(ctx context.Context, loc Location) error {
	return m.observe(ctx, opLoadCore, func(ctx context.Context) error {
		return m.loadCore(ctx, loc)
	})
}

func (m *Manager) loadCore(ctx context.Context, loc Location) error {
	ref := domain.CoreRef()
	gen := m.beginLoad(ref, loc)

	content, err := m.gateway.FetchFile(ctx, loc.RepoURI, loc.FilePath, loc.Branch)
	if err != nil {
		return m.failLoad(ref, gen, domain.SourceUnavailableError{Source: ref, Err: err})
	}
	doc, err := schema.ValidateCore([]byte(content))
	if err != nil {
		return m.failLoad(ref, gen, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[ref.Key()]
	if !ok || link.gen != gen {
		// Superseded by a newer load of the same source.
		return nil
	}
	entries, err := track.DocumentEntries(doc)
	if err != nil {
		link.status = StatusError
		link.err = err
		return err
	}
	now := m.nowFn()
	m.store.SetSourceDocument(ref, doc)
	m.store.SetSourceBaseline(domain.SourceBaseline{Ref: ref, CapturedAt: now, Entries: entries})
	if err := m.remergeLocked(ctx); err != nil {
		link.status = StatusError
		link.err = err
		return err
	}
	m.store.SetBaseline(m.store.ExportState())
	link.status = StatusSynced
	link.err = nil
	link.lastLoaded = &now
	m.lastSync = &now
	return nil
}

// LinkSource fetches, validates, and installs a platform extension or theme
// override source, then re-merges. The core document must be linked through
// LoadCore instead.
func (m *Manager) LinkSource(ctx context.Context, ref domain.SourceRef, loc Location) error {
	return m.observe(ctx, opLinkSource, func(ctx context.Context) error {
		return m.linkSource(ctx, ref, loc)
	})
}

func (m *Manager) linkSource(ctx context.Context, ref domain.SourceRef, loc Location) error {
	if ref.Type == domain.SourceCore {
		return fmt.Errorf("core source is loaded via LoadCore, not linked")
	}
	if ref.Type != domain.SourcePlatformExtension && ref.Type != domain.SourceThemeOverride {
		return fmt.Errorf("unknown source type %q", ref.Type)
	}
	gen := m.beginLoad(ref, loc)

	content, err := m.gateway.FetchFile(ctx, loc.RepoURI, loc.FilePath, loc.Branch)
	if err != nil {
		return m.failLoad(ref, gen, domain.SourceUnavailableError{Source: ref, Err: err})
	}
	doc, err := m.decodeLinked(ref, []byte(content))
	if err != nil {
		return m.failLoad(ref, gen, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[ref.Key()]
	if !ok || link.gen != gen {
		return nil
	}
	entries, err := track.DocumentEntries(doc)
	if err != nil {
		link.status = StatusError
		link.err = err
		return err
	}
	now := m.nowFn()
	m.store.SetSourceDocument(ref, doc)
	m.store.SetSourceBaseline(domain.SourceBaseline{Ref: ref, CapturedAt: now, Entries: entries})
	if err := m.remergeLocked(ctx); err != nil {
		link.status = StatusError
		link.err = err
		return err
	}
	m.store.SetBaseline(m.store.ExportState())
	link.status = StatusSynced
	link.err = nil
	link.lastLoaded = &now
	m.lastSync = &now
	return nil
}

// decodeLinked validates the payload for the link's kind and checks the
// document identity against the reference and the loaded core system.
func (m *Manager) decodeLinked(ref domain.SourceRef, raw []byte) (domain.Document, error) {
	switch ref.Type {
	case domain.SourcePlatformExtension:
		doc, err := schema.ValidatePlatformExtension(raw)
		if err != nil {
			return nil, err
		}
		if doc.PlatformID != ref.ID {
			return nil, fmt.Errorf("platform id %q does not match link %q", doc.PlatformID, ref.ID)
		}
		if err := m.checkSystem(doc.SystemID); err != nil {
			return nil, err
		}
		return doc, nil
	case domain.SourceThemeOverride:
		doc, err := schema.ValidateThemeOverride(raw)
		if err != nil {
			return nil, err
		}
		if doc.ThemeID != ref.ID {
			return nil, fmt.Errorf("theme id %q does not match link %q", doc.ThemeID, ref.ID)
		}
		if err := m.checkSystem(doc.SystemID); err != nil {
			return nil, err
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unknown source type %q", ref.Type)
	}
}

func (m *Manager) checkSystem(systemID string) error {
	core := m.coreDocument()
	if core == nil {
		return nil
	}
	if core.SystemID != systemID {
		return fmt.Errorf("document system %q does not match loaded system %q", systemID, core.SystemID)
	}
	return nil
}

// Refresh re-fetches a linked source from its recorded location.
func (m *Manager) Refresh(ctx context.Context, ref domain.SourceRef) error {
	return m.observe(ctx, opRefreshSource, func(ctx context.Context) error {
		m.mu.Lock()
		link, ok := m.links[ref.Key()]
		if !ok {
			m.mu.Unlock()
			return domain.ErrNotFound{What: "source link", ID: ref.Key()}
		}
		loc := link.loc
		m.mu.Unlock()
		if ref.Type == domain.SourceCore {
			return m.loadCore(ctx, loc)
		}
		return m.linkSource(ctx, ref, loc)
	})
}

// Unlink removes a platform or theme source, cascading removal of its stored
// document and per-source baseline, then re-merges. The resulting working
// copy change counts as a local edit; the global baseline is untouched.
func (m *Manager) Unlink(ctx context.Context, ref domain.SourceRef) error {
	return m.observe(ctx, opUnlinkSource, func(ctx context.Context) error {
		if ref.Type == domain.SourceCore {
			return fmt.Errorf("core source cannot be unlinked")
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.links[ref.Key()]; !ok {
			return domain.ErrNotFound{What: "source link", ID: ref.Key()}
		}
		delete(m.links, ref.Key())
		m.store.RemoveSourceDocument(ref)
		m.store.RemoveSourceBaseline(ref)
		if ref.Type == domain.SourceThemeOverride && m.activeTheme == ref.ID {
			m.activeTheme = ""
		}
		return m.remergeLocked(ctx)
	})
}

// ActivateTheme selects which linked theme participates in the merge. An
// empty id deactivates theming. Selection is a local choice and never
// touches the global baseline.
func (m *Manager) ActivateTheme(ctx context.Context, themeID string) error {
	return m.observe(ctx, opActivateTheme, func(ctx context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if themeID != "" {
			if _, ok := m.links[domain.ThemeRef(themeID).Key()]; !ok {
				return domain.ErrNotFound{What: "theme link", ID: themeID}
			}
		}
		m.activeTheme = themeID
		return m.remergeLocked(ctx)
	})
}

// PersistOverride merges a synthesized override fragment into its source
// document, writes the document back through the gateway, and recaptures
// baselines: a persisted edit is by definition in sync with the remote.
func (m *Manager) PersistOverride(ctx context.Context, payload override.Payload, message string) error {
	return m.observe(ctx, opPersistOverride, func(ctx context.Context) error {
		if payload.Empty() {
			return nil
		}
		var ref domain.SourceRef
		switch {
		case payload.PlatformExtension != nil:
			ref = payload.PlatformExtension.Ref()
		case payload.ThemeOverride != nil:
			ref = payload.ThemeOverride.Ref()
		default:
			return fmt.Errorf("core edits are written to the core document, not an override fragment")
		}

		m.mu.Lock()
		link, ok := m.links[ref.Key()]
		if !ok {
			m.mu.Unlock()
			return domain.ErrNotFound{What: "source link", ID: ref.Key()}
		}
		loc := link.loc
		var doc domain.Document
		if payload.PlatformExtension != nil {
			existing, _ := m.store.SourceDocument(ref)
			doc = mergePlatformFragment(existing, payload.PlatformExtension)
		} else {
			existing, _ := m.store.SourceDocument(ref)
			doc = mergeThemeFragment(existing, payload.ThemeOverride)
		}
		m.mu.Unlock()

		content, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s document: %w", doc.Kind(), err)
		}
		if err := m.gateway.WriteFile(ctx, loc.RepoURI, loc.FilePath, loc.Branch, string(content), message); err != nil {
			return domain.SourceUnavailableError{Source: ref, Err: err}
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		entries, err := track.DocumentEntries(doc)
		if err != nil {
			return err
		}
		now := m.nowFn()
		m.store.SetSourceDocument(ref, doc)
		m.store.SetSourceBaseline(domain.SourceBaseline{Ref: ref, CapturedAt: now, Entries: entries})
		if err := m.remergeLocked(ctx); err != nil {
			return err
		}
		m.store.SetBaseline(m.store.ExportState())
		if link, ok := m.links[ref.Key()]; ok {
			link.status = StatusSynced
			link.err = nil
			link.lastLoaded = &now
		}
		m.lastSync = &now
		return nil
	})
}

// Links returns the current link table, sorted by reference key.
func (m *Manager) Links() []Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Link, 0, len(m.links))
	for _, link := range m.links {
		out = append(out, Link{
			Ref:        link.ref,
			Location:   link.loc,
			Status:     link.status,
			Err:        link.err,
			LastLoaded: link.lastLoaded,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Key() < out[j].Ref.Key() })
	return out
}

// Merged returns the most recent merge result.
func (m *Manager) Merged() merge.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMerge
}

// LastSync returns the time of the last successful remote sync, if any.
func (m *Manager) LastSync() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync
}

// CoreLinked reports whether a core source has been loaded.
func (m *Manager) CoreLinked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.links[domain.CoreRef().Key()]
	return ok
}

func (m *Manager) beginLoad(ref domain.SourceRef, loc Location) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[ref.Key()]
	if !ok {
		link = &linkState{ref: ref}
		m.links[ref.Key()] = link
	}
	link.loc = loc
	link.status = StatusLoading
	link.err = nil
	link.gen++
	return link.gen
}

// failLoad records a load failure on the link if it is still the current
// generation. Previously loaded data stays intact.
func (m *Manager) failLoad(ref domain.SourceRef, gen uint64, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if link, ok := m.links[ref.Key()]; ok && link.gen == gen {
		link.status = StatusError
		link.err = err
	}
	return err
}

func (m *Manager) coreDocument() *domain.CoreDocument {
	doc, ok := m.store.SourceDocument(domain.CoreRef())
	if !ok {
		return nil
	}
	core, _ := doc.(*domain.CoreDocument)
	return core
}

// remergeLocked recomputes the merged view from the full stored document set
// and writes it to the working copy in one transaction. Platform extensions
// layer in core platform-list order; extensions for platforms the core does
// not declare follow, ordered by id.
func (m *Manager) remergeLocked(ctx context.Context) error {
	core := m.coreDocument()
	if core == nil {
		return nil
	}

	declared := make(map[string]bool, len(core.Platforms))
	var exts []*domain.PlatformExtensionDocument
	for _, p := range core.Platforms {
		declared[p.ID] = true
		if doc, ok := m.store.SourceDocument(domain.PlatformRef(p.ID)); ok {
			if ext, ok := doc.(*domain.PlatformExtensionDocument); ok {
				exts = append(exts, ext)
			}
		}
	}
	var extraIDs []string
	for _, link := range m.links {
		if link.ref.Type == domain.SourcePlatformExtension && !declared[link.ref.ID] {
			extraIDs = append(extraIDs, link.ref.ID)
		}
	}
	sort.Strings(extraIDs)
	for _, id := range extraIDs {
		if doc, ok := m.store.SourceDocument(domain.PlatformRef(id)); ok {
			if ext, ok := doc.(*domain.PlatformExtensionDocument); ok {
				exts = append(exts, ext)
			}
		}
	}

	var theme *domain.ThemeOverrideDocument
	if m.activeTheme != "" {
		if doc, ok := m.store.SourceDocument(domain.ThemeRef(m.activeTheme)); ok {
			theme, _ = doc.(*domain.ThemeOverrideDocument)
		}
	}

	res := merge.Merge(core, exts, theme)

	err := m.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		tokens := make([]domain.Token, 0, len(res.Resolved.Tokens))
		for _, rt := range res.Resolved.Tokens {
			tokens = append(tokens, rt.Token)
		}
		tx.SetTokens(tokens)
		tx.SetTokenCollections(core.TokenCollections)
		tx.SetModes(flattenModes(core.Dimensions))
		tx.SetDimensions(core.Dimensions)
		tx.SetPlatforms(core.Platforms)
		tx.SetThemes(core.Themes)
		tx.SetTaxonomies(core.Taxonomies)
		tx.SetAlgorithms(core.Algorithms)
		tx.SetValueTypes(core.ValueTypes)
		tx.SetTaxonomyOrder(core.NamingRules.TaxonomyOrder)
		tx.SetDimensionOrder(core.DimensionOrder)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write merged view: %w", err)
	}
	m.lastMerge = res
	return nil
}

func flattenModes(dimensions []domain.Dimension) []domain.Mode {
	seen := make(map[string]bool)
	var modes []domain.Mode
	for _, dim := range dimensions {
		for _, mode := range dim.Modes {
			if seen[mode.ID] {
				continue
			}
			seen[mode.ID] = true
			modes = append(modes, mode)
		}
	}
	return modes
}

// mergePlatformFragment layers a single-token fragment over the stored
// platform document, matching overrides by token id and mode-value entries
// by exact mode-id-set.
func mergePlatformFragment(existing domain.Document, frag *domain.PlatformExtensionDocument) *domain.PlatformExtensionDocument {
	base, _ := existing.(*domain.PlatformExtensionDocument)
	if base == nil {
		return cloneVia(frag)
	}
	out := cloneVia(base)
	for _, ov := range frag.TokenOverrides {
		i := -1
		for j := range out.TokenOverrides {
			if out.TokenOverrides[j].ID == ov.ID {
				i = j
				break
			}
		}
		if i < 0 {
			out.TokenOverrides = append(out.TokenOverrides, ov)
			continue
		}
		applyFragmentFields(&out.TokenOverrides[i], ov)
	}
	return out
}

func applyFragmentFields(dst *domain.TokenOverride, src domain.TokenOverride) {
	if src.DisplayName != nil {
		dst.DisplayName = src.DisplayName
	}
	if src.Description != nil {
		dst.Description = src.Description
	}
	if src.ResolvedValueTypeID != nil {
		dst.ResolvedValueTypeID = src.ResolvedValueTypeID
	}
	if src.Themeable != nil {
		dst.Themeable = src.Themeable
	}
	if src.Private != nil {
		dst.Private = src.Private
	}
	if src.Status != nil {
		dst.Status = src.Status
	}
	if len(src.ValuesByMode) > 0 {
		dst.ValuesByMode = mergeModeValues(dst.ValuesByMode, src.ValuesByMode)
	}
}

func mergeThemeFragment(existing domain.Document, frag *domain.ThemeOverrideDocument) *domain.ThemeOverrideDocument {
	base, _ := existing.(*domain.ThemeOverrideDocument)
	if base == nil {
		return cloneVia(frag)
	}
	out := cloneVia(base)
	for _, ov := range frag.TokenOverrides {
		i := -1
		for j := range out.TokenOverrides {
			if out.TokenOverrides[j].TokenID == ov.TokenID {
				i = j
				break
			}
		}
		if i < 0 {
			out.TokenOverrides = append(out.TokenOverrides, ov)
			continue
		}
		out.TokenOverrides[i].ValuesByMode = mergeModeValues(out.TokenOverrides[i].ValuesByMode, ov.ValuesByMode)
	}
	return out
}

func mergeModeValues(base, overrides []domain.ModeValue) []domain.ModeValue {
	out := make([]domain.ModeValue, 0, len(base)+len(overrides))
	for _, mv := range base {
		out = append(out, mv.Clone())
	}
	for _, ov := range overrides {
		replaced := false
		for i := range out {
			if out[i].ModeKey() == ov.ModeKey() {
				out[i] = ov.Clone()
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, ov.Clone())
		}
	}
	return out
}

func cloneVia[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		cp := *v
		return &cp
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		cp := *v
		return &cp
	}
	return out
}
