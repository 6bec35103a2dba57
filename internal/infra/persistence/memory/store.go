// Package memory provides the in-memory implementation of the document
// store used for tests and ephemeral environments. Durable backends wrap it
// and snapshot its state after successful writes.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"tokencore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.DocumentStore = (*Store)(nil)

type state struct {
	tokens           []domain.Token
	tokenCollections []domain.TokenCollection
	modes            []domain.Mode
	dimensions       []domain.Dimension
	platforms        []domain.Platform
	themes           []domain.Theme
	taxonomies       []domain.Taxonomy
	algorithms       []domain.Algorithm
	valueTypes       []domain.ValueType
	taxonomyOrder    []string
	dimensionOrder   []string

	baseline        *domain.Snapshot
	sourceBaselines map[string]domain.SourceBaseline
	sourceDocuments map[string]domain.Document
}

func newState() state {
	return state{
		sourceBaselines: make(map[string]domain.SourceBaseline),
		sourceDocuments: make(map[string]domain.Document),
	}
}

func (s state) clone() state {
	cp := newState()
	cp.tokens = make([]domain.Token, len(s.tokens))
	for i, t := range s.tokens {
		cp.tokens[i] = t.Clone()
	}
	cp.tokenCollections = append([]domain.TokenCollection(nil), s.tokenCollections...)
	cp.modes = append([]domain.Mode(nil), s.modes...)
	cp.dimensions = append([]domain.Dimension(nil), s.dimensions...)
	cp.platforms = append([]domain.Platform(nil), s.platforms...)
	cp.themes = append([]domain.Theme(nil), s.themes...)
	cp.taxonomies = append([]domain.Taxonomy(nil), s.taxonomies...)
	cp.algorithms = append([]domain.Algorithm(nil), s.algorithms...)
	cp.valueTypes = append([]domain.ValueType(nil), s.valueTypes...)
	cp.taxonomyOrder = append([]string(nil), s.taxonomyOrder...)
	cp.dimensionOrder = append([]string(nil), s.dimensionOrder...)
	if s.baseline != nil {
		b := s.baseline.Clone()
		cp.baseline = &b
	}
	for k, v := range s.sourceBaselines {
		cp.sourceBaselines[k] = v.Clone()
	}
	for k, v := range s.sourceDocuments {
		cp.sourceDocuments[k] = CloneDocument(v)
	}
	return cp
}

// CloneDocument deep-copies a document through its JSON form, preserving the
// concrete variant.
func CloneDocument(doc domain.Document) domain.Document {
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Errorf("memory store clone document: %w", err))
	}
	out, err := DecodeDocument(doc.Kind(), raw)
	if err != nil {
		panic(fmt.Errorf("memory store clone document: %w", err))
	}
	return out
}

// DecodeDocument unmarshals raw into the concrete variant for the kind.
func DecodeDocument(kind domain.DocumentKind, raw []byte) (domain.Document, error) {
	switch kind {
	case domain.KindCore:
		out := &domain.CoreDocument{}
		return out, json.Unmarshal(raw, out)
	case domain.KindPlatformExtension:
		out := &domain.PlatformExtensionDocument{}
		return out, json.Unmarshal(raw, out)
	case domain.KindThemeOverride:
		out := &domain.ThemeOverrideDocument{}
		return out, json.Unmarshal(raw, out)
	default:
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
}

// Store is the in-memory document store. All reads return clones; writers
// mutate a transactional copy committed atomically.
type Store struct {
	mu    sync.RWMutex
	state state
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *Store) SetNowFunc(fn func() time.Time) { s.nowFn = fn }

// NowFunc exposes the store clock.
func (s *Store) NowFunc() func() time.Time { return s.nowFn }

// Transaction is a mutation set applied to a cloned state and committed as a
// whole; a failed transaction leaves no collection half-written.
type Transaction struct {
	state *state
}

var _ domain.Transaction = (*Transaction)(nil)

// Tokens returns the transaction's token collection.
func (tx *Transaction) Tokens() []domain.Token {
	out := make([]domain.Token, len(tx.state.tokens))
	for i, t := range tx.state.tokens {
		out[i] = t.Clone()
	}
	return out
}

// TokenCollections returns the token collection records.
func (tx *Transaction) TokenCollections() []domain.TokenCollection {
	return append([]domain.TokenCollection(nil), tx.state.tokenCollections...)
}

// Modes returns all modes.
func (tx *Transaction) Modes() []domain.Mode { return append([]domain.Mode(nil), tx.state.modes...) }

// Dimensions returns all dimensions.
func (tx *Transaction) Dimensions() []domain.Dimension {
	return append([]domain.Dimension(nil), tx.state.dimensions...)
}

// Platforms returns all platforms.
func (tx *Transaction) Platforms() []domain.Platform {
	return append([]domain.Platform(nil), tx.state.platforms...)
}

// Themes returns all themes.
func (tx *Transaction) Themes() []domain.Theme {
	return append([]domain.Theme(nil), tx.state.themes...)
}

// Taxonomies returns all taxonomies.
func (tx *Transaction) Taxonomies() []domain.Taxonomy {
	return append([]domain.Taxonomy(nil), tx.state.taxonomies...)
}

// Algorithms returns all algorithms.
func (tx *Transaction) Algorithms() []domain.Algorithm {
	return append([]domain.Algorithm(nil), tx.state.algorithms...)
}

// ValueTypes returns the resolved-value-type registry.
func (tx *Transaction) ValueTypes() []domain.ValueType {
	return append([]domain.ValueType(nil), tx.state.valueTypes...)
}

// TaxonomyOrder returns the ordered taxonomy id list.
func (tx *Transaction) TaxonomyOrder() []string {
	return append([]string(nil), tx.state.taxonomyOrder...)
}

// DimensionOrder returns the ordered dimension id list.
func (tx *Transaction) DimensionOrder() []string {
	return append([]string(nil), tx.state.dimensionOrder...)
}

// SetTokens replaces the token collection wholesale.
func (tx *Transaction) SetTokens(tokens []domain.Token) {
	tx.state.tokens = make([]domain.Token, len(tokens))
	for i, t := range tokens {
		tx.state.tokens[i] = t.Clone()
	}
}

// SetTokenCollections replaces the token collection records.
func (tx *Transaction) SetTokenCollections(v []domain.TokenCollection) {
	tx.state.tokenCollections = append([]domain.TokenCollection(nil), v...)
}

// SetModes replaces the mode collection.
func (tx *Transaction) SetModes(v []domain.Mode) {
	tx.state.modes = append([]domain.Mode(nil), v...)
}

// SetDimensions replaces the dimension collection.
func (tx *Transaction) SetDimensions(v []domain.Dimension) {
	tx.state.dimensions = append([]domain.Dimension(nil), v...)
}

// SetPlatforms replaces the platform collection.
func (tx *Transaction) SetPlatforms(v []domain.Platform) {
	tx.state.platforms = append([]domain.Platform(nil), v...)
}

// SetThemes replaces the theme collection.
func (tx *Transaction) SetThemes(v []domain.Theme) {
	tx.state.themes = append([]domain.Theme(nil), v...)
}

// SetTaxonomies replaces the taxonomy collection.
func (tx *Transaction) SetTaxonomies(v []domain.Taxonomy) {
	tx.state.taxonomies = append([]domain.Taxonomy(nil), v...)
}

// SetAlgorithms replaces the algorithm collection.
func (tx *Transaction) SetAlgorithms(v []domain.Algorithm) {
	tx.state.algorithms = append([]domain.Algorithm(nil), v...)
}

// SetValueTypes replaces the resolved-value-type registry.
func (tx *Transaction) SetValueTypes(v []domain.ValueType) {
	tx.state.valueTypes = append([]domain.ValueType(nil), v...)
}

// SetTaxonomyOrder replaces the ordered taxonomy id list.
func (tx *Transaction) SetTaxonomyOrder(v []string) {
	tx.state.taxonomyOrder = append([]string(nil), v...)
}

// SetDimensionOrder replaces the ordered dimension id list.
func (tx *Transaction) SetDimensionOrder(v []string) {
	tx.state.dimensionOrder = append([]string(nil), v...)
}

// RunInTransaction executes fn within a transactional copy of the store
// state, committing only on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	tx := &Transaction{state: &next}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = next
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(domain.StoreView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(&Transaction{state: &snapshot})
}

// ExportState captures the working copy as a snapshot value.
func (s *Store) ExportState() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotOf(s.state, s.nowFn())
}

func snapshotOf(st state, at time.Time) domain.Snapshot {
	snap := domain.Snapshot{
		Tokens:           make(map[string]domain.Token, len(st.tokens)),
		TokenCollections: make(map[string]domain.TokenCollection, len(st.tokenCollections)),
		Modes:            make(map[string]domain.Mode, len(st.modes)),
		Dimensions:       make(map[string]domain.Dimension, len(st.dimensions)),
		Platforms:        make(map[string]domain.Platform, len(st.platforms)),
		Themes:           make(map[string]domain.Theme, len(st.themes)),
		Taxonomies:       make(map[string]domain.Taxonomy, len(st.taxonomies)),
		Algorithms:       make(map[string]domain.Algorithm, len(st.algorithms)),
		ValueTypes:       make(map[string]domain.ValueType, len(st.valueTypes)),
		TaxonomyOrder:    append([]string(nil), st.taxonomyOrder...),
		DimensionOrder:   append([]string(nil), st.dimensionOrder...),
		CapturedAt:       at,
	}
	for _, t := range st.tokens {
		snap.Tokens[t.ID] = t.Clone()
	}
	for _, v := range st.tokenCollections {
		snap.TokenCollections[v.ID] = v
	}
	for _, v := range st.modes {
		snap.Modes[v.ID] = v
	}
	for _, v := range st.dimensions {
		snap.Dimensions[v.ID] = v
	}
	for _, v := range st.platforms {
		snap.Platforms[v.ID] = v
	}
	for _, v := range st.themes {
		snap.Themes[v.ID] = v
	}
	for _, v := range st.taxonomies {
		snap.Taxonomies[v.ID] = v
	}
	for _, v := range st.algorithms {
		snap.Algorithms[v.ID] = v
	}
	for _, v := range st.valueTypes {
		snap.ValueTypes[v.ID] = v
	}
	return snap
}

// ImportState replaces the working copy's collections from a snapshot.
// Entity ordering is normalized by id. Baselines and source documents are
// untouched.
func (s *Store) ImportState(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.tokens = sortedValues(snap.Tokens, func(t domain.Token) string { return t.ID })
	s.state.tokenCollections = sortedValues(snap.TokenCollections, func(v domain.TokenCollection) string { return v.ID })
	s.state.modes = sortedValues(snap.Modes, func(v domain.Mode) string { return v.ID })
	s.state.dimensions = sortedValues(snap.Dimensions, func(v domain.Dimension) string { return v.ID })
	s.state.platforms = sortedValues(snap.Platforms, func(v domain.Platform) string { return v.ID })
	s.state.themes = sortedValues(snap.Themes, func(v domain.Theme) string { return v.ID })
	s.state.taxonomies = sortedValues(snap.Taxonomies, func(v domain.Taxonomy) string { return v.ID })
	s.state.algorithms = sortedValues(snap.Algorithms, func(v domain.Algorithm) string { return v.ID })
	s.state.valueTypes = sortedValues(snap.ValueTypes, func(v domain.ValueType) string { return v.ID })
	s.state.taxonomyOrder = append([]string(nil), snap.TaxonomyOrder...)
	s.state.dimensionOrder = append([]string(nil), snap.DimensionOrder...)
}

func sortedValues[T any](in map[string]T, id func(T) string) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}

// Baseline returns the global baseline snapshot, when captured.
func (s *Store) Baseline() (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.baseline == nil {
		return domain.Snapshot{}, false
	}
	return s.state.baseline.Clone(), true
}

// SetBaseline replaces the global baseline wholesale.
func (s *Store) SetBaseline(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := snap.Clone()
	s.state.baseline = &b
}

// SourceBaseline returns the per-source baseline for the reference.
func (s *Store) SourceBaseline(ref domain.SourceRef) (domain.SourceBaseline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.sourceBaselines[ref.Key()]
	if !ok {
		return domain.SourceBaseline{}, false
	}
	return b.Clone(), true
}

// SetSourceBaseline replaces the baseline keyed by the baseline's reference.
func (s *Store) SetSourceBaseline(b domain.SourceBaseline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.sourceBaselines[b.Ref.Key()] = b.Clone()
}

// RemoveSourceBaseline drops the baseline for the reference.
func (s *Store) RemoveSourceBaseline(ref domain.SourceRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.sourceBaselines, ref.Key())
}

// SourceDocument returns the validated document stored for the reference.
func (s *Store) SourceDocument(ref domain.SourceRef) (domain.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.state.sourceDocuments[ref.Key()]
	if !ok {
		return nil, false
	}
	return CloneDocument(doc), true
}

// SetSourceDocument stores the validated document keyed by source.
func (s *Store) SetSourceDocument(ref domain.SourceRef, doc domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.sourceDocuments[ref.Key()] = CloneDocument(doc)
}

// RemoveSourceDocument drops the stored document for the reference.
func (s *Store) RemoveSourceDocument(ref domain.SourceRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.sourceDocuments, ref.Key())
}

// SourceDocuments lists stored documents in key order, for persistence
// layers that serialize the full store state.
func (s *Store) SourceDocuments() []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.state.sourceDocuments))
	for k := range s.state.sourceDocuments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.Document, 0, len(keys))
	for _, k := range keys {
		out = append(out, CloneDocument(s.state.sourceDocuments[k]))
	}
	return out
}

// SourceBaselines lists per-source baselines in key order.
func (s *Store) SourceBaselines() []domain.SourceBaseline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.state.sourceBaselines))
	for k := range s.state.sourceBaselines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.SourceBaseline, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.state.sourceBaselines[k].Clone())
	}
	return out
}
