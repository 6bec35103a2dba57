package domain

import "context"

// StoreView provides read-only access to the working copy's collections.
type StoreView interface {
	Tokens() []Token
	TokenCollections() []TokenCollection
	Modes() []Mode
	Dimensions() []Dimension
	Platforms() []Platform
	Themes() []Theme
	Taxonomies() []Taxonomy
	Algorithms() []Algorithm
	ValueTypes() []ValueType
	TaxonomyOrder() []string
	DimensionOrder() []string
}

// Transaction exposes the collection writes a store implementation must
// support within an atomic scope. Each Set replaces the named collection
// wholesale; a transaction either commits every write or none of them, so a
// collection is never left half-written.
type Transaction interface {
	StoreView
	SetTokens([]Token)
	SetTokenCollections([]TokenCollection)
	SetModes([]Mode)
	SetDimensions([]Dimension)
	SetPlatforms([]Platform)
	SetThemes([]Theme)
	SetTaxonomies([]Taxonomy)
	SetAlgorithms([]Algorithm)
	SetValueTypes([]ValueType)
	SetTaxonomyOrder([]string)
	SetDimensionOrder([]string)
}

// DocumentStore is the durable working-copy storage: every entity collection
// plus the global baseline snapshot, per-source baselines, and the validated
// per-source documents. It mirrors the subset of store capabilities used by
// the merge, tracking, and source-management layers.
type DocumentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(StoreView) error) error

	// ExportState captures the working copy as an immutable snapshot value;
	// ImportState replaces it wholesale.
	ExportState() Snapshot
	ImportState(Snapshot)

	// Exactly one global baseline exists at a time; SetBaseline replaces it.
	Baseline() (Snapshot, bool)
	SetBaseline(Snapshot)

	SourceBaseline(SourceRef) (SourceBaseline, bool)
	SetSourceBaseline(SourceBaseline)
	RemoveSourceBaseline(SourceRef)

	SourceDocument(SourceRef) (Document, bool)
	SetSourceDocument(SourceRef, Document)
	RemoveSourceDocument(SourceRef)
}
