package domain

import (
	"encoding/json"
	"time"
)

// Snapshot is an immutable, timestamped copy of the full current-data shape,
// captured at the moment a document set is freshly loaded. It serves purely
// as the left-hand side of diffs. Snapshots are replaced wholesale when new
// data loads, never merged or mutated in place.
type Snapshot struct {
	Tokens           map[string]Token           `json:"tokens"`
	TokenCollections map[string]TokenCollection `json:"tokenCollections"`
	Modes            map[string]Mode            `json:"modes"`
	Dimensions       map[string]Dimension       `json:"dimensions"`
	Platforms        map[string]Platform        `json:"platforms"`
	Themes           map[string]Theme           `json:"themes"`
	Taxonomies       map[string]Taxonomy        `json:"taxonomies"`
	Algorithms       map[string]Algorithm       `json:"algorithms"`
	ValueTypes       map[string]ValueType       `json:"resolvedValueTypes"`
	TaxonomyOrder    []string                   `json:"taxonomyOrder"`
	DimensionOrder   []string                   `json:"dimensionOrder"`
	CapturedAt       time.Time                  `json:"capturedAt"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	cp := s
	cp.Tokens = make(map[string]Token, len(s.Tokens))
	for k, v := range s.Tokens {
		cp.Tokens[k] = v.Clone()
	}
	cp.TokenCollections = cloneMap(s.TokenCollections)
	cp.Modes = cloneMap(s.Modes)
	cp.Dimensions = cloneMap(s.Dimensions)
	cp.Platforms = cloneMap(s.Platforms)
	cp.Themes = cloneMap(s.Themes)
	cp.Taxonomies = cloneMap(s.Taxonomies)
	cp.Algorithms = cloneMap(s.Algorithms)
	cp.ValueTypes = cloneMap(s.ValueTypes)
	cp.TaxonomyOrder = append([]string(nil), s.TaxonomyOrder...)
	cp.DimensionOrder = append([]string(nil), s.DimensionOrder...)
	return cp
}

func cloneMap[T any](in map[string]T) map[string]T {
	if in == nil {
		return nil
	}
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SourceBaseline is a per-source baseline keyed by (sourceType, sourceId):
// the source document's entries serialized per entity id at capture time.
// Like the global Snapshot it is replace-on-load only.
type SourceBaseline struct {
	Ref        SourceRef                  `json:"ref"`
	CapturedAt time.Time                  `json:"capturedAt"`
	Entries    map[string]json.RawMessage `json:"entries"`
}

// Clone returns a deep copy of the baseline.
func (b SourceBaseline) Clone() SourceBaseline {
	cp := b
	cp.Entries = make(map[string]json.RawMessage, len(b.Entries))
	for k, v := range b.Entries {
		cp.Entries[k] = append(json.RawMessage(nil), v...)
	}
	return cp
}
