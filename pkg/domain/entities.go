// Package domain defines the core persistent entities, document types, and
// change-tracking primitives used by tokencore.
package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// TokenStatus represents the publication state of a token.
type TokenStatus string

// Canonical token statuses used by editors and exporters.
const (
	// StatusExperimental marks a token still under design review.
	StatusExperimental TokenStatus = "experimental"
	// StatusStable marks a token safe for downstream consumption.
	StatusStable     TokenStatus = "stable"
	StatusDeprecated TokenStatus = "deprecated"
)

// Capitalization enumerates the naming-rule capitalization strategies a
// platform may declare in its syntax patterns.
type Capitalization string

// Supported capitalization strategies. CapitalizationNone is the documented
// default applied by the schema validator when the field is absent.
const (
	CapitalizationNone       Capitalization = "none"
	CapitalizationUppercase  Capitalization = "uppercase"
	CapitalizationLowercase  Capitalization = "lowercase"
	CapitalizationCapitalize Capitalization = "capitalize"
)

// ModeValue binds a token value to the set of modes under which it resolves.
// The pair (token, mode-id set) is the resolution path: a token must never
// carry two ModeValue entries with identical mode-id sets.
type ModeValue struct {
	ModeIDs  []string        `json:"modeIds"`
	Value    json.RawMessage `json:"value"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// ModeKey returns a canonical identifier for the entry's mode-id set,
// independent of declaration order. Used to match entries across layers.
func (m ModeValue) ModeKey() string {
	ids := append([]string(nil), m.ModeIDs...)
	sort.Strings(ids)
	return strings.Join(ids, "\x1f")
}

// Clone returns a deep copy of the mode value.
func (m ModeValue) Clone() ModeValue {
	cp := m
	cp.ModeIDs = append([]string(nil), m.ModeIDs...)
	cp.Value = append(json.RawMessage(nil), m.Value...)
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// Token is the unit of the design system: a named, typed value resolved per
// mode context.
type Token struct {
	ID                  string      `json:"id"`
	DisplayName         string      `json:"displayName"`
	Description         *string     `json:"description,omitempty"`
	ResolvedValueTypeID string      `json:"resolvedValueTypeId"`
	TokenCollectionID   *string     `json:"tokenCollectionId,omitempty"`
	Themeable           bool        `json:"themeable"`
	Private             bool        `json:"private"`
	Status              TokenStatus `json:"status"`
	TaxonomyTermIDs     []string    `json:"taxonomyTermIds,omitempty"`
	ValuesByMode        []ModeValue `json:"valuesByMode"`
}

// Clone returns a deep copy of the token.
func (t Token) Clone() Token {
	cp := t
	if t.Description != nil {
		d := *t.Description
		cp.Description = &d
	}
	if t.TokenCollectionID != nil {
		c := *t.TokenCollectionID
		cp.TokenCollectionID = &c
	}
	cp.TaxonomyTermIDs = append([]string(nil), t.TaxonomyTermIDs...)
	cp.ValuesByMode = make([]ModeValue, len(t.ValuesByMode))
	for i, v := range t.ValuesByMode {
		cp.ValuesByMode[i] = v.Clone()
	}
	return cp
}

// TokenCollection groups tokens sharing a resolved value type family.
type TokenCollection struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	ResolvedValueTypeIDs []string `json:"resolvedValueTypeIds"`
	Private              bool     `json:"private"`
}

// Mode is one axis value within a dimension (for example "light" within the
// color-scheme dimension).
type Mode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DimensionID string `json:"dimensionId"`
}

// Dimension owns an ordered list of modes and declares which mode resolves
// by default.
type Dimension struct {
	ID            string `json:"id"`
	DisplayName   string `json:"displayName"`
	Modes         []Mode `json:"modes"`
	DefaultModeID string `json:"defaultMode"`
	Required      bool   `json:"required"`
}

// SyntaxPatterns describe how a platform derives exported token names.
type SyntaxPatterns struct {
	Prefix         string         `json:"prefix,omitempty"`
	Suffix         string         `json:"suffix,omitempty"`
	Delimiter      string         `json:"delimiter,omitempty"`
	Capitalization Capitalization `json:"capitalization"`
}

// ValueFormatters describe platform-level value rendering preferences.
type ValueFormatters struct {
	ColorFormat   string `json:"color,omitempty"`
	DimensionUnit string `json:"dimension,omitempty"`
}

// ExtensionSource points at the repository file backing a platform extension
// or theme override document.
type ExtensionSource struct {
	RepositoryURI string `json:"repositoryUri"`
	FilePath      string `json:"filePath"`
}

// Platform is a delivery target (web, iOS, ...) that may link an extension
// document layering overrides on top of the core token set.
type Platform struct {
	ID              string           `json:"id"`
	DisplayName     string           `json:"displayName"`
	SyntaxPatterns  *SyntaxPatterns  `json:"syntaxPatterns,omitempty"`
	ValueFormatters *ValueFormatters `json:"valueFormatters,omitempty"`
	ExtensionSource *ExtensionSource `json:"extensionSource,omitempty"`
}

// Theme is a value-substitution context restricted to themeable tokens.
type Theme struct {
	ID             string           `json:"id"`
	DisplayName    string           `json:"displayName"`
	IsDefault      bool             `json:"isDefault"`
	OverrideSource *ExtensionSource `json:"overrideSource,omitempty"`
}

// TaxonomyTerm is a single classification value within a taxonomy.
type TaxonomyTerm struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Taxonomy is a classification axis used by naming rules.
type Taxonomy struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Terms       []TaxonomyTerm `json:"terms"`
}

// AlgorithmVariable is an input to a generated-value algorithm.
type AlgorithmVariable struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	DefaultValue json.RawMessage `json:"defaultValue,omitempty"`
}

// Algorithm describes a formula that derives token values from variables.
type Algorithm struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Variables []AlgorithmVariable `json:"variables"`
}

// ValueType is an entry in the resolved-value-type registry referenced by
// tokens via ResolvedValueTypeID.
type ValueType struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
}

// NamingRules carry the ordered taxonomy list used when composing exported
// token names. Order changes are tracked as a single change.
type NamingRules struct {
	TaxonomyOrder []string `json:"taxonomyOrder"`
}

// OverrideChange is an in-memory, per-token record of an edit made while
// viewing through a platform or theme lens, captured before it is folded
// into a persisted override document.
type OverrideChange struct {
	TokenID       string          `json:"tokenId"`
	OriginalValue json.RawMessage `json:"originalValue,omitempty"`
	NewValue      json.RawMessage `json:"newValue"`
	Source        SourceRef       `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
}
