package domain

import "encoding/json"

// DocumentKind discriminates the three document shapes accepted at the
// validation boundary.
type DocumentKind string

// Supported document kinds.
const (
	// KindCore identifies the canonical token system of record.
	KindCore DocumentKind = "core"
	// KindPlatformExtension identifies a per-platform override/addition layer.
	KindPlatformExtension DocumentKind = "platform-extension"
	// KindThemeOverride identifies a per-theme value substitution layer.
	KindThemeOverride DocumentKind = "theme-override"
)

// SourceType identifies which logical source a link, baseline, or override
// payload belongs to. The set is closed: a switch over SourceType handles
// every source kind or falls through to an explicit error, never a silent
// no-op branch.
type SourceType string

// Closed set of source types.
const (
	SourceCore              SourceType = "core"
	SourcePlatformExtension SourceType = "platform-extension"
	SourceThemeOverride     SourceType = "theme-override"
)

// SourceRef identifies a logical source document. ID is the platform or
// theme identifier and is empty for the core source.
type SourceRef struct {
	Type SourceType `json:"sourceType"`
	ID   string     `json:"sourceId,omitempty"`
}

// CoreRef returns the reference to the canonical core source.
func CoreRef() SourceRef { return SourceRef{Type: SourceCore} }

// PlatformRef returns a reference to a platform extension source.
func PlatformRef(platformID string) SourceRef {
	return SourceRef{Type: SourcePlatformExtension, ID: platformID}
}

// ThemeRef returns a reference to a theme override source.
func ThemeRef(themeID string) SourceRef {
	return SourceRef{Type: SourceThemeOverride, ID: themeID}
}

// Key returns a stable map key for the reference.
func (r SourceRef) Key() string {
	if r.ID == "" {
		return string(r.Type)
	}
	return string(r.Type) + ":" + r.ID
}

// Document is the closed union over the three validated document shapes.
// Only *CoreDocument, *PlatformExtensionDocument, and *ThemeOverrideDocument
// implement it.
type Document interface {
	Kind() DocumentKind
	System() string
}

// CoreDocument is the canonical design-token system. It is owned by the
// system of record and replaced wholesale on reload, never mutated in place
// by merges.
type CoreDocument struct {
	SystemID         string            `json:"systemId"`
	SystemName       string            `json:"systemName,omitempty"`
	Version          string            `json:"version"`
	Tokens           []Token           `json:"tokens"`
	TokenCollections []TokenCollection `json:"tokenCollections"`
	Dimensions       []Dimension       `json:"dimensions"`
	Platforms        []Platform        `json:"platforms"`
	Themes           []Theme           `json:"themes"`
	Taxonomies       []Taxonomy        `json:"taxonomies"`
	Algorithms       []Algorithm       `json:"algorithms,omitempty"`
	ValueTypes       []ValueType       `json:"resolvedValueTypes"`
	NamingRules      NamingRules       `json:"namingRules"`
	DimensionOrder   []string          `json:"dimensionOrder,omitempty"`
}

// Kind implements Document.
func (*CoreDocument) Kind() DocumentKind { return KindCore }

// System implements Document.
func (d *CoreDocument) System() string { return d.SystemID }

// TokenOverride is a partial token fragment inside a platform extension.
// Pointer fields distinguish "absent" from zero values; only fields present
// in the fragment replace their core counterparts.
//
// The identity field is "id", unlike theme overrides which use "tokenId".
// The asymmetry is part of the wire contract and must be preserved.
type TokenOverride struct {
	ID                  string       `json:"id"`
	DisplayName         *string      `json:"displayName,omitempty"`
	Description         *string      `json:"description,omitempty"`
	ResolvedValueTypeID *string      `json:"resolvedValueTypeId,omitempty"`
	Themeable           *bool        `json:"themeable,omitempty"`
	Private             *bool        `json:"private,omitempty"`
	Status              *TokenStatus `json:"status,omitempty"`
	ValuesByMode        []ModeValue  `json:"valuesByMode,omitempty"`
}

// AlgorithmVariableOverride replaces an algorithm variable value for one
// platform.
type AlgorithmVariableOverride struct {
	AlgorithmID string          `json:"algorithmId"`
	VariableID  string          `json:"variableId"`
	Value       json.RawMessage `json:"value"`
}

// PlatformExtensionDocument layers per-platform overrides and additions on
// top of the core document. Identified by (systemId, platformId).
type PlatformExtensionDocument struct {
	SystemID                   string                      `json:"systemId"`
	PlatformID                 string                      `json:"platformId"`
	Version                    string                      `json:"version"`
	TokenOverrides             []TokenOverride             `json:"tokenOverrides,omitempty"`
	AlgorithmVariableOverrides []AlgorithmVariableOverride `json:"algorithmVariableOverrides,omitempty"`
	OmittedModes               []string                    `json:"omittedModes,omitempty"`
	OmittedDimensions          []string                    `json:"omittedDimensions,omitempty"`
	SyntaxPatterns             *SyntaxPatterns             `json:"syntaxPatterns,omitempty"`
	ValueFormatters            *ValueFormatters            `json:"valueFormatters,omitempty"`
}

// Kind implements Document.
func (*PlatformExtensionDocument) Kind() DocumentKind { return KindPlatformExtension }

// System implements Document.
func (d *PlatformExtensionDocument) System() string { return d.SystemID }

// Ref returns the source reference for the extension.
func (d *PlatformExtensionDocument) Ref() SourceRef { return PlatformRef(d.PlatformID) }

// ThemeTokenOverride substitutes values for a single themeable token.
// The identity field is "tokenId" by contract.
type ThemeTokenOverride struct {
	TokenID      string      `json:"tokenId"`
	ValuesByMode []ModeValue `json:"valuesByMode"`
}

// ThemeOverrideDocument carries per-theme value substitutions. Identified by
// (systemId, themeId). It may only target tokens whose core entry declares
// themeable=true and must never introduce new tokens.
type ThemeOverrideDocument struct {
	SystemID       string               `json:"systemId"`
	ThemeID        string               `json:"themeId"`
	Version        string               `json:"version,omitempty"`
	TokenOverrides []ThemeTokenOverride `json:"tokenOverrides"`
}

// Kind implements Document.
func (*ThemeOverrideDocument) Kind() DocumentKind { return KindThemeOverride }

// System implements Document.
func (d *ThemeOverrideDocument) System() string { return d.SystemID }

// Ref returns the source reference for the override document.
func (d *ThemeOverrideDocument) Ref() SourceRef { return ThemeRef(d.ThemeID) }
