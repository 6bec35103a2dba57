package domain

import (
	"fmt"
	"strings"
)

// FieldError reports one field-level problem discovered during validation.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationError reports a malformed or non-conforming document. It always
// carries the full list of field-level problems, never just the first, so
// callers can surface every issue at once. Recoverable: the caller may
// re-prompt for a corrected source.
type ValidationError struct {
	Kind   DocumentKind `json:"kind"`
	Fields []FieldError `json:"fields"`
}

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("%s document invalid: %s", e.Kind, strings.Join(msgs, "; "))
}

// HasErrors reports whether any field problems were collected.
func (e ValidationError) HasErrors() bool { return len(e.Fields) > 0 }

// PolicyViolation reports a structurally valid but semantically disallowed
// operation, such as a theme override targeting a non-themeable token.
// Distinct from ValidationError so callers can explain the business rule
// rather than "invalid JSON".
type PolicyViolation struct {
	Rule    string `json:"rule"`
	TokenID string `json:"tokenId,omitempty"`
	Message string `json:"message"`
}

func (e PolicyViolation) Error() string {
	if e.TokenID == "" {
		return fmt.Sprintf("policy %s: %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("policy %s: token %s: %s", e.Rule, e.TokenID, e.Message)
}

// Policy rule identifiers attached to PolicyViolation records.
const (
	// RuleThemeableOnly rejects theme overrides that target tokens whose
	// core entry declares themeable=false.
	RuleThemeableOnly = "theme-override/themeable-only"
	// RuleThemeNoNewTokens rejects theme overrides whose token id is absent
	// from all prior layers; themes substitute values, they never mint tokens.
	RuleThemeNoNewTokens = "theme-override/no-new-tokens"
)

// SourceUnavailableError wraps a network or auth failure fetching a linked
// source. It is attached to the failing link record and never propagates to
// other sources' processing.
type SourceUnavailableError struct {
	Source SourceRef
	Err    error
}

func (e SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source.Key(), e.Err)
}

// Unwrap exposes the underlying transport error.
func (e SourceUnavailableError) Unwrap() error { return e.Err }

// ErrNotFound is returned when a referenced entity or link is missing.
type ErrNotFound struct {
	What string
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.What, e.ID)
}
