// Package merge combines one core document, zero-or-more platform extension
// documents, and zero-or-one theme override document into a single resolved
// view plus an analytics summary. Merging is a pure computation: inputs are
// never mutated, and repeated merges over the same inputs yield structurally
// identical output.
package merge

import (
	"tokencore/pkg/domain"
)

// ResolvedToken is a token in the merged view together with its provenance.
type ResolvedToken struct {
	domain.Token
	// Origin names the source that last wrote any field of the token.
	Origin domain.SourceRef
	// OmittedByPlatforms lists platform ids whose extension omits every
	// resolution path of this token. Omission is per-platform analytics;
	// the token stays in the resolved view.
	OmittedByPlatforms []string
}

// View is the final merged token set after layering all sources.
type View struct {
	SystemID string
	Tokens   []ResolvedToken
}

// Token returns the resolved token with the given id.
func (v View) Token(id string) (ResolvedToken, bool) {
	for _, t := range v.Tokens {
		if t.ID == id {
			return t, true
		}
	}
	return ResolvedToken{}, false
}

// Analytics summarizes the merge. All counts are recomputed from scratch on
// every merge; there is no incremental state.
type Analytics struct {
	TotalTokens      int `json:"totalTokens"`
	OverriddenTokens int `json:"overriddenTokens"`
	NewTokens        int `json:"newTokens"`
	OmittedTokens    int `json:"omittedTokens"`
	PlatformCount    int `json:"platformCount"`
	ThemeCount       int `json:"themeCount"`
}

// Result bundles the resolved view, its analytics, and any policy warnings
// raised while layering (disallowed theme overrides are skipped and
// surfaced here, never silently applied and never fatal to the merge).
type Result struct {
	Resolved  View
	Analytics Analytics
	Warnings  []domain.PolicyViolation
}

// Merge layers sources strictly core -> extensions in supplied order ->
// theme override last. Repeated field writes resolve last-writer-wins.
func Merge(core *domain.CoreDocument, extensions []*domain.PlatformExtensionDocument, theme *domain.ThemeOverrideDocument) Result {
	res := Result{Resolved: View{SystemID: core.SystemID}}

	index := make(map[string]int, len(core.Tokens))
	for _, tok := range core.Tokens {
		index[tok.ID] = len(res.Resolved.Tokens)
		res.Resolved.Tokens = append(res.Resolved.Tokens, ResolvedToken{
			Token:  tok.Clone(),
			Origin: domain.CoreRef(),
		})
	}

	dimModes := modesByDimension(core)

	for _, ext := range extensions {
		if ext == nil {
			continue
		}
		ref := ext.Ref()
		omitted := omittedModeSet(ext, dimModes)

		for _, ov := range ext.TokenOverrides {
			i, ok := index[ov.ID]
			if !ok {
				// Extension-introduced token: not an inconsistency, a new
				// token contributed by the platform layer.
				index[ov.ID] = len(res.Resolved.Tokens)
				res.Resolved.Tokens = append(res.Resolved.Tokens, ResolvedToken{
					Token:  tokenFromOverride(ov),
					Origin: ref,
				})
				res.Analytics.NewTokens++
				continue
			}
			if applyOverride(&res.Resolved.Tokens[i].Token, ov) {
				res.Resolved.Tokens[i].Origin = ref
				res.Analytics.OverriddenTokens++
			}
		}

		if len(omitted) > 0 {
			for i := range res.Resolved.Tokens {
				if tokenFullyOmitted(res.Resolved.Tokens[i].Token, omitted) {
					res.Resolved.Tokens[i].OmittedByPlatforms = append(res.Resolved.Tokens[i].OmittedByPlatforms, ext.PlatformID)
				}
			}
		}
		res.Analytics.PlatformCount++
	}

	if theme != nil {
		res.Analytics.ThemeCount = 1
		ref := theme.Ref()
		for _, ov := range theme.TokenOverrides {
			i, ok := index[ov.TokenID]
			if !ok {
				res.Warnings = append(res.Warnings, domain.PolicyViolation{
					Rule:    domain.RuleThemeNoNewTokens,
					TokenID: ov.TokenID,
					Message: "theme override targets a token absent from all prior layers",
				})
				continue
			}
			if !res.Resolved.Tokens[i].Themeable {
				res.Warnings = append(res.Warnings, domain.PolicyViolation{
					Rule:    domain.RuleThemeableOnly,
					TokenID: ov.TokenID,
					Message: "theme override targets a non-themeable token",
				})
				continue
			}
			if mergeValuesByMode(&res.Resolved.Tokens[i].Token, ov.ValuesByMode) {
				res.Resolved.Tokens[i].Origin = ref
				res.Analytics.OverriddenTokens++
			}
		}
	}

	res.Analytics.TotalTokens = len(res.Resolved.Tokens)
	for _, tok := range res.Resolved.Tokens {
		if len(tok.OmittedByPlatforms) > 0 {
			res.Analytics.OmittedTokens++
		}
	}
	return res
}

func modesByDimension(core *domain.CoreDocument) map[string][]string {
	out := make(map[string][]string, len(core.Dimensions))
	for _, dim := range core.Dimensions {
		ids := make([]string, 0, len(dim.Modes))
		for _, m := range dim.Modes {
			ids = append(ids, m.ID)
		}
		out[dim.ID] = ids
	}
	return out
}

// omittedModeSet derives the full set of mode ids an extension omits: the
// explicit omittedModes plus every mode of each omitted dimension.
func omittedModeSet(ext *domain.PlatformExtensionDocument, dimModes map[string][]string) map[string]bool {
	if len(ext.OmittedModes) == 0 && len(ext.OmittedDimensions) == 0 {
		return nil
	}
	out := make(map[string]bool)
	for _, id := range ext.OmittedModes {
		out[id] = true
	}
	for _, dimID := range ext.OmittedDimensions {
		for _, modeID := range dimModes[dimID] {
			out[modeID] = true
		}
	}
	return out
}

// tokenFullyOmitted reports whether every resolution path of the token
// touches at least one omitted mode. A token with no values is not omitted.
func tokenFullyOmitted(tok domain.Token, omitted map[string]bool) bool {
	if len(tok.ValuesByMode) == 0 {
		return false
	}
	for _, entry := range tok.ValuesByMode {
		hit := false
		for _, modeID := range entry.ModeIDs {
			if omitted[modeID] {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// tokenFromOverride materializes an extension-introduced token from a
// fragment, applying zero-value defaults for absent fields.
func tokenFromOverride(ov domain.TokenOverride) domain.Token {
	tok := domain.Token{ID: ov.ID, Status: domain.StatusExperimental}
	if ov.DisplayName != nil {
		tok.DisplayName = *ov.DisplayName
	}
	if ov.Description != nil {
		d := *ov.Description
		tok.Description = &d
	}
	if ov.ResolvedValueTypeID != nil {
		tok.ResolvedValueTypeID = *ov.ResolvedValueTypeID
	}
	if ov.Themeable != nil {
		tok.Themeable = *ov.Themeable
	}
	if ov.Private != nil {
		tok.Private = *ov.Private
	}
	if ov.Status != nil {
		tok.Status = *ov.Status
	}
	for _, v := range ov.ValuesByMode {
		tok.ValuesByMode = append(tok.ValuesByMode, v.Clone())
	}
	return tok
}

// applyOverride shallow-merges the fragment's present fields onto the token
// and reports whether at least one field actually changed.
func applyOverride(tok *domain.Token, ov domain.TokenOverride) bool {
	changed := false
	if ov.DisplayName != nil && tok.DisplayName != *ov.DisplayName {
		tok.DisplayName = *ov.DisplayName
		changed = true
	}
	if ov.Description != nil && (tok.Description == nil || *tok.Description != *ov.Description) {
		d := *ov.Description
		tok.Description = &d
		changed = true
	}
	if ov.ResolvedValueTypeID != nil && tok.ResolvedValueTypeID != *ov.ResolvedValueTypeID {
		tok.ResolvedValueTypeID = *ov.ResolvedValueTypeID
		changed = true
	}
	if ov.Themeable != nil && tok.Themeable != *ov.Themeable {
		tok.Themeable = *ov.Themeable
		changed = true
	}
	if ov.Private != nil && tok.Private != *ov.Private {
		tok.Private = *ov.Private
		changed = true
	}
	if ov.Status != nil && tok.Status != *ov.Status {
		tok.Status = *ov.Status
		changed = true
	}
	if mergeValuesByMode(tok, ov.ValuesByMode) {
		changed = true
	}
	return changed
}

// mergeValuesByMode deep-merges override entries into the token's values,
// matching by exact mode-id-set equality rather than array index. Matched
// entries are replaced, unmatched entries appended; the no-duplicate-mode-set
// invariant holds by construction.
func mergeValuesByMode(tok *domain.Token, overrides []domain.ModeValue) bool {
	if len(overrides) == 0 {
		return false
	}
	byKey := make(map[string]int, len(tok.ValuesByMode))
	for i, entry := range tok.ValuesByMode {
		byKey[entry.ModeKey()] = i
	}
	changed := false
	for _, ov := range overrides {
		key := ov.ModeKey()
		if i, ok := byKey[key]; ok {
			if !domain.StructurallyEqual(tok.ValuesByMode[i], ov) {
				tok.ValuesByMode[i] = ov.Clone()
				changed = true
			}
			continue
		}
		byKey[key] = len(tok.ValuesByMode)
		tok.ValuesByMode = append(tok.ValuesByMode, ov.Clone())
		changed = true
	}
	return changed
}
