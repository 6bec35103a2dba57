// Package schema validates raw source documents at the trust boundary and
// produces the typed document variants consumed by the merge and tracking
// layers. Validation is pure: no side effects, and every field-level problem
// is collected into a single ValidationError rather than failing on the
// first.
package schema

import (
	"encoding/json"
	"fmt"
	"tokencore/pkg/domain"
)

// Validate checks raw against the named document kind and returns the typed
// document. The error, when non-nil, is always a domain.ValidationError.
func Validate(kind domain.DocumentKind, raw []byte) (domain.Document, error) {
	switch kind {
	case domain.KindCore:
		return ValidateCore(raw)
	case domain.KindPlatformExtension:
		return ValidatePlatformExtension(raw)
	case domain.KindThemeOverride:
		return ValidateThemeOverride(raw)
	default:
		return nil, domain.ValidationError{Kind: kind, Fields: []domain.FieldError{
			{Path: "", Message: fmt.Sprintf("unknown document kind %q", kind)},
		}}
	}
}

type collector struct {
	kind   domain.DocumentKind
	fields []domain.FieldError
}

func (c *collector) add(path, message string) {
	c.fields = append(c.fields, domain.FieldError{Path: path, Message: message})
}

func (c *collector) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return domain.ValidationError{Kind: c.kind, Fields: c.fields}
}

// top unmarshals the document's top-level object, reporting malformed input
// or a non-object root as field errors.
func top(raw []byte, c *collector) map[string]json.RawMessage {
	if len(raw) == 0 {
		c.add("", "document is empty")
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		c.add("", "malformed JSON: "+err.Error())
		return nil
	}
	return fields
}

func requireString(fields map[string]json.RawMessage, key string, c *collector) string {
	raw, ok := fields[key]
	if !ok {
		c.add(key, "required field missing")
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		c.add(key, "must be a string")
		return ""
	}
	if s == "" {
		c.add(key, "must not be empty")
	}
	return s
}

// ValidateCore validates a canonical core document.
func ValidateCore(raw []byte) (*domain.CoreDocument, error) {
	c := &collector{kind: domain.KindCore}
	fields := top(raw, c)
	if fields == nil {
		return nil, c.err()
	}
	requireString(fields, "systemId", c)
	requireString(fields, "version", c)

	var doc domain.CoreDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.add(typeErrorPath(err), typeErrorMessage(err))
		return nil, c.err()
	}

	validateTokens(doc.Tokens, c)
	validateDimensions(doc.Dimensions, c)
	for i := range doc.Platforms {
		if doc.Platforms[i].ID == "" {
			c.add(fmt.Sprintf("platforms[%d].id", i), "required field missing")
		}
		normalizeSyntaxPatterns(doc.Platforms[i].SyntaxPatterns)
	}
	for i, th := range doc.Themes {
		if th.ID == "" {
			c.add(fmt.Sprintf("themes[%d].id", i), "required field missing")
		}
	}
	taxonomies := make(map[string]bool, len(doc.Taxonomies))
	for i, tax := range doc.Taxonomies {
		if tax.ID == "" {
			c.add(fmt.Sprintf("taxonomies[%d].id", i), "required field missing")
			continue
		}
		taxonomies[tax.ID] = true
	}
	for i, id := range doc.NamingRules.TaxonomyOrder {
		if !taxonomies[id] {
			c.add(fmt.Sprintf("namingRules.taxonomyOrder[%d]", i), fmt.Sprintf("unknown taxonomy %q", id))
		}
	}

	if err := c.err(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ValidatePlatformExtension validates a platform extension document.
func ValidatePlatformExtension(raw []byte) (*domain.PlatformExtensionDocument, error) {
	c := &collector{kind: domain.KindPlatformExtension}
	fields := top(raw, c)
	if fields == nil {
		return nil, c.err()
	}
	requireString(fields, "systemId", c)
	requireString(fields, "platformId", c)

	var doc domain.PlatformExtensionDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.add(typeErrorPath(err), typeErrorMessage(err))
		return nil, c.err()
	}

	for i, ov := range doc.TokenOverrides {
		path := fmt.Sprintf("tokenOverrides[%d]", i)
		if ov.ID == "" {
			c.add(path+".id", "required field missing")
		}
		validateModeValues(ov.ValuesByMode, path+".valuesByMode", c)
	}
	for i, ov := range doc.AlgorithmVariableOverrides {
		path := fmt.Sprintf("algorithmVariableOverrides[%d]", i)
		if ov.AlgorithmID == "" {
			c.add(path+".algorithmId", "required field missing")
		}
		if ov.VariableID == "" {
			c.add(path+".variableId", "required field missing")
		}
	}
	normalizeSyntaxPatterns(doc.SyntaxPatterns)

	if err := c.err(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ValidateThemeOverride validates a theme override document. Themeability of
// the targeted tokens is a merge-time policy check, not a schema concern:
// the document alone does not know the core token set.
func ValidateThemeOverride(raw []byte) (*domain.ThemeOverrideDocument, error) {
	c := &collector{kind: domain.KindThemeOverride}
	fields := top(raw, c)
	if fields == nil {
		return nil, c.err()
	}
	requireString(fields, "systemId", c)
	requireString(fields, "themeId", c)

	var doc domain.ThemeOverrideDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.add(typeErrorPath(err), typeErrorMessage(err))
		return nil, c.err()
	}

	for i, ov := range doc.TokenOverrides {
		path := fmt.Sprintf("tokenOverrides[%d]", i)
		if ov.TokenID == "" {
			c.add(path+".tokenId", "required field missing")
		}
		if len(ov.ValuesByMode) == 0 {
			c.add(path+".valuesByMode", "must not be empty")
		}
		validateModeValues(ov.ValuesByMode, path+".valuesByMode", c)
	}

	if err := c.err(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func validateTokens(tokens []domain.Token, c *collector) {
	seen := make(map[string]bool, len(tokens))
	for i, tok := range tokens {
		path := fmt.Sprintf("tokens[%d]", i)
		if tok.ID == "" {
			c.add(path+".id", "required field missing")
		} else if seen[tok.ID] {
			c.add(path+".id", fmt.Sprintf("duplicate token id %q", tok.ID))
		} else {
			seen[tok.ID] = true
		}
		if tok.ResolvedValueTypeID == "" {
			c.add(path+".resolvedValueTypeId", "required field missing")
		}
		validateModeValues(tok.ValuesByMode, path+".valuesByMode", c)
	}
}

// validateModeValues enforces the no-duplicate-resolution-path invariant:
// two entries on the same token must not declare identical mode-id sets.
func validateModeValues(values []domain.ModeValue, path string, c *collector) {
	seen := make(map[string]bool, len(values))
	for i, v := range values {
		key := v.ModeKey()
		if seen[key] {
			c.add(fmt.Sprintf("%s[%d].modeIds", path, i), "duplicate mode-id set")
			continue
		}
		seen[key] = true
	}
}

func validateDimensions(dimensions []domain.Dimension, c *collector) {
	for i, dim := range dimensions {
		path := fmt.Sprintf("dimensions[%d]", i)
		if dim.ID == "" {
			c.add(path+".id", "required field missing")
		}
		modes := make(map[string]bool, len(dim.Modes))
		for j, m := range dim.Modes {
			if m.ID == "" {
				c.add(fmt.Sprintf("%s.modes[%d].id", path, j), "required field missing")
				continue
			}
			modes[m.ID] = true
		}
		if dim.DefaultModeID != "" && !modes[dim.DefaultModeID] {
			c.add(path+".defaultMode", fmt.Sprintf("unknown mode %q", dim.DefaultModeID))
		}
	}
}

// normalizeSyntaxPatterns applies documented defaults to optional fields.
func normalizeSyntaxPatterns(p *domain.SyntaxPatterns) {
	if p == nil {
		return
	}
	if p.Capitalization == "" {
		p.Capitalization = domain.CapitalizationNone
	}
}

func typeErrorPath(err error) string {
	if ute, ok := err.(*json.UnmarshalTypeError); ok {
		return ute.Field
	}
	return ""
}

func typeErrorMessage(err error) string {
	if ute, ok := err.(*json.UnmarshalTypeError); ok {
		return fmt.Sprintf("expected %s, got %s", ute.Type, ute.Value)
	}
	return "malformed JSON: " + err.Error()
}
