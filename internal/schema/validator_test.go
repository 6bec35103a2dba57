package schema

import (
	"errors"
	"strings"
	"testing"

	"tokencore/pkg/domain"
)

const validCore = `{
	"systemId": "design-system",
	"version": "1.0.0",
	"tokens": [
		{"id": "color-primary", "displayName": "Primary", "resolvedValueTypeId": "color",
		 "themeable": true,
		 "valuesByMode": [
			{"modeIds": ["light"], "value": "#ffffff"},
			{"modeIds": ["dark"], "value": "#000000"}
		 ]}
	],
	"tokenCollections": [],
	"dimensions": [
		{"id": "scheme", "displayName": "Color Scheme",
		 "modes": [{"id": "light", "name": "Light", "dimensionId": "scheme"},
		           {"id": "dark", "name": "Dark", "dimensionId": "scheme"}],
		 "defaultMode": "light"}
	],
	"platforms": [{"id": "web", "displayName": "Web"}],
	"themes": [{"id": "brand-a", "displayName": "Brand A", "isDefault": true}],
	"taxonomies": [{"id": "category", "name": "Category", "terms": []}],
	"resolvedValueTypes": [{"id": "color", "displayName": "Color", "type": "COLOR"}],
	"namingRules": {"taxonomyOrder": ["category"]}
}`

func TestValidateCoreAcceptsWellFormedDocument(t *testing.T) {
	doc, err := ValidateCore([]byte(validCore))
	if err != nil {
		t.Fatalf("expected valid document, got %v", err)
	}
	if doc.SystemID != "design-system" || doc.Version != "1.0.0" {
		t.Fatalf("identity fields not decoded: %+v", doc)
	}
	if len(doc.Tokens) != 1 || doc.Tokens[0].ID != "color-primary" {
		t.Fatalf("tokens not decoded: %+v", doc.Tokens)
	}
}

func TestValidateCoreCollectsEveryFieldError(t *testing.T) {
	raw := []byte(`{"tokens": [{"id": "", "resolvedValueTypeId": ""}]}`)
	_, err := ValidateCore(raw)
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	want := []string{"systemId", "version", "tokens[0].id", "tokens[0].resolvedValueTypeId"}
	for _, path := range want {
		if !hasField(verr, path) {
			t.Errorf("missing field error for %q in %v", path, verr.Fields)
		}
	}
	if len(verr.Fields) < len(want) {
		t.Fatalf("expected at least %d field errors, got %d", len(want), len(verr.Fields))
	}
}

func TestValidateCoreRejectsDuplicateModeSets(t *testing.T) {
	raw := []byte(`{
		"systemId": "s", "version": "1",
		"tokens": [{"id": "t1", "resolvedValueTypeId": "color",
			"valuesByMode": [
				{"modeIds": ["dark", "light"], "value": 1},
				{"modeIds": ["light", "dark"], "value": 2}
			]}]
	}`)
	_, err := ValidateCore(raw)
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !hasField(verr, "tokens[0].valuesByMode[1].modeIds") {
		t.Fatalf("duplicate mode-id set not reported: %v", verr.Fields)
	}
}

func TestValidateCoreRejectsDuplicateTokenIDs(t *testing.T) {
	raw := []byte(`{
		"systemId": "s", "version": "1",
		"tokens": [
			{"id": "t1", "resolvedValueTypeId": "color"},
			{"id": "t1", "resolvedValueTypeId": "color"}
		]
	}`)
	_, err := ValidateCore(raw)
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !hasField(verr, "tokens[1].id") {
		t.Fatalf("duplicate token id not reported: %v", verr.Fields)
	}
}

func TestValidateCoreRejectsUnknownTaxonomyInOrder(t *testing.T) {
	raw := []byte(`{
		"systemId": "s", "version": "1",
		"taxonomies": [{"id": "category", "name": "Category", "terms": []}],
		"namingRules": {"taxonomyOrder": ["category", "ghost"]}
	}`)
	_, err := ValidateCore(raw)
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !hasField(verr, "namingRules.taxonomyOrder[1]") {
		t.Fatalf("unknown taxonomy not reported: %v", verr.Fields)
	}
}

func TestValidateCoreRejectsUnknownDefaultMode(t *testing.T) {
	raw := []byte(`{
		"systemId": "s", "version": "1",
		"dimensions": [{"id": "scheme", "displayName": "Scheme",
			"modes": [{"id": "light", "name": "Light", "dimensionId": "scheme"}],
			"defaultMode": "dark"}]
	}`)
	_, err := ValidateCore(raw)
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !hasField(verr, "dimensions[0].defaultMode") {
		t.Fatalf("unknown default mode not reported: %v", verr.Fields)
	}
}

func TestValidateCoreNormalizesCapitalization(t *testing.T) {
	raw := []byte(`{
		"systemId": "s", "version": "1",
		"platforms": [{"id": "web", "displayName": "Web", "syntaxPatterns": {"prefix": "ds"}}]
	}`)
	doc, err := ValidateCore(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.Platforms[0].SyntaxPatterns.Capitalization; got != domain.CapitalizationNone {
		t.Fatalf("expected default capitalization %q, got %q", domain.CapitalizationNone, got)
	}
}

func TestValidatePlatformExtensionRequiresIdentity(t *testing.T) {
	_, err := ValidatePlatformExtension([]byte(`{"tokenOverrides": []}`))
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, path := range []string{"systemId", "platformId"} {
		if !hasField(verr, path) {
			t.Errorf("missing field error for %q: %v", path, verr.Fields)
		}
	}
}

func TestValidatePlatformExtensionRejectsOverrideWithoutID(t *testing.T) {
	raw := []byte(`{
		"systemId": "s", "platformId": "web", "version": "1",
		"tokenOverrides": [{"displayName": "Renamed"}]
	}`)
	_, err := ValidatePlatformExtension(raw)
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !hasField(verr, "tokenOverrides[0].id") {
		t.Fatalf("missing override id not reported: %v", verr.Fields)
	}
}

func TestValidateThemeOverrideRequiresTokenIDAndValues(t *testing.T) {
	raw := []byte(`{
		"systemId": "s", "themeId": "brand-a",
		"tokenOverrides": [{"valuesByMode": []}]
	}`)
	_, err := ValidateThemeOverride(raw)
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, path := range []string{"tokenOverrides[0].tokenId", "tokenOverrides[0].valuesByMode"} {
		if !hasField(verr, path) {
			t.Errorf("missing field error for %q: %v", path, verr.Fields)
		}
	}
}

func TestValidateThemeOverrideKeepsTokenIDWireField(t *testing.T) {
	raw := []byte(`{
		"systemId": "s", "themeId": "brand-a",
		"tokenOverrides": [{"tokenId": "color-primary",
			"valuesByMode": [{"modeIds": ["light"], "value": "#eee"}]}]
	}`)
	doc, err := ValidateThemeOverride(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.TokenOverrides[0].TokenID != "color-primary" {
		t.Fatalf("tokenId not decoded: %+v", doc.TokenOverrides[0])
	}
}

func TestValidateDispatchesOnKind(t *testing.T) {
	doc, err := Validate(domain.KindCore, []byte(validCore))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Kind() != domain.KindCore {
		t.Fatalf("expected core document, got %s", doc.Kind())
	}
	if _, err := Validate(domain.DocumentKind("bogus"), []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestValidateReportsMalformedJSON(t *testing.T) {
	_, err := ValidateCore([]byte(`{"systemId":`))
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(verr.Error(), "malformed JSON") {
		t.Fatalf("expected malformed JSON message, got %q", verr.Error())
	}
}

func hasField(err domain.ValidationError, path string) bool {
	for _, f := range err.Fields {
		if f.Path == path {
			return true
		}
	}
	return false
}
