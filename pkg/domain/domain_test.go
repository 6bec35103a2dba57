package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestModeKeyIsOrderIndependent(t *testing.T) {
	a := ModeValue{ModeIDs: []string{"dark", "compact"}}
	b := ModeValue{ModeIDs: []string{"compact", "dark"}}
	if a.ModeKey() != b.ModeKey() {
		t.Fatalf("keys differ: %q vs %q", a.ModeKey(), b.ModeKey())
	}
	c := ModeValue{ModeIDs: []string{"dark"}}
	if a.ModeKey() == c.ModeKey() {
		t.Fatal("distinct mode sets must yield distinct keys")
	}
}

func TestModeKeySeparatorAvoidsConcatenationCollisions(t *testing.T) {
	a := ModeValue{ModeIDs: []string{"ab", "c"}}
	b := ModeValue{ModeIDs: []string{"a", "bc"}}
	if a.ModeKey() == b.ModeKey() {
		t.Fatal("joined ids must not collide")
	}
}

func TestTokenCloneIsDeep(t *testing.T) {
	desc := "original"
	tok := Token{
		ID:              "t1",
		Description:     &desc,
		TaxonomyTermIDs: []string{"term-1"},
		ValuesByMode: []ModeValue{
			{ModeIDs: []string{"light"}, Value: json.RawMessage(`"#fff"`), Metadata: map[string]any{"k": "v"}},
		},
	}
	cp := tok.Clone()
	*cp.Description = "mutated"
	cp.TaxonomyTermIDs[0] = "mutated"
	cp.ValuesByMode[0].ModeIDs[0] = "mutated"
	cp.ValuesByMode[0].Value[1] = 'x'
	cp.ValuesByMode[0].Metadata["k"] = "mutated"

	if *tok.Description != "original" {
		t.Fatal("description not deep copied")
	}
	if tok.TaxonomyTermIDs[0] != "term-1" {
		t.Fatal("taxonomy terms not deep copied")
	}
	if tok.ValuesByMode[0].ModeIDs[0] != "light" {
		t.Fatal("mode ids not deep copied")
	}
	if string(tok.ValuesByMode[0].Value) != `"#fff"` {
		t.Fatal("raw value not deep copied")
	}
	if tok.ValuesByMode[0].Metadata["k"] != "v" {
		t.Fatal("metadata not deep copied")
	}
}

func TestSnapshotCloneIsolation(t *testing.T) {
	snap := Snapshot{
		Tokens:        map[string]Token{"t1": {ID: "t1", DisplayName: "One"}},
		Platforms:     map[string]Platform{"web": {ID: "web"}},
		TaxonomyOrder: []string{"category"},
	}
	cp := snap.Clone()
	tok := cp.Tokens["t1"]
	tok.DisplayName = "mutated"
	cp.Tokens["t1"] = tok
	cp.TaxonomyOrder[0] = "mutated"
	delete(cp.Platforms, "web")

	if snap.Tokens["t1"].DisplayName != "One" {
		t.Fatal("token map not deep copied")
	}
	if snap.TaxonomyOrder[0] != "category" {
		t.Fatal("order slice not deep copied")
	}
	if _, ok := snap.Platforms["web"]; !ok {
		t.Fatal("platform map not deep copied")
	}
}

func TestSourceRefKeys(t *testing.T) {
	if CoreRef().Key() != "core" {
		t.Fatalf("core key = %q", CoreRef().Key())
	}
	if PlatformRef("web").Key() != "platform-extension:web" {
		t.Fatalf("platform key = %q", PlatformRef("web").Key())
	}
	if ThemeRef("brand-a").Key() != "theme-override:brand-a" {
		t.Fatalf("theme key = %q", ThemeRef("brand-a").Key())
	}
}

func TestDocumentUnion(t *testing.T) {
	docs := []Document{
		&CoreDocument{SystemID: "s"},
		&PlatformExtensionDocument{SystemID: "s", PlatformID: "web"},
		&ThemeOverrideDocument{SystemID: "s", ThemeID: "brand-a"},
	}
	kinds := []DocumentKind{KindCore, KindPlatformExtension, KindThemeOverride}
	for i, doc := range docs {
		if doc.Kind() != kinds[i] {
			t.Fatalf("kind = %q, want %q", doc.Kind(), kinds[i])
		}
		if doc.System() != "s" {
			t.Fatalf("system = %q", doc.System())
		}
	}
	if (&PlatformExtensionDocument{PlatformID: "web"}).Ref() != PlatformRef("web") {
		t.Fatal("extension ref mismatch")
	}
	if (&ThemeOverrideDocument{ThemeID: "brand-a"}).Ref() != ThemeRef("brand-a") {
		t.Fatal("theme ref mismatch")
	}
}

func TestOverrideWireFieldAsymmetry(t *testing.T) {
	platform, err := json.Marshal(TokenOverride{ID: "t1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(platform), `"id":"t1"`) {
		t.Fatalf("platform override wire = %s", platform)
	}
	theme, err := json.Marshal(ThemeTokenOverride{TokenID: "t1", ValuesByMode: []ModeValue{}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(theme), `"tokenId":"t1"`) {
		t.Fatalf("theme override wire = %s", theme)
	}
}

func TestChangeSetMergeRecomputesTotal(t *testing.T) {
	set := ChangeSet{Added: []string{"a"}, TotalChanges: 1}
	if set.Empty() {
		t.Fatal("non-empty set reported empty")
	}
	set.Merge(ChangeSet{Modified: []string{"m"}, Removed: []string{"r1", "r2"}, TotalChanges: 3})
	if set.TotalChanges != 4 {
		t.Fatalf("total = %d, want 4", set.TotalChanges)
	}
	if !(ChangeSet{}).Empty() {
		t.Fatal("zero set must be empty")
	}
}

func TestStructurallyEqualTracksWireShape(t *testing.T) {
	a := ModeValue{ModeIDs: []string{"light"}, Value: json.RawMessage(`"#fff"`)}
	b := a.Clone()
	if !StructurallyEqual(a, b) {
		t.Fatal("clones must be structurally equal")
	}
	b.Value = json.RawMessage(`"#000"`)
	if StructurallyEqual(a, b) {
		t.Fatal("differing values must not be equal")
	}
}

func TestErrorMessages(t *testing.T) {
	verr := ValidationError{Kind: KindCore, Fields: []FieldError{
		{Path: "systemId", Message: "required"},
		{Message: "malformed JSON"},
	}}
	if !verr.HasErrors() {
		t.Fatal("populated error must report fields")
	}
	msg := verr.Error()
	if !strings.Contains(msg, "core document invalid") || !strings.Contains(msg, "systemId: required") {
		t.Fatalf("message = %q", msg)
	}

	pv := PolicyViolation{Rule: RuleThemeableOnly, TokenID: "t1", Message: "not themeable"}
	if !strings.Contains(pv.Error(), RuleThemeableOnly) || !strings.Contains(pv.Error(), "t1") {
		t.Fatalf("message = %q", pv.Error())
	}

	inner := errors.New("401 unauthorized")
	sue := SourceUnavailableError{Source: PlatformRef("web"), Err: inner}
	if !errors.Is(sue, inner) {
		t.Fatal("unwrap must expose the transport error")
	}
	if !strings.Contains(sue.Error(), "platform-extension:web") {
		t.Fatalf("message = %q", sue.Error())
	}

	nf := ErrNotFound{What: "source link", ID: "theme-override:brand-a"}
	if nf.Error() != "source link theme-override:brand-a not found" {
		t.Fatalf("message = %q", nf.Error())
	}
}
