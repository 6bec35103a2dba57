// Package override computes minimal, field-level override payloads from an
// edited token and its pre-edit counterpart, shaped for the source document
// the active editing context targets. Minimality is a hard requirement:
// override fragments never restate unchanged data.
package override

import (
	"fmt"

	"tokencore/pkg/domain"
)

// Context identifies the source an edit is viewed through, plus the document
// identity fields the synthesized payload must carry.
type Context struct {
	Source   domain.SourceRef
	SystemID string
	Version  string
}

// Payload is the synthesis result. At most one of the document fields is
// set, matching the context's source type; both are nil for core edits and
// for zero-diff edits ("nothing to persist" is success, not failure).
type Payload struct {
	ChangedFields     []string
	PlatformExtension *domain.PlatformExtensionDocument
	ThemeOverride     *domain.ThemeOverrideDocument
}

// Empty reports whether the edit produced no changed fields, letting callers
// skip the write without treating it as an error.
func (p Payload) Empty() bool { return len(p.ChangedFields) == 0 }

// Synthesize diffs edited against original over the fixed field list
// (identity fields excluded) and shapes the changed fields into the override
// fragment for the context's source. A nil original marks a new entity:
// every defined field counts as changed.
func Synthesize(edited domain.Token, original *domain.Token, ctx Context) (Payload, error) {
	switch ctx.Source.Type {
	case domain.SourceCore:
		// Core edits are written directly to the core document, never
		// layered as an override; the caller only needs the changed list.
		return Payload{ChangedFields: changedFields(edited, original)}, nil

	case domain.SourcePlatformExtension:
		fields := changedFields(edited, original)
		if len(fields) == 0 {
			return Payload{}, nil
		}
		ov := fragmentFor(edited, original, fields)
		return Payload{
			ChangedFields: fields,
			PlatformExtension: &domain.PlatformExtensionDocument{
				SystemID:       ctx.SystemID,
				PlatformID:     ctx.Source.ID,
				Version:        ctx.Version,
				TokenOverrides: []domain.TokenOverride{ov},
			},
		}, nil

	case domain.SourceThemeOverride:
		// The themeable guard runs before any field diffing.
		if !edited.Themeable {
			return Payload{}, domain.PolicyViolation{
				Rule:    domain.RuleThemeableOnly,
				TokenID: edited.ID,
				Message: "token is not themeable",
			}
		}
		// Themes substitute values only; no other field crosses this boundary.
		values := changedModeValues(edited, original)
		if len(values) == 0 {
			return Payload{}, nil
		}
		return Payload{
			ChangedFields: []string{"valuesByMode"},
			ThemeOverride: &domain.ThemeOverrideDocument{
				SystemID: ctx.SystemID,
				ThemeID:  ctx.Source.ID,
				TokenOverrides: []domain.ThemeTokenOverride{
					{TokenID: edited.ID, ValuesByMode: values},
				},
			},
		}, nil

	default:
		return Payload{}, fmt.Errorf("unknown source type %q", ctx.Source.Type)
	}
}

// diffable is the fixed field list compared between original and edited.
// Identity fields (id, tokenCollectionId) are excluded.
const (
	fieldDisplayName         = "displayName"
	fieldDescription         = "description"
	fieldResolvedValueTypeID = "resolvedValueTypeId"
	fieldThemeable           = "themeable"
	fieldPrivate             = "private"
	fieldStatus              = "status"
	fieldValuesByMode        = "valuesByMode"
)

func changedFields(edited domain.Token, original *domain.Token) []string {
	var fields []string
	if original == nil {
		if edited.DisplayName != "" {
			fields = append(fields, fieldDisplayName)
		}
		if edited.Description != nil {
			fields = append(fields, fieldDescription)
		}
		if edited.ResolvedValueTypeID != "" {
			fields = append(fields, fieldResolvedValueTypeID)
		}
		if edited.Themeable {
			fields = append(fields, fieldThemeable)
		}
		if edited.Private {
			fields = append(fields, fieldPrivate)
		}
		if edited.Status != "" {
			fields = append(fields, fieldStatus)
		}
		if len(edited.ValuesByMode) > 0 {
			fields = append(fields, fieldValuesByMode)
		}
		return fields
	}
	if edited.DisplayName != original.DisplayName {
		fields = append(fields, fieldDisplayName)
	}
	if !domain.StructurallyEqual(edited.Description, original.Description) {
		fields = append(fields, fieldDescription)
	}
	if edited.ResolvedValueTypeID != original.ResolvedValueTypeID {
		fields = append(fields, fieldResolvedValueTypeID)
	}
	if edited.Themeable != original.Themeable {
		fields = append(fields, fieldThemeable)
	}
	if edited.Private != original.Private {
		fields = append(fields, fieldPrivate)
	}
	if edited.Status != original.Status {
		fields = append(fields, fieldStatus)
	}
	if len(changedModeValues(edited, original)) > 0 {
		fields = append(fields, fieldValuesByMode)
	}
	return fields
}

// changedModeValues returns only the mode-value entries whose value or
// metadata actually changed, matched against the original by exact
// mode-id-set equality. Entries identical to the original are omitted.
func changedModeValues(edited domain.Token, original *domain.Token) []domain.ModeValue {
	var byKey map[string]domain.ModeValue
	if original != nil {
		byKey = make(map[string]domain.ModeValue, len(original.ValuesByMode))
		for _, entry := range original.ValuesByMode {
			byKey[entry.ModeKey()] = entry
		}
	}
	var changed []domain.ModeValue
	for _, entry := range edited.ValuesByMode {
		prev, ok := byKey[entry.ModeKey()]
		if ok && domain.StructurallyEqual(entry, prev) {
			continue
		}
		changed = append(changed, entry.Clone())
	}
	return changed
}

// fragmentFor builds the minimal platform-extension token fragment carrying
// only the named changed fields.
func fragmentFor(edited domain.Token, original *domain.Token, fields []string) domain.TokenOverride {
	ov := domain.TokenOverride{ID: edited.ID}
	for _, f := range fields {
		switch f {
		case fieldDisplayName:
			v := edited.DisplayName
			ov.DisplayName = &v
		case fieldDescription:
			if edited.Description != nil {
				v := *edited.Description
				ov.Description = &v
			}
		case fieldResolvedValueTypeID:
			v := edited.ResolvedValueTypeID
			ov.ResolvedValueTypeID = &v
		case fieldThemeable:
			v := edited.Themeable
			ov.Themeable = &v
		case fieldPrivate:
			v := edited.Private
			ov.Private = &v
		case fieldStatus:
			v := edited.Status
			ov.Status = &v
		case fieldValuesByMode:
			ov.ValuesByMode = changedModeValues(edited, original)
		}
	}
	return ov
}
