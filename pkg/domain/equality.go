package domain

import (
	"bytes"
	"encoding/json"
)

// StructurallyEqual reports whether two values have identical canonical JSON
// serializations. Diffing and override synthesis compare entities this way
// so equality tracks the wire shape rather than in-memory representation.
func StructurallyEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
