package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeStrict decodes data into out, rejecting unknown fields and type
// mismatches. Every structured model response is untrusted JSON (spec.md
// §9 "Dynamic JSON shapes from the model"): callers must never trust a
// partially-decoded shape, so a strict decode failure is always treated
// as a call failure rather than a best-effort partial result.
func DecodeStrict(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode structured model response: %w", err)
	}
	return nil
}
