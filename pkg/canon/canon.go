// Package canon produces canonical JSON bytes and content hashes for
// signing and chain linkage. Values are normalized to Unicode NFC and
// serialized per RFC 8785 (JCS) so semantically equal payloads hash equal
// regardless of field order or string representation.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// Canonicalize returns the RFC 8785 canonical JSON encoding of v with all
// string values NFC-normalized.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("canon: decode: %w", err)
	}

	normalized, err := json.Marshal(normalize(decoded))
	if err != nil {
		return nil, fmt.Errorf("canon: re-marshal: %w", err)
	}

	canonical, err := jcs.Transform(normalized)
	if err != nil {
		return nil, fmt.Errorf("canon: jcs transform: %w", err)
	}
	return canonical, nil
}

// Hash returns "sha256:<hex>" over the canonical encoding of v.
func Hash(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(canonical), nil
}

// HashBytes returns "sha256:<hex>" over raw bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// normalize rewrites every string in a decoded JSON value to NFC. Map keys
// are normalized too: two keys that fold to the same NFC form would collide
// in canonical output, so the last writer wins, matching JSON object
// semantics.
func normalize(v any) any {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[norm.NFC.String(k)] = normalize(e)
		}
		return out
	default:
		return v
	}
}
