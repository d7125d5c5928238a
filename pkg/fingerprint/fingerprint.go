// Package fingerprint derives stable identities for raw record data
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Generate creates a deterministic fingerprint for record data: a SHA256
// hash over a canonical key-sorted JSON form. Two maps with the same fields
// and values always produce the same fingerprint regardless of insertion
// order.
func Generate(data map[string]any) string {
	hash := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(hash[:])
}

// canonicalize builds a deterministic string form by sorting map keys and
// recursing into nested structures
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		return canonicalizeMap(v)
	case []any:
		return canonicalizeArray(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		keyJSON, _ := json.Marshal(k)
		sb.Write(keyJSON)
		sb.WriteString(":")
		sb.WriteString(canonicalize(m[k]))
	}
	sb.WriteString("}")
	return sb.String()
}

func canonicalizeArray(arr []any) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range arr {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(canonicalize(v))
	}
	sb.WriteString("]")
	return sb.String()
}
