// Package fingerprint derives short content hashes used to detect
// concurrent modification of reviewable records. The hash is a cheap
// optimistic-concurrency signal, not a security control: it detects
// field-level drift with high probability but offers no cryptographic
// collision resistance.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Hash serialises the value into a canonical string and folds it through a
// 32-bit rolling hash (h = h*31 + byte, mod 2^32), rendered as lowercase hex.
// Structurally identical values always produce identical hashes.
func Hash(v interface{}) string {
	return HashString(Canonical(v))
}

// HashString applies the rolling hash to an already-serialised payload.
func HashString(s string) string {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return strconv.FormatUint(uint64(h), 16)
}

// Canonical renders a value as deterministic JSON: object keys are sorted
// recursively so that map iteration order never leaks into the hash.
func Canonical(v interface{}) string {
	if v == nil {
		return "null"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		// Unserialisable values still need a stable representation.
		return fmt.Sprintf("%#v", v)
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	var b strings.Builder
	writeCanonical(&b, decoded)
	return b.String()
}

func writeCanonical(b *strings.Builder, v interface{}) {
	switch value := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encoded, _ := json.Marshal(k)
			b.Write(encoded)
			b.WriteByte(':')
			writeCanonical(b, value[k])
		}
		b.WriteByte('}')
	case []interface{}:
		b.WriteByte('[')
		for i, item := range value {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			b.WriteString("null")
			return
		}
		b.Write(encoded)
	}
}
