package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// formatTimestamp renders a timestamp as the shortest string that
// round-trips, in strconv's 'g' format (Go's default float rendering).
// Values with an exponent of 6 or more, such as Unix-epoch seconds, come out
// in exponent form (1.7619552e+09), not as the plain decimal the prototype
// printed.
func formatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'g', -1, 64)
}

// canonicalJSON renders v with lexicographically sorted object keys and
// ", " / ": " separators, deterministically, so that two events built from
// the same field values always hash identically within this implementation.
// Map values produced by parsing JSON request bodies or ledger files should
// carry json.Number instead of float64 (see decodeData) so that integers
// round-trip without decimal points creeping into the hash input.
func canonicalJSON(v interface{}) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case json.Number:
		b.WriteString(val.String())
	case float64:
		// Same text encoding/json writes to storage, which DecodeData later
		// reads back as a json.Number.
		enc, _ := json.Marshal(val)
		b.Write(enc)
	case string:
		enc, _ := json.Marshal(val)
		b.Write(enc)
	case []interface{}:
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteString(": ")
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	default:
		enc, _ := json.Marshal(val)
		b.Write(enc)
	}
}

// computeHash is the single source of truth for an event's content hash:
// SHA-256 over asset_id:action:user_id:timestamp:refs:signature:data.
func computeHash(assetID string, action Action, userID string, timestamp float64, references []string, signature string, data map[string]interface{}) string {
	content := fmt.Sprintf("%s:%s:%s:%s:%s:%s:%s",
		assetID, action, userID, formatTimestamp(timestamp),
		strings.Join(references, ":"), signature, canonicalJSON(toGenericMap(data)))
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func toGenericMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return data
}

// DecodeData parses raw JSON bytes into a map using json.Number for
// numeric leaves, so hashes computed from values round-tripped through
// storage or the wire match the hash computed at construction time. HTTP
// handlers accepting free-form asset/event data should decode it with this
// helper instead of the standard json.Unmarshal.
func DecodeData(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]interface{}{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	return m, nil
}
