package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// DomainConfig prefixes config content hashes.
// Version suffix enables future algorithm migration.
const DomainConfig = "salesboost/config/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ConfigHash computes the content hash of a raw config document.
//
// The document is re-encoded with sorted object keys and NFC-normalized
// strings, so whitespace, key order and Unicode composition differences
// between the admin service and the cache do not change the revision.
func ConfigHash(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return "", fmt.Errorf("ConfigHash: failed to decode: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalize(doc)); err != nil {
		return "", fmt.Errorf("ConfigHash: failed to encode: %w", err)
	}

	return hashWithDomain(DomainConfig, bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// normalize applies NFC to every string, including object keys.
// encoding/json already emits map keys sorted.
func normalize(v any) any {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalize(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[norm.NFC.String(k)] = normalize(elem)
		}
		return out
	default:
		return val
	}
}
