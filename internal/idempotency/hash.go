package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// RequestHash computes a canonical digest over (method, route, body) so
// that byte-different but semantically identical payloads hash the same:
// the body is decoded and re-encoded, which sorts object keys at every
// depth. Numbers are kept as raw JSON tokens so 10 and 1e1 stay distinct
// from 10.5 without float round-tripping.
func RequestHash(method, route string, body []byte) (string, error) {
	canonical, err := canonicalizeJSON(body)
	if err != nil {
		return "", fmt.Errorf("canonicalize body: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(route))
	h.Write([]byte{'\n'})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func canonicalizeJSON(body []byte) ([]byte, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []byte("null"), nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	// encoding/json marshals map keys in sorted order, which is the whole
	// trick: decoded JSON can't be circular, and re-encoding normalizes
	// field order and whitespace.
	return json.Marshal(v)
}
