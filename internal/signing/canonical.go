// Package signing implements the deterministic request canonicalization and
// HMAC computation shared by the signed-request verifier and its tests.
// Everything here is pure: no I/O, no clock, no stores.
package signing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Request carries the signed fields of one inbound request.
// ContentSHA256 is the caller-precomputed body digest for large binary
// uploads (the x-file-sha256 header); when set it is trusted as-is instead of
// hashing the body again.
type Request struct {
	Method        string
	PathAndQuery  string
	KeyID         string
	Timestamp     string
	Nonce         string
	ContentType   string
	Body          []byte
	ContentSHA256 string
}

// Canonicalize reduces a request to the exact byte string both signer and
// verifier feed into HMAC-SHA256. Fields are joined with newlines, which
// cannot appear unescaped in any of them.
func Canonicalize(req Request) string {
	parts := []string{
		strings.ToUpper(strings.TrimSpace(req.Method)),
		NormalizePathQuery(req.PathAndQuery),
		req.KeyID,
		req.Timestamp,
		req.Nonce,
		HashBody(req.ContentType, req.Body, req.ContentSHA256),
	}
	return strings.Join(parts, "\n")
}

// NormalizePathQuery keeps the path untouched and rewrites the query with
// keys sorted lexicographically. Values under the same key keep their
// relative order. An empty query is omitted entirely.
func NormalizePathQuery(pathAndQuery string) string {
	u, err := url.Parse(pathAndQuery)
	if err != nil {
		return pathAndQuery
	}
	if u.RawQuery == "" {
		return u.Path
	}

	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return u.Path
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(values))
	for _, k := range keys {
		for _, v := range values[k] {
			pairs = append(pairs, k+"="+v)
		}
	}
	return u.Path + "?" + strings.Join(pairs, "&")
}

// HashBody returns the hex SHA-256 digest of the request body.
//   - empty body: digest of the empty string
//   - JSON: digest of the minified, key-sorted re-serialization, so two
//     semantically identical payloads hash identically regardless of key order
//   - precomputed digest header present: that value, verbatim
//   - anything else: digest of the raw bytes
func HashBody(contentType string, body []byte, precomputed string) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return hashHex(nil)
	}

	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if mediaType == "application/json" {
		if canonical, err := canonicalJSON(trimmed); err == nil {
			return hashHex(canonical)
		}
		// Unparseable JSON falls through to raw hashing; the signature will
		// simply not verify unless the signer did the same.
	}

	if precomputed != "" {
		return strings.ToLower(strings.TrimSpace(precomputed))
	}
	return hashHex(body)
}

// canonicalJSON re-serializes a JSON document with object keys sorted at
// every depth and no insignificant whitespace. Array order is preserved.
// Numbers are kept as their source literals via json.Number so canonical
// output does not depend on float formatting.
func canonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON document")
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encKey, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(encKey)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.Number:
		buf.WriteString(t.String())
		return nil
	default:
		enc, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	}
}

// Signature computes the hex-encoded HMAC-SHA256 of the canonical string.
func Signature(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal compares a caller-provided hex signature against the computed one in
// constant time. Length is checked first: length is public information, so an
// early exit there leaks nothing.
func Equal(provided, computed string) bool {
	providedRaw, err := hex.DecodeString(strings.TrimSpace(provided))
	if err != nil {
		return false
	}
	computedRaw, err := hex.DecodeString(computed)
	if err != nil {
		return false
	}
	if len(providedRaw) != len(computedRaw) {
		return false
	}
	return hmac.Equal(providedRaw, computedRaw)
}

// ParseTimestamp accepts either integer epoch seconds or an RFC3339 datetime.
func ParseTimestamp(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return t.UTC(), nil
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
