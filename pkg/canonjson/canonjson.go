// Package canonjson produces a canonical JSON encoding with stable key
// ordering and normalized number formatting, plus BLAKE2b-256 digests over
// that encoding. Two logically identical values always canonicalize to the
// same bytes regardless of construction order, which makes the digests safe
// to chain into Merkle structures.
package canonjson

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// Marshal returns the canonical encoding of v: object keys sorted
// lexicographically, numbers in shortest round-trip form, no insignificant
// whitespace.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonjson: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonjson: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sum canonicalizes v and returns its BLAKE2b-256 digest.
func Sum(v any) ([32]byte, error) {
	var digest [32]byte
	b, err := Marshal(v)
	if err != nil {
		return digest, err
	}
	return blake2b.Sum256(b), nil
}

// SumHex canonicalizes v and returns the digest as lowercase hex prefixed
// with the hash family, matching the persisted whylog_hash form.
func SumHex(v any) (string, error) {
	digest, err := Sum(v)
	if err != nil {
		return "", err
	}
	return "blake2b:" + hex.EncodeToString(digest[:]), nil
}

// SumBytes hashes raw bytes with the same function the canonical encoder
// uses, for callers that already hold canonical material.
func SumBytes(b []byte) [32]byte {
	return blake2b.Sum256(b)
}

func encode(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		escaped, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("canonjson: string: %w", err)
		}
		buf.Write(escaped)
	case json.Number:
		return encodeNumber(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
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
			escaped, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("canonjson: key: %w", err)
			}
			buf.Write(escaped)
			buf.WriteByte(':')
			if err := encode(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonjson: unsupported type %T", v)
	}
	return nil
}

// encodeNumber normalizes numeric literals so 1e-6 and 0.000001 encode
// identically. Integers that fit int64 keep their exact form; everything
// else goes through shortest round-trip float formatting.
func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canonjson: number %q: %w", n.String(), err)
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
