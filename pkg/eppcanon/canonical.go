// Package eppcanon implements the canonical encoder (C2): the normative,
// interop-critical byte sequence that senders sign and inboxes verify
// against (spec §4.2). It is exposed as a pure function so that peer
// implementations in other languages can be tested bit-for-bit against it.
package eppcanon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
)

// Fields is the minimal, order-sensitive set of envelope fields the
// canonical encoder needs. It deliberately does not import the envelope
// package's full wire struct, keeping this package a leaf dependency that
// the envelope, trust, and inbox packages all build on.
type Fields struct {
	Version        string
	EnvelopeID     string
	Sender         string // lowercase hex
	Recipient      string // lowercase hex
	Timestamp      string
	ExpiresAt      string
	Nonce          string
	Scope          string
	ConversationID string // "" if absent
	InReplyTo      string // "" if absent
	Delegation     any    // nil if absent, else JSON-marshalable
	Payload        any    // required, JSON-marshalable
}

// Bytes produces the exact UTF-8 byte sequence to sign or verify: the
// twelve lines of spec §4.2 joined by '\n', with no trailing newline.
// The delegation and payload lines use RFC 8785 JSON Canonicalization
// Scheme (sorted keys at every depth, "," / ":" separators) via
// gowebpki/jcs, after which escapeNonASCII rewrites non-ASCII characters
// as \uXXXX (see canonicalJSON).
func Bytes(f Fields) ([]byte, error) {
	delegationLine, err := canonicalJSONOrEmpty(f.Delegation)
	if err != nil {
		return nil, err
	}
	payloadLine, err := canonicalJSON(f.Payload)
	if err != nil {
		return nil, err
	}

	lines := []string{
		f.Version,
		f.EnvelopeID,
		strings.ToLower(f.Sender),
		strings.ToLower(f.Recipient),
		f.Timestamp,
		f.ExpiresAt,
		f.Nonce,
		f.Scope,
		f.ConversationID,
		f.InReplyTo,
		delegationLine,
		payloadLine,
	}
	return []byte(strings.Join(lines, "\n")), nil
}

// canonicalJSON returns the RFC 8785 canonical JSON encoding of v, with the
// additional, protocol-specific requirement of spec §4.2 that non-ASCII
// characters be escaped as \uXXXX (RFC 8785 itself permits literal UTF-8
// here; this protocol's signing preimage does not, to guarantee identical
// bytes across peer implementations with varying default string encoders).
func canonicalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	transformed, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	return string(escapeNonASCII(transformed)), nil
}

// escapeNonASCII rewrites non-ASCII runes found inside JSON string literals
// as \uXXXX escapes (with UTF-16 surrogate pairs above the BMP), leaving
// structural JSON bytes (braces, commas, digits, colons) untouched.
func escapeNonASCII(b []byte) []byte {
	var out bytes.Buffer
	inString := false
	escaped := false

	for i := 0; i < len(b); {
		c := b[i]

		if inString {
			switch {
			case escaped:
				out.WriteByte(c)
				escaped = false
				i++
			case c == '\\':
				out.WriteByte(c)
				escaped = true
				i++
			case c == '"':
				out.WriteByte(c)
				inString = false
				i++
			case c < 0x80:
				out.WriteByte(c)
				i++
			default:
				r, size := utf8.DecodeRune(b[i:])
				if r > 0xFFFF {
					r1, r2 := utf16.EncodeRune(r)
					fmt.Fprintf(&out, "\\u%04x\\u%04x", r1, r2)
				} else {
					fmt.Fprintf(&out, "\\u%04x", r)
				}
				i += size
			}
			continue
		}

		if c == '"' {
			inString = true
		}
		out.WriteByte(c)
		i++
	}

	return out.Bytes()
}

// canonicalJSONOrEmpty returns "" when v is nil (the field is absent from
// the envelope), matching spec §4.2 lines 9-11's "empty string if absent".
func canonicalJSONOrEmpty(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	return canonicalJSON(v)
}
