// Package eppenvelope implements the envelope data model and the
// structural/field-level validator (C3): it produces a typed envelope
// value or fails with InvalidFormatError, per spec §3 and §4.3.
package eppenvelope

import (
	"encoding/json"
	"strings"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppcanon"
)

// Version is the only envelope format version this implementation accepts.
const Version = "1"

// Delegation is the optional, signed "acting on behalf of" assertion.
type Delegation struct {
	OnBehalfOf    string `json:"on_behalf_of"`
	Authorization string `json:"authorization,omitempty"`
}

// Integrity is the optional, advisory content-integrity extension. It is
// not part of the signing preimage and never influences admission (spec §9
// open questions: advisory only).
type Integrity struct {
	Alg  string `json:"alg"`
	Hash string `json:"hash"`
}

// Payload carries the instruction itself plus free-form context/metadata.
type Payload struct {
	Prompt      string         `json:"prompt"`
	Context     map[string]any `json:"context,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	PayloadType string         `json:"payload_type,omitempty"`
}

// Envelope is the wire form of the unit of authority described in spec §3.
// Field names and JSON tags are normative: they are the interop surface.
type Envelope struct {
	Version        string `json:"version"`
	EnvelopeID     string `json:"envelope_id"`
	Sender         string `json:"sender"`
	Recipient      string `json:"recipient"`
	Timestamp      string `json:"timestamp"`
	ExpiresAt      string `json:"expires_at"`
	Nonce          string `json:"nonce"`
	Scope          string `json:"scope"`
	Payload        Payload `json:"payload"`
	Signature      string `json:"signature"`
	ConversationID string `json:"conversation_id,omitempty"`
	InReplyTo      string `json:"in_reply_to,omitempty"`

	Delegation *Delegation `json:"delegation,omitempty"`

	// Extension attributes: present in the wire form and preserved for
	// executors/operators, but never part of the C2 signing preimage
	// (spec §9: "their security is therefore conditional on out-of-band
	// binding"; the core treats them as advisory).
	Integrity    *Integrity     `json:"integrity,omitempty"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	Provenance   map[string]any `json:"provenance,omitempty"`
	Payment      map[string]any `json:"payment,omitempty"`
}

// Parse decodes a raw JSON envelope. Unknown top-level fields are
// silently ignored (the normative strict choice of spec §4.3: only the
// named fields above ever participate in signing, and Parse does not use
// DisallowUnknownFields, so stray fields never surface as an error and
// never reach the canonical encoder).
func Parse(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &InvalidFormatError{Reason: "malformed JSON: " + err.Error()}
	}
	return &env, nil
}

// CanonicalFields projects the envelope into the field set the canonical
// encoder (pkg/eppcanon) signs over.
func (e *Envelope) CanonicalFields() eppcanon.Fields {
	var delegation any
	if e.Delegation != nil {
		delegation = e.Delegation
	}

	return eppcanon.Fields{
		Version:        e.Version,
		EnvelopeID:     e.EnvelopeID,
		Sender:         strings.ToLower(e.Sender),
		Recipient:      strings.ToLower(e.Recipient),
		Timestamp:      e.Timestamp,
		ExpiresAt:      e.ExpiresAt,
		Nonce:          e.Nonce,
		Scope:          e.Scope,
		ConversationID: e.ConversationID,
		InReplyTo:      e.InReplyTo,
		Delegation:     delegation,
		Payload:        e.Payload,
	}
}

// CanonicalBytes is a convenience wrapper combining CanonicalFields and
// eppcanon.Bytes — the exact preimage a sender signs and an inbox verifies.
func (e *Envelope) CanonicalBytes() ([]byte, error) {
	return eppcanon.Bytes(e.CanonicalFields())
}
