package eppenvelope

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvalidFormatError is the structural/field-level validation failure of
// spec §4.3. Its Reason is sanitized for the caller (spec §7: no internal
// stack traces or stateful hints).
type InvalidFormatError struct {
	Reason string
}

func (e *InvalidFormatError) Error() string {
	return "invalid format: " + e.Reason
}

var (
	scopeRe       = regexp.MustCompile(`^[A-Za-z0-9\-]+$`)
	payloadTypeRe = scopeRe
	hexKeyRe      = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// MinNonceBytes is the minimum decoded length of the base64 nonce (spec §3).
const MinNonceBytes = 16

// Validate performs every structural/field-level check of spec §4.3 and
// returns nil or an *InvalidFormatError. On success it normalizes e in
// place (sender, recipient and delegation.on_behalf_of lowercased). All
// checks are independent of order; every one must hold.
func Validate(e *Envelope) error {
	var reasons []string

	check := func(ok bool, reason string) {
		if !ok {
			reasons = append(reasons, reason)
		}
	}

	check(e.Version == Version, fmt.Sprintf("version must be %q", Version))

	if _, err := uuid.Parse(e.EnvelopeID); err != nil {
		reasons = append(reasons, "envelope_id must be a UUID")
	}
	if e.ConversationID != "" {
		if _, err := uuid.Parse(e.ConversationID); err != nil {
			reasons = append(reasons, "conversation_id must be a UUID")
		}
	}
	if e.InReplyTo != "" {
		if _, err := uuid.Parse(e.InReplyTo); err != nil {
			reasons = append(reasons, "in_reply_to must be a UUID")
		}
	}

	check(hexKeyRe.MatchString(e.Sender), "sender must be 64 hex characters")
	check(hexKeyRe.MatchString(e.Recipient), "recipient must be 64 hex characters")

	ts, tsErr := parseISO8601UTC(e.Timestamp)
	if tsErr != nil {
		reasons = append(reasons, "timestamp must be ISO-8601 UTC")
	}
	exp, expErr := parseISO8601UTC(e.ExpiresAt)
	if expErr != nil {
		reasons = append(reasons, "expires_at must be ISO-8601 UTC")
	}
	if tsErr == nil && expErr == nil {
		check(exp.After(ts), "expires_at must be strictly after timestamp")
	}

	nonceBytes, nonceErr := base64.StdEncoding.DecodeString(e.Nonce)
	if nonceErr != nil {
		reasons = append(reasons, "nonce must be valid base64")
	} else {
		check(len(nonceBytes) >= MinNonceBytes, fmt.Sprintf("nonce must decode to at least %d bytes", MinNonceBytes))
	}

	if _, err := base64.StdEncoding.DecodeString(e.Signature); err != nil {
		reasons = append(reasons, "signature must be valid base64")
	}

	check(scopeRe.MatchString(e.Scope), "scope must match [A-Za-z0-9-]+")

	check(strings.TrimSpace(e.Payload.Prompt) != "", "payload.prompt must be non-empty after trimming whitespace")
	if e.Payload.PayloadType != "" {
		check(payloadTypeRe.MatchString(e.Payload.PayloadType), "payload.payload_type must match [A-Za-z0-9-]+")
	}

	if e.Delegation != nil {
		check(hexKeyRe.MatchString(e.Delegation.OnBehalfOf), "delegation.on_behalf_of must be 64 hex characters")
	}

	if e.Integrity != nil {
		validAlg := e.Integrity.Alg == "sha256" || e.Integrity.Alg == "sha384" || e.Integrity.Alg == "sha512"
		check(validAlg, "integrity.alg must be one of sha256, sha384, sha512")
		check(isLowercaseHex(e.Integrity.Hash), "integrity.hash must be lowercase hex")
	}

	if len(reasons) > 0 {
		return &InvalidFormatError{Reason: strings.Join(reasons, "; ")}
	}

	e.Sender = strings.ToLower(e.Sender)
	e.Recipient = strings.ToLower(e.Recipient)
	if e.Delegation != nil {
		e.Delegation.OnBehalfOf = strings.ToLower(e.Delegation.OnBehalfOf)
	}

	return nil
}

// ParseAndValidate combines Parse and Validate, the entry point gate 1 of
// the admission pipeline (spec §4.7 step 1) uses.
func ParseAndValidate(raw []byte) (*Envelope, error) {
	env, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(env); err != nil {
		return nil, err
	}
	return env, nil
}

// ParseTimestamp parses an ISO-8601 UTC timestamp using the same rules
// Validate applies to timestamp/expires_at.
func ParseTimestamp(s string) (time.Time, error) {
	return parseISO8601UTC(s)
}

func parseISO8601UTC(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if !strings.HasSuffix(s, "Z") && !strings.HasSuffix(s, "+00:00") {
		return time.Time{}, fmt.Errorf("timestamp must end in Z or +00:00")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable ISO-8601 timestamp")
}

func isLowercaseHex(s string) bool {
	if s == "" {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && s == strings.ToLower(s)
}
