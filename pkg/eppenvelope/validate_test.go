package eppenvelope_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppenvelope"
)

const (
	testSender    = "aa000000000000000000000000000000000000000000000000000000000000bb"
	testRecipient = "cc000000000000000000000000000000000000000000000000000000000000dd"
)

func nonceOf(n int) string {
	return base64.StdEncoding.EncodeToString(make([]byte, n))
}

// validEnvelope returns a structurally valid envelope. Tests mutate a copy
// of it to isolate exactly one boundary condition at a time.
func validEnvelope() *eppenvelope.Envelope {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	return &eppenvelope.Envelope{
		Version:    eppenvelope.Version,
		EnvelopeID: uuid.NewString(),
		Sender:     testSender,
		Recipient:  testRecipient,
		Timestamp:  now.Format(time.RFC3339),
		ExpiresAt:  now.Add(15 * time.Minute).Format(time.RFC3339),
		Nonce:      nonceOf(16),
		Scope:      "chat",
		Payload:    eppenvelope.Payload{Prompt: "hello"},
		Signature:  base64.StdEncoding.EncodeToString([]byte("sig")),
	}
}

func TestValidateAcceptsWellFormedEnvelope(t *testing.T) {
	env := validEnvelope()
	require.NoError(t, eppenvelope.Validate(env))
}

func TestValidateNonceExactly16BytesAccepted(t *testing.T) {
	env := validEnvelope()
	env.Nonce = nonceOf(16)
	require.NoError(t, eppenvelope.Validate(env))
}

func TestValidateNonce15BytesRejected(t *testing.T) {
	env := validEnvelope()
	env.Nonce = nonceOf(15)
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nonce must decode to at least 16 bytes")
}

func TestValidateExpiresAtEqualTimestampRejected(t *testing.T) {
	env := validEnvelope()
	env.ExpiresAt = env.Timestamp
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "expires_at must be strictly after timestamp")
}

func TestValidateExpiresAtAfterTimestampAccepted(t *testing.T) {
	env := validEnvelope()
	ts, err := eppenvelope.ParseTimestamp(env.Timestamp)
	require.NoError(t, err)
	env.ExpiresAt = ts.Add(time.Second).Format(time.RFC3339)
	require.NoError(t, eppenvelope.Validate(env))
}

func TestValidateScopeWithSpaceRejected(t *testing.T) {
	env := validEnvelope()
	env.Scope = "chat search"
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "scope must match")
}

func TestValidateScopeLengthOneAccepted(t *testing.T) {
	env := validEnvelope()
	env.Scope = "a"
	require.NoError(t, eppenvelope.Validate(env))
}

func TestValidateWrongVersionRejected(t *testing.T) {
	env := validEnvelope()
	env.Version = "2"
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), `version must be "1"`)
}

func TestValidateNonUUIDEnvelopeIDRejected(t *testing.T) {
	env := validEnvelope()
	env.EnvelopeID = "not-a-uuid"
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "envelope_id must be a UUID")
}

func TestValidateSenderWrongLengthRejected(t *testing.T) {
	env := validEnvelope()
	env.Sender = "aa"
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "sender must be 64 hex characters")
}

func TestValidateMalformedTimestampRejected(t *testing.T) {
	env := validEnvelope()
	env.Timestamp = "not-a-timestamp"
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timestamp must be ISO-8601 UTC")
}

func TestValidateTimestampWithoutUTCSuffixRejected(t *testing.T) {
	env := validEnvelope()
	env.Timestamp = "2026-07-31T12:00:00-05:00"
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timestamp must be ISO-8601 UTC")
}

func TestValidateNonceInvalidBase64Rejected(t *testing.T) {
	env := validEnvelope()
	env.Nonce = "not valid base64!!"
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nonce must be valid base64")
}

func TestValidateSignatureInvalidBase64Rejected(t *testing.T) {
	env := validEnvelope()
	env.Signature = "not valid base64!!"
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "signature must be valid base64")
}

func TestValidateEmptyPromptRejected(t *testing.T) {
	env := validEnvelope()
	env.Payload.Prompt = "   "
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "payload.prompt must be non-empty")
}

func TestValidatePayloadTypeInvalidCharsRejected(t *testing.T) {
	env := validEnvelope()
	env.Payload.PayloadType = "text/plain"
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "payload.payload_type must match")
}

func TestValidateDelegationBadOnBehalfOfRejected(t *testing.T) {
	env := validEnvelope()
	env.Delegation = &eppenvelope.Delegation{OnBehalfOf: "not-hex"}
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "delegation.on_behalf_of must be 64 hex characters")
}

func TestValidateIntegrityBadAlgRejected(t *testing.T) {
	env := validEnvelope()
	env.Integrity = &eppenvelope.Integrity{Alg: "md5", Hash: "aabbcc"}
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "integrity.alg must be one of sha256, sha384, sha512")
}

func TestValidateIntegrityUppercaseHashRejected(t *testing.T) {
	env := validEnvelope()
	env.Integrity = &eppenvelope.Integrity{Alg: "sha256", Hash: "AABBCC"}
	err := eppenvelope.Validate(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "integrity.hash must be lowercase hex")
}

func TestValidateLowercasesSenderAndRecipient(t *testing.T) {
	env := validEnvelope()
	env.Sender = "AA000000000000000000000000000000000000000000000000000000000000BB"
	env.Recipient = "CC000000000000000000000000000000000000000000000000000000000000DD"
	require.NoError(t, eppenvelope.Validate(env))
	require.Equal(t, "aa000000000000000000000000000000000000000000000000000000000000bb", env.Sender)
	require.Equal(t, "cc000000000000000000000000000000000000000000000000000000000000dd", env.Recipient)
}

func TestParseAndValidateRejectsMalformedJSON(t *testing.T) {
	_, err := eppenvelope.ParseAndValidate([]byte("{not json"))
	require.Error(t, err)
}
