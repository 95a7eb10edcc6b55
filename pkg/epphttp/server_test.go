package epphttp_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppenvelope"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppexec"
	"github.com/elliptic1/external-prompt-protocol/pkg/epphttp"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppinbox"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppkey"
	"github.com/elliptic1/external-prompt-protocol/pkg/epplimiter"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppnonce"
	"github.com/elliptic1/external-prompt-protocol/pkg/epptrust"
)

func newTestServer(t *testing.T) (*epphttp.Server, eppkey.PublicKey, eppkey.PrivateKey, eppkey.PublicKey) {
	t.Helper()
	senderPub, senderPriv, err := eppkey.GenerateKeyPair()
	require.NoError(t, err)
	recipientPub, _, err := eppkey.GenerateKeyPair()
	require.NoError(t, err)

	trustStore := epptrust.NewFileStore(filepath.Join(t.TempDir(), "trust.json"))
	trust, err := epptrust.NewRegistry(trustStore)
	require.NoError(t, err)
	maxSize := 10 * 1024 * 1024
	require.NoError(t, trust.Add(senderPub.Hex(), epptrust.Entry{
		Name:      "sender",
		PublicKey: senderPub.Hex(),
		Policy: epptrust.Policy{
			AllowedScopes:   []string{"*"},
			MaxEnvelopeSize: &maxSize,
		},
	}))

	nonces := eppnonce.NewRegistry(eppnonce.NewInMemoryStore(), time.Minute)
	limiter := epplimiter.NewInMemoryLimiter()
	inbox := eppinbox.NewInbox(recipientPub.Hex(), trust, nonces, limiter, eppexec.NoopExecutor{})

	return epphttp.NewServer(inbox, recipientPub.Hex(), nil), senderPub, senderPriv, recipientPub
}

func buildSignedEnvelope(t *testing.T, senderPub eppkey.PublicKey, senderPriv eppkey.PrivateKey, recipientHex string) []byte {
	t.Helper()
	nonce := make([]byte, 16)
	_, err := rand.Read(nonce)
	require.NoError(t, err)

	now := time.Now().UTC()
	env := &eppenvelope.Envelope{
		Version:    eppenvelope.Version,
		EnvelopeID: uuid.NewString(),
		Sender:     senderPub.Hex(),
		Recipient:  recipientHex,
		Timestamp:  now.Format(time.RFC3339),
		ExpiresAt:  now.Add(15 * time.Minute).Format(time.RFC3339),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Scope:      "test",
		Payload:    eppenvelope.Payload{Prompt: "Hello"},
	}
	preimage, err := env.CanonicalBytes()
	require.NoError(t, err)
	env.Signature = base64.StdEncoding.EncodeToString(senderPriv.Sign(preimage))

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func TestSubmitHappyPathReturns200(t *testing.T) {
	srv, senderPub, senderPriv, recipientPub := newTestServer(t)
	raw := buildSignedEnvelope(t, senderPub, senderPriv, recipientPub.Hex())

	req := httptest.NewRequest(http.MethodPost, "/epp/v1/submit", bytes.NewReader(raw)).WithContext(context.Background())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "accepted", body["status"])
}

func TestSubmitWrongRecipientReturns400(t *testing.T) {
	srv, senderPub, senderPriv, _ := newTestServer(t)
	otherPub, _, err := eppkey.GenerateKeyPair()
	require.NoError(t, err)
	raw := buildSignedEnvelope(t, senderPub, senderPriv, otherPub.Hex())

	req := httptest.NewRequest(http.MethodPost, "/epp/v1/submit", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitUntrustedSenderReturns403(t *testing.T) {
	srv, _, _, recipientPub := newTestServer(t)
	otherPub, otherPriv, err := eppkey.GenerateKeyPair()
	require.NoError(t, err)
	raw := buildSignedEnvelope(t, otherPub, otherPriv, recipientPub.Hex())

	req := httptest.NewRequest(http.MethodPost, "/epp/v1/submit", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBannerEndpointReportsRecipientKey(t *testing.T) {
	srv, _, _, recipientPub := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, recipientPub.Hex(), body["recipient_key"])
}
