// Package eppinbox wires the envelope validator, signature check, replay
// registry, trust registry, rate limiter, and executor into the admission
// pipeline (C7) — the ordered sequence of gates of spec §4.7. It is the
// kernel-level enforcement boundary the rest of this module builds on: no
// envelope reaches an executor without passing every gate, in order,
// fail-closed.
package eppinbox

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppenvelope"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppexec"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppkey"
	"github.com/elliptic1/external-prompt-protocol/pkg/epplimiter"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppnonce"
	"github.com/elliptic1/external-prompt-protocol/pkg/epppolicy"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppreceipt"
	"github.com/elliptic1/external-prompt-protocol/pkg/epptrust"
)

// Inbox binds one recipient identity (public key) to the registries and
// executor it admits envelopes against.
type Inbox struct {
	recipientHex string
	trust        *epptrust.Registry
	nonces       *eppnonce.Registry
	limiter      epplimiter.Limiter
	executor     eppexec.Executor
	scopeEval    *epppolicy.ScopeEvaluator
	now          func() time.Time
}

// Option configures an Inbox at construction time.
type Option func(*Inbox)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(i *Inbox) { i.now = now }
}

// WithScopeEvaluator attaches the optional CEL scope-expression evaluator
// (SPEC_FULL.md's additive policy extension). An Inbox without one denies
// every sender whose policy sets ScopeExpr.
func WithScopeEvaluator(se *epppolicy.ScopeEvaluator) Option {
	return func(i *Inbox) { i.scopeEval = se }
}

// NewInbox constructs an Inbox bound to recipientHex (the inbox's own
// public key, 64 lowercase hex chars).
func NewInbox(recipientHex string, trust *epptrust.Registry, nonces *eppnonce.Registry, limiter epplimiter.Limiter, executor eppexec.Executor, opts ...Option) *Inbox {
	i := &Inbox{
		recipientHex: strings.ToLower(recipientHex),
		trust:        trust,
		nonces:       nonces,
		limiter:      limiter,
		executor:     executor,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Submit runs raw through the twelve-gate admission pipeline of spec §4.7
// and returns the resulting Receipt. The pipeline stops at the first
// failing gate; gates after that point are never evaluated.
func (i *Inbox) Submit(ctx context.Context, raw []byte) eppreceipt.Receipt {
	now := i.now().UTC()
	receivedAt := now.Format(time.RFC3339Nano)

	// Gate 1: parse / structural validate.
	env, err := eppenvelope.ParseAndValidate(raw)
	if err != nil {
		return eppreceipt.Rejected(eppreceipt.UnknownEnvelopeID, receivedAt, eppreceipt.InvalidFormat, err.Error())
	}
	envelopeID := env.EnvelopeID

	reject := func(code eppreceipt.Code, message string) eppreceipt.Receipt {
		return eppreceipt.Rejected(envelopeID, receivedAt, code, message)
	}

	// Gate 2: version.
	if env.Version != eppenvelope.Version {
		return reject(eppreceipt.UnsupportedVersion, "unsupported envelope version")
	}

	// Gate 3: recipient (case-insensitive hex compare).
	if strings.ToLower(env.Recipient) != i.recipientHex {
		return reject(eppreceipt.WrongRecipient, "envelope is not addressed to this inbox")
	}

	// Gate 4: freshness.
	expiresAt, err := eppenvelope.ParseTimestamp(env.ExpiresAt)
	if err != nil || !now.Before(expiresAt) {
		return reject(eppreceipt.Expired, "envelope has expired")
	}

	// Gate 5: signature. Decoding failures collapse into the same code as
	// a bad signature, so no oracle distinguishes "malformed" from "wrong".
	if !verifySignature(env) {
		return reject(eppreceipt.InvalidSignature, "signature verification failed")
	}

	// Gate 6: replay (check).
	if i.nonces.HasSeen(env.Nonce) {
		return reject(eppreceipt.ReplayDetected, "nonce has already been used")
	}

	// Gate 7: trust.
	entry, ok := i.trust.Get(env.Sender)
	if !ok {
		return reject(eppreceipt.UntrustedSender, "sender is not a trusted key")
	}

	// Gate 8: scope.
	if !entry.Policy.AllowsScope(env.Scope) {
		return reject(eppreceipt.PolicyDenied, "scope not permitted for this sender")
	}
	if entry.Policy.ScopeExpr != "" {
		if i.scopeEval == nil {
			return reject(eppreceipt.PolicyDenied, "scope_expr denied")
		}
		prg, err := i.scopeEval.Compile(entry.Policy.ScopeExpr)
		if err != nil || !i.scopeEval.Eval(prg, env.Scope, env.Sender, env.Recipient, payloadMap(env)) {
			return reject(eppreceipt.PolicyDenied, "scope_expr denied")
		}
	}

	// Gate 9: size. A nil MaxEnvelopeSize means no limit was configured; a
	// non-nil pointer — even one pointing at 0 — enforces the literal
	// size_bytes <= max_envelope_size comparison (spec §3).
	if entry.Policy.MaxEnvelopeSize != nil && len(raw) > *entry.Policy.MaxEnvelopeSize {
		return reject(eppreceipt.SizeExceeded, "envelope exceeds max_envelope_size")
	}

	// Gate 10: rate.
	var maxPerHour, maxPerDay *int
	if entry.Policy.RateLimit != nil {
		maxPerHour = entry.Policy.RateLimit.MaxPerHour
		maxPerDay = entry.Policy.RateLimit.MaxPerDay
	}
	if err := i.limiter.CheckAndRecord(ctx, env.Sender, maxPerHour, maxPerDay); err != nil {
		return reject(eppreceipt.RateLimited, err.Error())
	}

	// Gate 11: commit nonce. A race loss here is reported identically to a
	// check-time replay (spec §4.7 step 11).
	if err := i.nonces.Add(env.Nonce, expiresAt); err != nil {
		return reject(eppreceipt.ReplayDetected, "nonce has already been used")
	}

	// Gate 12: execute. Executor failure does not demote the receipt.
	i.executor.Execute(ctx, env)

	return eppreceipt.Accepted(envelopeID, receivedAt, uuid.NewString(), i.executor.Name())
}

func payloadMap(env *eppenvelope.Envelope) map[string]any {
	return map[string]any{
		"prompt":       env.Payload.Prompt,
		"context":      env.Payload.Context,
		"metadata":     env.Payload.Metadata,
		"payload_type": env.Payload.PayloadType,
	}
}

func verifySignature(env *eppenvelope.Envelope) bool {
	pub, err := eppkey.PublicKeyFromHex(env.Sender)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return false
	}
	preimage, err := env.CanonicalBytes()
	if err != nil {
		return false
	}
	return ed25519.Verify(pub.Ed25519(), preimage, sig)
}
