package eppkey_test

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppkey"
)

func TestGenerateKeyPairSignVerify(t *testing.T) {
	pub, priv, err := eppkey.GenerateKeyPair()
	require.NoError(t, err)
	require.Equal(t, pub, priv.Public())

	msg := []byte("hello epp")
	sig := priv.Sign(msg)
	require.True(t, ed25519.Verify(pub.Ed25519(), msg, sig))
}

func TestPublicKeyHexRoundTrip(t *testing.T) {
	pub, _, err := eppkey.GenerateKeyPair()
	require.NoError(t, err)

	h := pub.Hex()
	require.Len(t, h, 64)
	require.Equal(t, strings.ToLower(h), h)

	back, err := eppkey.PublicKeyFromHex(h)
	require.NoError(t, err)
	require.Equal(t, pub, back)
}

func TestPublicKeyFromHexBadInput(t *testing.T) {
	_, err := eppkey.PublicKeyFromHex("not-hex")
	require.ErrorIs(t, err, eppkey.ErrBadKeyEncoding)

	_, err = eppkey.PublicKeyFromHex("abcd")
	require.ErrorIs(t, err, eppkey.ErrBadKeyEncoding)
}

func TestPrivateKeyRawRoundTrip(t *testing.T) {
	_, priv, err := eppkey.GenerateKeyPair()
	require.NoError(t, err)

	seed := priv.EncodeRaw()
	require.Len(t, seed, ed25519.SeedSize)

	back, err := eppkey.PrivateKeyFromRaw(seed)
	require.NoError(t, err)
	require.Equal(t, priv.Public(), back.Public())
}

func TestPrivateKeyPEMRoundTripUnencrypted(t *testing.T) {
	_, priv, err := eppkey.GenerateKeyPair()
	require.NoError(t, err)

	pemBytes, err := priv.EncodePEM("")
	require.NoError(t, err)
	require.Contains(t, string(pemBytes), "PRIVATE KEY")

	back, err := eppkey.DecodePEM(pemBytes, "")
	require.NoError(t, err)
	require.Equal(t, priv.Public(), back.Public())
}

func TestPrivateKeyPEMRoundTripEncrypted(t *testing.T) {
	_, priv, err := eppkey.GenerateKeyPair()
	require.NoError(t, err)

	pemBytes, err := priv.EncodePEM("correct horse battery staple")
	require.NoError(t, err)
	require.Contains(t, string(pemBytes), "ENCRYPTED")

	back, err := eppkey.DecodePEM(pemBytes, "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, priv.Public(), back.Public())

	_, err = eppkey.DecodePEM(pemBytes, "wrong passphrase")
	require.ErrorIs(t, err, eppkey.ErrWrongPassphrase)
}
