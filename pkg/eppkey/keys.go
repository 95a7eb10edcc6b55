// Package eppkey implements the Ed25519 key primitives (C1) that the rest
// of the External Prompt Protocol builds on: keypair generation, raw and
// PEM encoding of private keys (optionally passphrase-encrypted), and
// hex encoding of public keys.
package eppkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// ErrBadKeyEncoding is returned when a hex or PEM key fails to decode to a
// valid Ed25519 key of the expected size.
var ErrBadKeyEncoding = errors.New("eppkey: bad key encoding")

// ErrWrongPassphrase is returned when PEM decryption fails, which for an
// authenticated cipher means either the wrong passphrase or a corrupted file.
var ErrWrongPassphrase = errors.New("eppkey: wrong passphrase or corrupted key file")

const (
	pemBlockType    = "PRIVATE KEY"
	encPemBlockType = "ENCRYPTED EPP PRIVATE KEY"
	scryptN         = 1 << 15
	scryptR         = 8
	scryptP         = 1
	saltSize        = 16
)

// PublicKey is a 32-byte Ed25519 public key. It is comparable and usable as
// a map key, since equality and hashing over public keys is defined over
// raw bytes (spec §4.1).
type PublicKey [ed25519.PublicKeySize]byte

// PrivateKey wraps a raw Ed25519 private key.
type PrivateKey struct {
	raw ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 keypair.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, PrivateKey{}, fmt.Errorf("eppkey: generate: %w", err)
	}
	var pk PublicKey
	copy(pk[:], pub)
	return pk, PrivateKey{raw: priv}, nil
}

// Bytes returns the raw 32-byte public key.
func (k PublicKey) Bytes() []byte {
	b := make([]byte, len(k))
	copy(b, k[:])
	return b
}

// Hex returns the lowercase 64-character hex encoding of the public key.
func (k PublicKey) Hex() string {
	return hex.EncodeToString(k[:])
}

// Ed25519 returns the stdlib representation, for signature verification.
func (k PublicKey) Ed25519() ed25519.PublicKey {
	return ed25519.PublicKey(k[:])
}

// PublicKeyFromHex decodes a 64-character lowercase (case-insensitive on
// input) hex string into a PublicKey. It fails with ErrBadKeyEncoding on
// wrong length or non-hex input, per spec §4.1.
func PublicKeyFromHex(s string) (PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return PublicKey{}, ErrBadKeyEncoding
	}
	var pk PublicKey
	copy(pk[:], raw)
	return pk, nil
}

// PublicKeyFromBytes wraps a raw 32-byte slice as a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return PublicKey{}, ErrBadKeyEncoding
	}
	var pk PublicKey
	copy(pk[:], b)
	return pk, nil
}

// Public derives the public key from a PrivateKey.
func (p PrivateKey) Public() PublicKey {
	pub := p.raw.Public().(ed25519.PublicKey)
	var pk PublicKey
	copy(pk[:], pub)
	return pk
}

// Sign signs data with the Ed25519 private key, returning the raw
// 64-byte signature.
func (p PrivateKey) Sign(data []byte) []byte {
	return ed25519.Sign(p.raw, data)
}

// EncodeRaw returns the raw 32-byte seed form of the private key.
func (p PrivateKey) EncodeRaw() []byte {
	return p.raw.Seed()
}

// PrivateKeyFromRaw reconstructs a PrivateKey from its 32-byte seed.
func PrivateKeyFromRaw(seed []byte) (PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return PrivateKey{}, ErrBadKeyEncoding
	}
	return PrivateKey{raw: ed25519.NewKeyFromSeed(seed)}, nil
}

// EncodePEM marshals the private key as a PKCS#8 PEM block. When passphrase
// is non-empty, the PEM payload is additionally wrapped in scrypt-derived
// XSalsa20-Poly1305 authenticated encryption (golang.org/x/crypto/nacl/secretbox),
// the best-available authenticated scheme in this dependency set, per
// spec §4.1's "best-available authenticated encryption" requirement.
func (p PrivateKey) EncodePEM(passphrase string) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(p.raw)
	if err != nil {
		return nil, fmt.Errorf("eppkey: marshal pkcs8: %w", err)
	}

	if passphrase == "" {
		block := &pem.Block{Type: pemBlockType, Bytes: der}
		return pem.EncodeToMemory(block), nil
	}

	sealed, err := sealWithPassphrase(der, passphrase)
	if err != nil {
		return nil, err
	}
	block := &pem.Block{Type: encPemBlockType, Bytes: sealed}
	return pem.EncodeToMemory(block), nil
}

// DecodePEM parses a PEM block produced by EncodePEM. passphrase must match
// what EncodePEM was given (empty if the key was not encrypted).
func DecodePEM(data []byte, passphrase string) (PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return PrivateKey{}, ErrBadKeyEncoding
	}

	var der []byte
	switch block.Type {
	case pemBlockType:
		der = block.Bytes
	case encPemBlockType:
		plain, err := openWithPassphrase(block.Bytes, passphrase)
		if err != nil {
			return PrivateKey{}, err
		}
		der = plain
	default:
		return PrivateKey{}, ErrBadKeyEncoding
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("%w: parse pkcs8: %v", ErrBadKeyEncoding, err)
	}
	ed25519Key, ok := key.(ed25519.PrivateKey)
	if !ok {
		return PrivateKey{}, ErrBadKeyEncoding
	}
	return PrivateKey{raw: ed25519Key}, nil
}

// sealWithPassphrase derives a 32-byte key via scrypt and seals plaintext
// with secretbox, prefixing the output with salt || nonce.
func sealWithPassphrase(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("eppkey: salt: %w", err)
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("eppkey: nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plaintext, &nonce, key)
	return out, nil
}

func openWithPassphrase(sealed []byte, passphrase string) ([]byte, error) {
	if len(sealed) < saltSize+24 {
		return nil, ErrBadKeyEncoding
	}
	salt := sealed[:saltSize]
	var nonce [24]byte
	copy(nonce[:], sealed[saltSize:saltSize+24])
	ciphertext := sealed[saltSize+24:]

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}

	plain, ok := secretbox.Open(nil, ciphertext, &nonce, key)
	if !ok {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

func deriveKey(passphrase string, salt []byte) (*[32]byte, error) {
	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("eppkey: scrypt: %w", err)
	}
	var key [32]byte
	copy(key[:], derived)
	return &key, nil
}
