// Package signer provides Ed25519 detached signatures over arbitrary
// UTF-8 byte strings, used to sign individual audit chain records.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// KeyPair holds an Ed25519 signing keypair, hex-encoded for persistence.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// KeyID returns the short identifier for this keypair: the last 32 hex
// characters (16 bytes) of the hex-encoded public key.
func (k KeyPair) KeyID() string {
	return KeyIDFromPublicKey(k.PublicKey)
}

// KeyIDFromPublicKey derives a keyId from a raw public key, for callers that
// only hold the public half. KeyPair.KeyID delegates to it.
func KeyIDFromPublicKey(pub ed25519.PublicKey) string {
	h := hex.EncodeToString(pub)
	if len(h) < 32 {
		return h
	}
	return h[len(h)-32:]
}

// Generate creates a new random Ed25519 keypair.
func Generate() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// Sign produces a detached hex-encoded signature over msg.
func (k KeyPair) Sign(msg []byte) string {
	sig := ed25519.Sign(k.PrivateKey, msg)
	return hex.EncodeToString(sig)
}

// Verify checks a hex-encoded detached signature against msg using pub.
// It never panics: malformed hex or wrong-length keys/signatures simply
// return false.
func Verify(pub ed25519.PublicKey, msg []byte, sigHex string) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// PublicKeyHex returns the hex encoding of the public key.
func (k KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(k.PublicKey)
}

// PrivateKeyHex returns the hex encoding of the private key. Callers persist
// this alongside the public key in SessionState; it must be protected with
// restrictive file permissions by the caller.
func (k KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(k.PrivateKey)
}

// FromHex reconstructs a KeyPair from hex-encoded public/private keys, e.g.
// when loading SessionState from disk.
func FromHex(pubHex, privHex string) (KeyPair, error) {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return KeyPair{}, fmt.Errorf("decode public key: %w", err)
	}
	priv, err := hex.DecodeString(privHex)
	if err != nil {
		return KeyPair{}, fmt.Errorf("decode private key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize || len(priv) != ed25519.PrivateKeySize {
		return KeyPair{}, fmt.Errorf("invalid key length: pub=%d priv=%d", len(pub), len(priv))
	}
	return KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}
