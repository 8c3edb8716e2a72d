// Copyright 2025 Certen Protocol
//
// Package signer wraps a secp256k1 private key as the batcher's own
// signing identity. The gateway signs every transaction and batch it
// submits; it never forwards a client's signature onto the wire formats
// it builds.

package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Signer holds the batcher's secp256k1 keypair.
type Signer struct {
	privateKey *btcec.PrivateKey
	pubKeyHex  string
}

// New wraps an existing private key.
func New(priv *btcec.PrivateKey) *Signer {
	return &Signer{
		privateKey: priv,
		pubKeyHex:  hex.EncodeToString(priv.PubKey().SerializeCompressed()),
	}
}

// Generate creates a signer from a freshly generated private key. The
// gatewayd binary does not call it: config validation requires
// PRIVATE_KEY_PATH, and the binary always loads its key with LoadFromFile.
func Generate() (*Signer, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return New(priv), nil
}

// LoadFromFile reads a hex-encoded 32-byte private key from path.
func LoadFromFile(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file: %w", err)
	}
	return LoadFromHex(strings.TrimSpace(string(raw)))
}

// LoadFromHex parses a hex-encoded 32-byte private key.
func LoadFromHex(keyHex string) (*Signer, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return New(priv), nil
}

// PublicKeyHex returns the 33-byte compressed public key, hex-encoded.
// This is the batcher_public_key and signer_public_key carried on every
// TransactionHeader, and the signer_public_key of every BatchHeader, the
// batcher produces.
func (s *Signer) PublicKeyHex() string {
	return s.pubKeyHex
}

// Sign signs data and returns a hex-encoded DER signature. Unlike the
// Bitcoin convention, the gateway signs a plain SHA-256 digest of data,
// not a double hash: the data it signs (transaction and batch headers)
// is serialized protobuf, hashed once here before signing.
func (s *Signer) Sign(data []byte) (string, error) {
	digest := sha256.Sum256(data)
	sig := ecdsa.Sign(s.privateKey, digest[:])
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks a hex-encoded DER signature over data against a
// hex-encoded compressed public key. Used by the batch builder to reject
// requests whose client signature does not match their claimed sender.
func Verify(data []byte, sigHex, pubKeyHex string) (bool, error) {
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("decode signature hex: %w", err)
	}
	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("decode public key hex: %w", err)
	}

	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("parse public key: %w", err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("parse signature: %w", err)
	}

	digest := sha256.Sum256(data)
	return sig.Verify(digest[:], pubKey), nil
}
