// Copyright 2025 Certen Protocol
//
// Package wire implements the gateway's external wire contracts: the
// canonical CBOR payload/request envelopes and the fixed Sawtooth-style
// protobuf schemas the validator speaks. Both are contracts to
// reproduce exactly, not to redesign.

package wire

import (
	"crypto/sha512"
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
)

var canonicalEncoder cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	enc, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	canonicalEncoder = enc
}

// Payload is the transaction payload the gateway builds from a request
// and the CA's signature, ahead of being wrapped in a Transaction. Field
// names mirror the original TransactionPayload (csr, csr_firm, pub_key,
// nonce, data) under CBOR canonical map-key order.
type Payload struct {
	CertificateRequest            string `cbor:"csr"`
	CertificateAuthoritySignature string `cbor:"csr_firm"`
	SenderPublicKey                string `cbor:"pub_key"`
	Nonce                          string `cbor:"nonce"`
	Data                           string `cbor:"data"`

	cached []byte
	hash   string
}

// Serialize returns the canonical CBOR encoding of the payload. The
// encoding is memoized after first computation: a Payload is treated as
// immutable once built, and repeated hashing must be stable.
func (p *Payload) Serialize() ([]byte, error) {
	if p.cached != nil {
		return p.cached, nil
	}
	data, err := canonicalEncoder.Marshal(p)
	if err != nil {
		return nil, err
	}
	p.cached = data
	return data, nil
}

// Hash returns the SHA-512 hex digest of the canonical encoding. This is
// payload_sha512 in the transaction header and the hash half of the
// derived state address.
func (p *Payload) Hash() (string, error) {
	if p.hash != "" {
		return p.hash, nil
	}
	data, err := p.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha512.Sum512(data)
	p.hash = hex.EncodeToString(sum[:])
	return p.hash, nil
}
