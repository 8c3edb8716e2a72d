// Copyright 2025 Certen Protocol

package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/airanchor/gateway/pkg/signer"
)

// CertificateRequest mirrors the original CertificateSignedRequest: the
// CSR a sender wants the certificate authority to countersign.
type CertificateRequest struct {
	DistinguishedName string            `cbor:"distinguished_name"`
	PublicKey         string            `cbor:"public_key"`
	OptionalParams    map[string]string `cbor:"optional_params,omitempty"`
}

// Serialize returns the canonical CBOR encoding of the CSR alone. This is
// the csr field embedded (hex-encoded) in the transaction payload, kept
// separate from the CA's countersignature over it.
func (c CertificateRequest) Serialize() ([]byte, error) {
	data, err := canonicalEncoder.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("serialize certificate request: %w", err)
	}
	return data, nil
}

// RequestHeader is the portion of a Request the sender signs. It excludes
// the signature itself so Serialize() is stable across Verify calls.
type RequestHeader struct {
	SenderPublicKey string             `cbor:"sender_public_key"`
	CertificateRequest CertificateRequest `cbor:"csr"`
	Data            string             `cbor:"data"`
}

// Serialize returns the canonical CBOR encoding of the header: the exact
// bytes the sender's signature covers.
func (h RequestHeader) Serialize() ([]byte, error) {
	data, err := canonicalEncoder.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("serialize request header: %w", err)
	}
	return data, nil
}

// Request is a single upstream submission: an upstream message body
// deserializes into one of these. The signature is carried alongside the
// header rather than inside it, matching the decode-then-verify shape the
// batch builder needs.
type Request struct {
	Header    RequestHeader
	Signature string
}

// Decode parses a CBOR-encoded upstream message body into a Request.
// Any failure here is MalformedRequest: the message is rejected without
// requeue, not retried.
func Decode(body []byte) (*Request, error) {
	var wirer struct {
		SenderPublicKey    string             `cbor:"sender_public_key"`
		CertificateRequest CertificateRequest `cbor:"csr"`
		Data               string             `cbor:"data"`
		Signature          string             `cbor:"signature"`
	}
	if err := cbor.Unmarshal(body, &wirer); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &Request{
		Header: RequestHeader{
			SenderPublicKey:    wirer.SenderPublicKey,
			CertificateRequest: wirer.CertificateRequest,
			Data:               wirer.Data,
		},
		Signature: wirer.Signature,
	}, nil
}

// Encode serializes a Request back into the CBOR wire form Decode
// accepts. Exercised by round-trip tests and by anything that re-queues a
// request verbatim.
func (r *Request) Encode() ([]byte, error) {
	wirer := struct {
		SenderPublicKey    string             `cbor:"sender_public_key"`
		CertificateRequest CertificateRequest `cbor:"csr"`
		Data               string             `cbor:"data"`
		Signature          string             `cbor:"signature"`
	}{
		SenderPublicKey:    r.Header.SenderPublicKey,
		CertificateRequest: r.Header.CertificateRequest,
		Data:               r.Header.Data,
		Signature:          r.Signature,
	}
	data, err := canonicalEncoder.Marshal(wirer)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// Verify reports whether the request's signature is a valid signature by
// SenderPublicKey over the canonical encoding of its header.
func (r *Request) Verify() (bool, error) {
	data, err := r.Header.Serialize()
	if err != nil {
		return false, err
	}
	return signer.Verify(data, r.Signature, r.Header.SenderPublicKey)
}
