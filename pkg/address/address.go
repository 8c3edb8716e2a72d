// Copyright 2025 Certen Protocol
//
// Package address derives the 70-hex-character state address used as
// both the sole input and sole output of every transaction the gateway
// builds. Derivation is a pure function of the family name, the
// sender's public key, and the payload hash - it touches no network or
// clock and is safe to call from anywhere.

package address

import (
	"crypto/sha512"
	"encoding/hex"
)

// familyName identifies the gateway's transaction family on the
// validator. It is fixed by the wire contract, not configuration.
const familyName = "AirAnchor"

// FamilyAddressPrefix is sha512(familyName)[0:6], computed once at
// package init and shared by every derived address.
var FamilyAddressPrefix = familyPrefix()

func familyPrefix() string {
	sum := sha512.Sum512([]byte(familyName))
	return hex.EncodeToString(sum[:])[:6]
}

// Prefix returns the 12-hex-character namespace prefix for a sender:
// FamilyAddressPrefix followed by the first 6 hex characters of the
// sender's public key. It identifies the address family a sender's
// transactions fall under but is not itself a complete address.
func Prefix(senderPubKeyHex string) string {
	key := senderPubKeyHex
	if len(key) > 6 {
		key = key[:6]
	}
	return FamilyAddressPrefix + key
}

// Derive computes the full 70-hex-character state address for a
// transaction: FamilyAddressPrefix (6) ++ sender_pk[0:6] (6) ++
// payload_hash[-58:] (58).
func Derive(senderPubKeyHex, payloadHashHex string) string {
	prefix := Prefix(senderPubKeyHex)
	suffix := payloadHashHex
	if len(suffix) > 58 {
		suffix = suffix[len(suffix)-58:]
	}
	return prefix + suffix
}
