package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with older hashes.
const (
	DomainParams  = "ignite/params/v1"
	DomainEntry   = "ignite/entry/v1"
	DomainAddress = "ignite/address/v1"
	DomainTx      = "ignite/tx/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data), hex encoded.
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the domain-separated hash of raw bytes.
func Hash(domain string, data []byte) string {
	return hashWithDomain(domain, data)
}

// HashValue returns the domain-separated hash of v's canonical JSON.
func HashValue(domain string, v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// MustHashValue is HashValue for values known to be canonical. Panics on error.
func MustHashValue(domain string, v Value) string {
	h, err := HashValue(domain, v)
	if err != nil {
		panic(err)
	}
	return h
}
