package client

import (
	"crypto/sha256"
	"encoding/hex"
)

// HexToBytes decodes a hex-encoded JSON-RPC field, adapted from the
// teacher's stratum.HexStringToBytes.
func HexToBytes(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, errNotAString
	}
	return hex.DecodeString(s)
}

var errNotAString = wireError("not a valid string")

type wireError string

func (e wireError) Error() string { return string(e) }

// ReverseBytes returns a reversed copy of input, adapted from the teacher's
// stratum.RevBytes.
func ReverseBytes(input []byte) []byte {
	out := make([]byte, len(input))
	for i := range input {
		out[i] = input[len(input)-1-i]
	}
	return out
}

// SHA256d returns the double SHA-256 digest of data.
func SHA256d(data []byte) []byte {
	h := sha256.Sum256(data)
	h2 := sha256.Sum256(h[:])
	return h2[:]
}

// EncodeSeedHash hex-encodes a seed for the DonateStrategy setParams
// augmentation (spec.md §4.4).
func EncodeSeedHash(seed []byte) string {
	if len(seed) == 0 {
		return ""
	}
	return hex.EncodeToString(seed)
}
