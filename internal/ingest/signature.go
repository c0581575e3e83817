package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the sender's HMAC over the raw request body.
const SignatureHeader = "X-Vigil-Signature"

// Sign computes the hex HMAC-SHA256 signature senders put in SignatureHeader.
func Sign(secret, body []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a header value against the raw body using a
// constant-time compare. A "sha256=" prefix on the header is tolerated since
// several sensor platforms send one.
func VerifySignature(secret, body []byte, header string) bool {
	header = strings.TrimPrefix(header, "sha256=")
	sig, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return hmac.Equal(sig, h.Sum(nil))
}
