package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature reports whether signature is a valid hex-encoded
// HMAC-SHA256 digest of message under secret. The comparison is
// constant-time. An empty secret or malformed signature never verifies;
// in particular a missing webhook secret fails closed instead of
// bypassing verification.
func VerifySignature(message []byte, signature string, secret []byte) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return hmac.Equal(sig, mac.Sum(nil))
}

// VerifyOrderSignature verifies the client-side checkout callback
// signature, computed over "<orderID>|<paymentID>" with the gateway API
// secret.
func VerifyOrderSignature(orderID, paymentID, signature string, secret []byte) bool {
	return VerifySignature([]byte(orderID+"|"+paymentID), signature, secret)
}
