package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"

	"github.com/robertarktes/event-ticket-payments/internal/domain"
)

// SignatureHeader carries the HMAC-SHA512 of the raw webhook body, keyed by
// the account secret.
const SignatureHeader = "X-Paystack-Signature"

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify recomputes the signature over the exact raw bytes and compares in
// constant time. A missing or mismatched header rejects before any field of
// the payload is trusted.
func (v *Verifier) Verify(rawBody []byte, signature string) error {
	if signature == "" {
		return domain.ErrSignatureMismatch
	}
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrSignatureMismatch
	}
	return nil
}

// Sign produces the signature Paystack would send for body. Used by tests
// and local tooling.
func (v *Verifier) Sign(rawBody []byte) string {
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
