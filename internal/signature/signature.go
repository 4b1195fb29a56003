package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	ErrEmptySecret      = errors.New("signature: empty secret")
	ErrMissingSignature = errors.New("signature: missing signature")
)

// Verifier checks that a payment-processor notification was produced
// with the pre-shared secret. Webhook bodies are verified byte-exact,
// before any JSON parsing; re-serializing a parsed payload breaks the
// match if field order or whitespace differs.
type Verifier struct {
	secret []byte
}

func New(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyWebhook checks the whole-body signature carried by the
// server-to-server webhook. A mismatch returns (false, nil); errors
// are reserved for malformed input.
func (v *Verifier) VerifyWebhook(body []byte, sig string) (bool, error) {
	return v.verify(body, sig)
}

// VerifyCheckout checks the client-redirect signature, which covers
// the processor's order id and payment id joined by "|".
func (v *Verifier) VerifyCheckout(orderID, paymentID, sig string) (bool, error) {
	return v.verify([]byte(orderID+"|"+paymentID), sig)
}

func (v *Verifier) verify(payload []byte, sig string) (bool, error) {
	if len(v.secret) == 0 {
		return false, ErrEmptySecret
	}
	if sig == "" {
		return false, ErrMissingSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	// hmac.Equal is constant-time; a plain == would leak how many
	// leading bytes of the signature were right.
	return hmac.Equal([]byte(expected), []byte(sig)), nil
}

// Sign computes the hex HMAC for payload. Used by tests and by
// local tooling that replays processor notifications.
func (v *Verifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
