package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func hexHMAC(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook(t *testing.T) {
	v := New("whsec_test")
	body := []byte(`{"event":"payment.captured","payload":{}}`)

	ok, err := v.VerifyWebhook(body, hexHMAC("whsec_test", string(body)))
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if !ok {
		t.Fatal("valid signature rejected")
	}
}

func TestVerifyWebhookTamperedByte(t *testing.T) {
	v := New("whsec_test")
	body := []byte(`{"event":"payment.captured","payload":{}}`)
	sig := hexHMAC("whsec_test", string(body))

	tampered := make([]byte, len(body))
	copy(tampered, body)
	tampered[10] ^= 1

	ok, err := v.VerifyWebhook(tampered, sig)
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if ok {
		t.Fatal("tampered payload accepted")
	}
}

func TestVerifyWebhookWrongSecret(t *testing.T) {
	v := New("whsec_test")
	body := []byte(`{"event":"order.paid"}`)

	ok, err := v.VerifyWebhook(body, hexHMAC("other_secret", string(body)))
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if ok {
		t.Fatal("signature from wrong secret accepted")
	}
}

func TestVerifyWebhookReserializedBodyFails(t *testing.T) {
	v := New("whsec_test")
	raw := []byte(`{"b": 1, "a": 2}`)
	sig := hexHMAC("whsec_test", string(raw))

	// Same JSON value, different bytes.
	reserialized := []byte(`{"a":2,"b":1}`)
	ok, _ := v.VerifyWebhook(reserialized, sig)
	if ok {
		t.Fatal("verification must be byte-exact, not value-equal")
	}
}

func TestVerifyCheckout(t *testing.T) {
	v := New("key_secret")

	sig := hexHMAC("key_secret", "order_123|pay_456")
	ok, err := v.VerifyCheckout("order_123", "pay_456", sig)
	if err != nil {
		t.Fatalf("VerifyCheckout: %v", err)
	}
	if !ok {
		t.Fatal("valid checkout signature rejected")
	}

	ok, _ = v.VerifyCheckout("order_123", "pay_457", sig)
	if ok {
		t.Fatal("checkout signature for different payment accepted")
	}
}

func TestMalformedInputs(t *testing.T) {
	if _, err := New("").VerifyWebhook([]byte("x"), "deadbeef"); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("empty secret: got %v, want ErrEmptySecret", err)
	}
	if _, err := New("s").VerifyWebhook([]byte("x"), ""); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("missing signature: got %v, want ErrMissingSignature", err)
	}
}

func TestSignRoundTrip(t *testing.T) {
	v := New("secret")
	body := []byte("payload bytes")
	ok, err := v.VerifyWebhook(body, v.Sign(body))
	if err != nil || !ok {
		t.Fatalf("Sign/Verify round trip failed: ok=%v err=%v", ok, err)
	}
}
