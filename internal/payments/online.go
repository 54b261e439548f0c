package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/hideyau28/hk-marketplace-sub002/internal/orders"
)

// hostedCheckout is the one online provider this core models: a
// redirect-based checkout page whose callback carries an HMAC-signed
// reference. A real gateway integration lives behind the same contract.
type hostedCheckout struct{}

func (hostedCheckout) ID() string { return "hosted_checkout" }

func (hostedCheckout) Kind() Kind { return KindOnline }

func (hostedCheckout) ConfigFields() []ConfigField {
	return []ConfigField{
		{Name: "checkout_base_url", Label: "Checkout base URL", Type: "text", Required: true},
		{Name: "signing_secret", Label: "Signing secret", Type: "secret", Required: true},
	}
}

func (h hostedCheckout) CreateSession(order *orders.Order, cfg Config) (*Session, error) {
	secret := cfg["signing_secret"]
	if secret == "" {
		return nil, fmt.Errorf("hosted_checkout: signing_secret not configured")
	}
	ref := order.OrderID
	return &Session{
		Reference:   ref,
		RedirectURL: fmt.Sprintf("%s/pay/%s?sig=%s", cfg["checkout_base_url"], ref, sign(secret, ref)),
	}, nil
}

func (h hostedCheckout) VerifyPayment(data map[string]string, cfg Config) (*Verification, error) {
	secret := cfg["signing_secret"]
	if secret == "" {
		return nil, fmt.Errorf("hosted_checkout: signing_secret not configured")
	}
	ref := data["reference"]
	sig := data["signature"]
	if ref == "" || sig == "" {
		return &Verification{Success: false, Error: "missing reference or signature"}, nil
	}
	if !hmac.Equal([]byte(sign(secret, ref)), []byte(sig)) {
		return &Verification{Success: false, Error: "invalid signature"}, nil
	}
	return &Verification{Success: true, Reference: ref}, nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
