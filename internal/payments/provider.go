package payments

import (
	"github.com/hideyau28/hk-marketplace-sub002/internal/orders"
)

// Kind splits providers into the two capability sets: manual methods
// settled by a human looking at a payment proof, and online methods with
// programmatic verification.
type Kind string

const (
	KindManual Kind = "manual"
	KindOnline Kind = "online"
)

// ConfigField describes one tenant-editable provider setting, e.g. the
// receiving account name or a QR code image URL.
type ConfigField struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"` // text | image | secret
	Required bool   `json:"required"`
}

// Config is the tenant's stored settings for one provider.
type Config map[string]string

// Session is what the client needs to pay: a QR code or instructions for
// manual methods, a redirect for online checkout.
type Session struct {
	QRCodeURL    string `json:"qrCodeUrl,omitempty"`
	Reference    string `json:"reference,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
}

// Verification is the outcome of checking a payment against provider data.
type Verification struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Provider is the capability contract every payment method implements.
type Provider interface {
	ID() string
	Kind() Kind
	ConfigFields() []ConfigField
	CreateSession(order *orders.Order, cfg Config) (*Session, error)
	VerifyPayment(data map[string]string, cfg Config) (*Verification, error)
}
