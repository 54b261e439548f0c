package payments

import (
	"fmt"

	"github.com/hideyau28/hk-marketplace-sub002/internal/orders"
)

// awaitingManualConfirmation is the only verification result a manual
// method can produce in-band: confirmation happens when an admin reviews
// the uploaded proof, never here.
const awaitingManualConfirmation = "awaiting manual confirmation"

func manualVerification() (*Verification, error) {
	return &Verification{Success: false, Error: awaitingManualConfirmation}, nil
}

// bankTransfer asks the customer to transfer to the tenant's account and
// upload a proof slip.
type bankTransfer struct{}

func (bankTransfer) ID() string { return "bank_transfer" }

func (bankTransfer) Kind() Kind { return KindManual }

func (bankTransfer) ConfigFields() []ConfigField {
	return []ConfigField{
		{Name: "bank_name", Label: "Bank name", Type: "text", Required: true},
		{Name: "account_name", Label: "Account holder name", Type: "text", Required: true},
		{Name: "account_number", Label: "Account number", Type: "text", Required: true},
	}
}

func (bankTransfer) CreateSession(order *orders.Order, cfg Config) (*Session, error) {
	return &Session{
		Reference: order.OrderNumber,
		Instructions: fmt.Sprintf(
			"Transfer %s %.2f to %s, account %s (%s). Quote reference %s and upload your payment slip.",
			order.Amounts.Currency, order.Amounts.Total,
			cfg["bank_name"], cfg["account_number"], cfg["account_name"],
			order.OrderNumber,
		),
	}, nil
}

func (bankTransfer) VerifyPayment(data map[string]string, cfg Config) (*Verification, error) {
	return manualVerification()
}

// fpsQR serves the tenant's FPS QR code for the customer to scan.
type fpsQR struct{}

func (fpsQR) ID() string { return "fps" }

func (fpsQR) Kind() Kind { return KindManual }

func (fpsQR) ConfigFields() []ConfigField {
	return []ConfigField{
		{Name: "fps_id", Label: "FPS ID", Type: "text", Required: true},
		{Name: "qr_image_url", Label: "FPS QR code image", Type: "image", Required: true},
	}
}

func (fpsQR) CreateSession(order *orders.Order, cfg Config) (*Session, error) {
	return &Session{
		QRCodeURL: cfg["qr_image_url"],
		Reference: order.OrderNumber,
		Instructions: fmt.Sprintf(
			"Scan the QR code or pay FPS ID %s, then upload a screenshot quoting reference %s.",
			cfg["fps_id"], order.OrderNumber,
		),
	}, nil
}

func (fpsQR) VerifyPayment(data map[string]string, cfg Config) (*Verification, error) {
	return manualVerification()
}

// walletAddress publishes a crypto wallet address for the exact total.
type walletAddress struct{}

func (walletAddress) ID() string { return "wallet" }

func (walletAddress) Kind() Kind { return KindManual }

func (walletAddress) ConfigFields() []ConfigField {
	return []ConfigField{
		{Name: "wallet_address", Label: "Wallet address", Type: "text", Required: true},
		{Name: "network", Label: "Network", Type: "text", Required: true},
	}
}

func (walletAddress) CreateSession(order *orders.Order, cfg Config) (*Session, error) {
	return &Session{
		Reference: order.OrderNumber,
		Instructions: fmt.Sprintf(
			"Send the equivalent of %s %.2f to %s on %s, then upload the transaction hash as proof.",
			order.Amounts.Currency, order.Amounts.Total,
			cfg["wallet_address"], cfg["network"],
		),
	}, nil
}

func (walletAddress) VerifyPayment(data map[string]string, cfg Config) (*Verification, error) {
	return manualVerification()
}
