package payments

import (
	"strings"
	"testing"

	"github.com/hideyau28/hk-marketplace-sub002/internal/orders"
	"github.com/hideyau28/hk-marketplace-sub002/internal/pricing"
)

func testOrder() *orders.Order {
	return &orders.Order{
		TenantID:    "shop-1",
		OrderID:     "ord-1",
		OrderNumber: "HK-20260829-001",
		Amounts:     pricing.Amounts{Currency: "HKD", Total: 230},
	}
}

func TestRegistry_KnownProviders(t *testing.T) {
	r := NewRegistry()

	wantKinds := map[string]Kind{
		"bank_transfer":   KindManual,
		"fps":             KindManual,
		"wallet":          KindManual,
		"hosted_checkout": KindOnline,
	}
	for id, kind := range wantKinds {
		p, ok := r.Get(id)
		if !ok {
			t.Fatalf("provider %s not registered", id)
		}
		if p.ID() != id || p.Kind() != kind {
			t.Fatalf("provider %s: got id=%s kind=%s", id, p.ID(), p.Kind())
		}
		if len(p.ConfigFields()) == 0 {
			t.Fatalf("provider %s declares no config fields", id)
		}
	}

	if _, ok := r.Get("paypal"); ok {
		t.Fatal("unknown provider id must not resolve")
	}
	if ids := r.IDs(); len(ids) != len(wantKinds) {
		t.Fatalf("expected %d ids, got %v", len(wantKinds), ids)
	}
}

func TestManualProviders_NeverVerifyInBand(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"bank_transfer", "fps", "wallet"} {
		p, _ := r.Get(id)
		v, err := p.VerifyPayment(map[string]string{"reference": "anything"}, Config{})
		if err != nil {
			t.Fatalf("%s verify: %v", id, err)
		}
		if v.Success {
			t.Fatalf("%s must never confirm a payment in-band", id)
		}
		if v.Error != awaitingManualConfirmation {
			t.Fatalf("%s: unexpected verification error %q", id, v.Error)
		}
	}
}

func TestBankTransfer_SessionCarriesAccountDetails(t *testing.T) {
	p, _ := NewRegistry().Get("bank_transfer")
	cfg := Config{"bank_name": "HSBC", "account_name": "Shop One Ltd", "account_number": "123-456789-001"}

	s, err := p.CreateSession(testOrder(), cfg)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if s.Reference != "HK-20260829-001" {
		t.Fatalf("reference must be the order number, got %q", s.Reference)
	}
	for _, want := range []string{"HSBC", "123-456789-001", "HK-20260829-001", "230.00"} {
		if !strings.Contains(s.Instructions, want) {
			t.Fatalf("instructions missing %q: %s", want, s.Instructions)
		}
	}
}

func TestFPS_SessionServesQRCode(t *testing.T) {
	p, _ := NewRegistry().Get("fps")
	cfg := Config{"fps_id": "9876543", "qr_image_url": "https://cdn.example/fps.png"}

	s, err := p.CreateSession(testOrder(), cfg)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if s.QRCodeURL != "https://cdn.example/fps.png" {
		t.Fatalf("unexpected QR url %q", s.QRCodeURL)
	}
	if !strings.Contains(s.Instructions, "9876543") {
		t.Fatalf("instructions missing FPS id: %s", s.Instructions)
	}
}

func TestHostedCheckout_RoundTrip(t *testing.T) {
	p, _ := NewRegistry().Get("hosted_checkout")
	cfg := Config{"checkout_base_url": "https://pay.example", "signing_secret": "s3cr3t"}

	s, err := p.CreateSession(testOrder(), cfg)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !strings.HasPrefix(s.RedirectURL, "https://pay.example/pay/ord-1?sig=") {
		t.Fatalf("unexpected redirect url %q", s.RedirectURL)
	}

	sig := strings.TrimPrefix(s.RedirectURL, "https://pay.example/pay/ord-1?sig=")
	v, err := p.VerifyPayment(map[string]string{"reference": "ord-1", "signature": sig}, cfg)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !v.Success || v.Reference != "ord-1" {
		t.Fatalf("a signature minted at session time must verify: %+v", v)
	}
}

func TestHostedCheckout_RejectsForgedSignature(t *testing.T) {
	p, _ := NewRegistry().Get("hosted_checkout")
	cfg := Config{"checkout_base_url": "https://pay.example", "signing_secret": "s3cr3t"}

	v, err := p.VerifyPayment(map[string]string{"reference": "ord-1", "signature": "deadbeef"}, cfg)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Success {
		t.Fatal("forged signature must not verify")
	}

	v, _ = p.VerifyPayment(map[string]string{"reference": "ord-1"}, cfg)
	if v.Success {
		t.Fatal("missing signature must not verify")
	}
}

func TestHostedCheckout_RequiresSigningSecret(t *testing.T) {
	p, _ := NewRegistry().Get("hosted_checkout")

	if _, err := p.CreateSession(testOrder(), Config{"checkout_base_url": "https://pay.example"}); err == nil {
		t.Fatal("expected error without signing secret")
	}
	if _, err := p.VerifyPayment(map[string]string{"reference": "r", "signature": "s"}, Config{}); err == nil {
		t.Fatal("expected error without signing secret")
	}
}
