package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// FakeGateway is a dev/demo gateway that generates an internal checkout URL
// and reports every checkout as paid on the first status poll.
//
// This MUST be gated by configuration (ALLOW_FAKE_PAYMENTS) and should never
// be enabled in production.
type FakeGateway struct {
	publicBaseURL string
	logger        *logging.Logger
}

func NewFakeGateway(publicBaseURL string, logger *logging.Logger) *FakeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeGateway{
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
	}
}

func (g *FakeGateway) Name() string { return "fake" }

func (g *FakeGateway) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	_ = ctx
	if params.AmountCents <= 0 {
		return nil, fmt.Errorf("payments: checkout amount must be positive")
	}
	if g.publicBaseURL == "" {
		return nil, fmt.Errorf("payments: fake gateway requires PUBLIC_BASE_URL")
	}
	if !isValidBaseURL(g.publicBaseURL) {
		return nil, fmt.Errorf("payments: fake gateway PUBLIC_BASE_URL must be an absolute http(s) URL")
	}

	checkoutURL := fmt.Sprintf("%s/payments/fake/%s", g.publicBaseURL, params.BookingID)
	g.logger.Info("fake checkout created", "booking_id", params.BookingID, "amount_cents", params.AmountCents)
	return &CheckoutResponse{
		URL:         checkoutURL,
		ProviderRef: "fake:" + params.BookingID.String(),
	}, nil
}

func (g *FakeGateway) GetStatus(ctx context.Context, providerRef string) (string, error) {
	_ = ctx
	if !strings.HasPrefix(providerRef, "fake:") {
		return "", fmt.Errorf("payments: unknown fake reference %q", providerRef)
	}
	return "paid", nil
}

func isValidBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
