// Package payments coordinates payment collection for bookings: online
// checkout through the external gateway, on-site payment promises, and the
// webhook/reconciliation paths that settle them.
package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/careflow-platform/pkg/logging"
)

var gatewayTracer = otel.Tracer("careflow.internal.payments")

// CheckoutParams describes the checkout the gateway should host.
type CheckoutParams struct {
	BookingID   uuid.UUID
	PatientID   uuid.UUID
	AmountCents int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
}

// CheckoutResponse is the continuation handle returned to the client.
type CheckoutResponse struct {
	URL         string
	ProviderRef string
}

// Gateway is the external payment collaborator contract. Careflow only
// consumes its request/callback surface; settlement is the gateway's
// business.
type Gateway interface {
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error)
	// GetStatus re-checks a checkout by provider reference. Returns one of
	// pending, paid, failed, expired.
	GetStatus(ctx context.Context, providerRef string) (string, error)
	Name() string
}

// HTTPGateway talks to the hosted payment gateway over HTTPS with a
// bounded timeout, so a slow gateway can never hold a booking request
// hostage.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	successURL string
	cancelURL  string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewHTTPGateway(baseURL, apiKey, successURL, cancelURL string, timeout time.Duration, logger *logging.Logger) *HTTPGateway {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (g *HTTPGateway) Name() string { return "gateway" }

type gatewayCheckoutRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
	Description    string `json:"description,omitempty"`
	ReferenceID    string `json:"reference_id"`
	SuccessURL     string `json:"success_url,omitempty"`
	CancelURL      string `json:"cancel_url,omitempty"`
}

type gatewayCheckoutResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
}

// CreateCheckout asks the gateway to host a payment page for the booking.
// The booking id doubles as the gateway idempotency key, so a retried
// request returns the same checkout instead of charging twice.
func (g *HTTPGateway) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	ctx, span := gatewayTracer.Start(ctx, "gateway.create_checkout")
	defer span.End()
	span.SetAttributes(
		attribute.String("careflow.booking_id", params.BookingID.String()),
		attribute.Int64("careflow.amount_cents", params.AmountCents),
	)

	if params.AmountCents <= 0 {
		return nil, fmt.Errorf("payments: checkout amount must be positive")
	}

	successURL := params.SuccessURL
	if successURL == "" {
		successURL = g.successURL
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = g.cancelURL
	}

	body, err := json.Marshal(gatewayCheckoutRequest{
		IdempotencyKey: params.BookingID.String(),
		AmountCents:    params.AmountCents,
		Currency:       params.Currency,
		Description:    params.Description,
		ReferenceID:    params.BookingID.String(),
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: encode checkout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/checkouts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payments: build checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: gateway unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("payments: read checkout response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Error("gateway rejected checkout", "status", resp.StatusCode, "body", string(payload))
		return nil, fmt.Errorf("payments: gateway returned status %d", resp.StatusCode)
	}

	var decoded gatewayCheckoutResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("payments: decode checkout response: %w", err)
	}
	if decoded.CheckoutURL == "" || decoded.ID == "" {
		return nil, fmt.Errorf("payments: gateway response missing checkout url or id")
	}
	return &CheckoutResponse{URL: decoded.CheckoutURL, ProviderRef: decoded.ID}, nil
}

type gatewayStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// GetStatus fetches the current state of a checkout, used by the
// reconciliation worker for bookings stuck in pending.
func (g *HTTPGateway) GetStatus(ctx context.Context, providerRef string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/checkouts/"+providerRef, nil)
	if err != nil {
		return "", fmt.Errorf("payments: build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("payments: gateway unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "expired", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("payments: gateway status returned %d", resp.StatusCode)
	}

	var decoded gatewayStatusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("payments: decode status response: %w", err)
	}
	return decoded.Status, nil
}

// VerifySignature checks the HMAC-SHA256 webhook signature the gateway
// sends with callbacks.
func VerifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(signature, "sha256=")))
}
