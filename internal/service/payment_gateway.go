package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prashant-hada-dev/sales-agent-proto/internal/models"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/config"
	"go.uber.org/zap"
)

const defaultRazorpayBaseURL = "https://api.razorpay.com/v1"

// RazorpayGateway creates hosted payment links through the Razorpay REST API.
// Amounts are kept in rupees here and converted to paise on the wire.
type RazorpayGateway struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewRazorpayGateway(cfg *config.RazorpayConfig, logger *zap.Logger) *RazorpayGateway {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	return &RazorpayGateway{
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type razorpayLink struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

func (g *RazorpayGateway) CreateLink(ctx context.Context, req LinkRequest) (*GatewayLink, error) {
	customer := map[string]string{}
	if !req.Customer.Name.Empty() {
		customer["name"] = req.Customer.Name.Value
	}
	if !req.Customer.Email.Empty() {
		customer["email"] = req.Customer.Email.Value
	}
	if !req.Customer.Phone.Empty() {
		customer["contact"] = req.Customer.Phone.Value
	}

	body := map[string]any{
		"amount":          req.Amount * 100,
		"currency":        req.Currency,
		"description":     req.Description,
		"reference_id":    req.ReferenceID + "-" + fmt.Sprint(time.Now().Unix()),
		"customer":        customer,
		"notify":          map[string]bool{"sms": false, "email": false},
		"reminder_enable": true,
	}
	if !req.ExpireBy.IsZero() {
		body["expire_by"] = req.ExpireBy.Unix()
	}

	var link razorpayLink
	if err := g.do(ctx, http.MethodPost, "/payment_links", body, &link); err != nil {
		return nil, err
	}
	if link.ID == "" || link.ShortURL == "" {
		return nil, fmt.Errorf("%w: payment link without id or url", ErrMalformedResponse)
	}

	g.logger.Info("Razorpay payment link created", zap.String("payment_id", link.ID))
	return &GatewayLink{
		PaymentID: link.ID,
		Link:      link.ShortURL,
		Amount:    link.Amount / 100,
		Currency:  link.Currency,
	}, nil
}

func (g *RazorpayGateway) GetStatus(ctx context.Context, paymentID string) (*GatewayStatus, error) {
	var link razorpayLink
	if err := g.do(ctx, http.MethodGet, "/payment_links/"+paymentID, nil, &link); err != nil {
		var statusErr *razorpayStatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		return nil, err
	}
	return razorpayStatus(link.Status), nil
}

type razorpayStatusError struct {
	Code int
}

func (e *razorpayStatusError) Error() string {
	return fmt.Sprintf("razorpay returned status %d", e.Code)
}

// razorpayStatus maps payment-link states onto the record status enum.
func razorpayStatus(status string) *GatewayStatus {
	switch status {
	case "paid":
		return &GatewayStatus{Status: models.PaymentCompleted, Completed: true}
	case "partially_paid":
		return &GatewayStatus{Status: models.PaymentAuthorized}
	case "cancelled", "expired":
		return &GatewayStatus{Status: models.PaymentFailed}
	default:
		return &GatewayStatus{Status: models.PaymentCreated}
	}
}

func (g *RazorpayGateway) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("razorpay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		g.logger.Error("Razorpay request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(bodyBytes)),
		)
		return &razorpayStatusError{Code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// SimulatedGateway stands in for Razorpay when no keys are configured.
// Every link it issues reports as captured on the first status check.
type SimulatedGateway struct {
	mu    sync.Mutex
	links map[string]GatewayLink
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{links: make(map[string]GatewayLink)}
}

func (g *SimulatedGateway) CreateLink(_ context.Context, req LinkRequest) (*GatewayLink, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	id := "pay_" + hex.EncodeToString(buf)
	link := GatewayLink{
		PaymentID: id,
		Link:      "https://rzp.io/l/RegisterKaro-" + id,
		Amount:    req.Amount,
		Currency:  req.Currency,
	}

	g.mu.Lock()
	g.links[id] = link
	g.mu.Unlock()
	return &link, nil
}

func (g *SimulatedGateway) GetStatus(_ context.Context, paymentID string) (*GatewayStatus, error) {
	g.mu.Lock()
	_, ok := g.links[paymentID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	}
	return &GatewayStatus{Status: models.PaymentCaptured, Completed: true}, nil
}
