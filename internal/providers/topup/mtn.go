package topup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/groundswell-app/groundswell/internal/config"
	"go.uber.org/zap"
)

// MTNProvider calls the MTN topup HTTP API. Requests are signed with
// HMAC-SHA256 over the body and carry the caller's reference as the
// idempotency key, so a retried purchase cannot deliver twice.
type MTNProvider struct {
	cfg    config.TopupConfig
	client *http.Client
	log    *zap.Logger
}

func NewMTN(cfg config.TopupConfig, log *zap.Logger) *MTNProvider {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MTNProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log.Named("topup.mtn"),
	}
}

func (p *MTNProvider) Name() string { return "mtn" }

func (p *MTNProvider) Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	payload, err := json.Marshal(map[string]any{
		"reference": req.Reference,
		"msisdn":    req.MSISDN,
		"product":   req.Product,
		"amount":    req.Amount,
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	return p.call(ctx, http.MethodPost, "/v1/topups", payload, req.Reference)
}

func (p *MTNProvider) Status(ctx context.Context, reference string) (PurchaseResult, error) {
	return p.call(ctx, http.MethodGet, "/v1/topups/"+reference, nil, reference)
}

func (p *MTNProvider) call(ctx context.Context, method, path string, payload []byte, reference string) (PurchaseResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return PurchaseResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.cfg.APIKey)
	httpReq.Header.Set("X-Idempotency-Key", reference)
	if len(payload) > 0 {
		httpReq.Header.Set("X-Signature", Sign(p.cfg.APISecret, payload))
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.log.Warn("topup call failed", zap.String("reference", reference), zap.Error(err))
		return PurchaseResult{}, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return PurchaseResult{}, ErrUnknownReference
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		p.log.Warn("topup call rejected upstream",
			zap.String("reference", reference),
			zap.Int("status_code", resp.StatusCode),
		)
		return PurchaseResult{}, fmt.Errorf("%w: status %d", ErrProviderFailure, resp.StatusCode)
	case resp.StatusCode >= 400:
		return PurchaseResult{}, fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
	}

	var parsed struct {
		ProviderRef string `json:"provider_ref"`
		Status      Status `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return PurchaseResult{}, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	if parsed.Status == "" {
		parsed.Status = StatusAccepted
	}
	return PurchaseResult{ProviderRef: parsed.ProviderRef, Status: parsed.Status}, nil
}
