package topup

import (
	"context"
	"strings"
	"sync"
)

// SandboxProvider is a deterministic in-memory backend for development and
// tests. MSISDNs ending in 0000 fail transiently, ending in 9999 fail
// terminally; everything else delivers immediately. Purchases are idempotent
// per reference like a real provider.
type SandboxProvider struct {
	mu        sync.Mutex
	purchases map[string]PurchaseResult
}

func NewSandbox() *SandboxProvider {
	return &SandboxProvider{purchases: make(map[string]PurchaseResult)}
}

func (p *SandboxProvider) Name() string { return "sandbox" }

func (p *SandboxProvider) Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if result, ok := p.purchases[req.Reference]; ok {
		return result, nil
	}

	switch {
	case strings.HasSuffix(req.MSISDN, "0000"):
		return PurchaseResult{}, ErrProviderFailure
	case strings.HasSuffix(req.MSISDN, "9999"):
		return PurchaseResult{}, ErrProviderRejected
	}

	result := PurchaseResult{
		ProviderRef: "sbx-" + req.Reference,
		Status:      StatusDelivered,
	}
	p.purchases[req.Reference] = result
	return result, nil
}

func (p *SandboxProvider) Status(ctx context.Context, reference string) (PurchaseResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, ok := p.purchases[reference]
	if !ok {
		return PurchaseResult{}, ErrUnknownReference
	}
	return result, nil
}
