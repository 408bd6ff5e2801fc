package topup

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Status is the provider-side state of a topup purchase.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

var (
	// ErrProviderFailure is transient; the caller may retry the purchase
	// under the same reference.
	ErrProviderFailure = errors.New("provider_failure")
	// ErrProviderRejected is terminal; retrying the same purchase will not
	// succeed.
	ErrProviderRejected = errors.New("provider_rejected")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrUnknownReference = errors.New("unknown_reference")
)

// PurchaseRequest asks the provider to deliver airtime or data to a phone
// number. Reference is the caller's idempotency key: submitting the same
// reference twice must not deliver twice.
type PurchaseRequest struct {
	Reference string
	MSISDN    string
	Product   string
	Amount    int64
}

type PurchaseResult struct {
	ProviderRef string
	Status      Status
}

// CallbackEvent is a provider's asynchronous delivery notification.
type CallbackEvent struct {
	Reference   string `json:"reference"`
	ProviderRef string `json:"provider_ref"`
	Status      Status `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// Provider is an airtime/data topup backend.
type Provider interface {
	Name() string
	Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error)
	Status(ctx context.Context, reference string) (PurchaseResult, error)
}

// Sign computes the callback body signature shared with providers.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a callback body against its signature header.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" || signature == "" {
		return ErrInvalidSignature
	}
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
