package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ProcessorClient talks to the external payment processor over HTTP. Every
// call carries a bounded timeout via the request context; a timeout or
// transport failure surfaces as an error, which callers must treat as an
// unknown outcome rather than a rejection.
type ProcessorClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProcessorClient creates a new processor client
func NewProcessorClient(baseURL, apiKey string, timeout time.Duration) *ProcessorClient {
	return &ProcessorClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError represents a non-2xx response from the processor
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("processor returned status %d: %s", e.StatusCode, e.Body)
}

// CreateCollectionAccount provisions a ledger account and sub-ledger for an
// entity. Called once at fund creation; failures are retried later.
func (c *ProcessorClient) CreateCollectionAccount(ctx context.Context, entityType string, entityID int64, name, description string) (*CollectionAccount, error) {
	payload := map[string]any{
		"entity_type": entityType,
		"entity_id":   entityID,
		"name":        name,
		"description": description,
	}

	var account CollectionAccount
	if err := c.post(ctx, "/v1/accounts", payload, &account); err != nil {
		return nil, fmt.Errorf("failed to create collection account: %w", err)
	}

	return &account, nil
}

// InitiatePush asks the processor to push a payment prompt to the member's
// phone. A returned error means the outcome is unknown; a response with
// Success=false means the processor rejected the request.
func (c *ProcessorClient) InitiatePush(ctx context.Context, phone string, amount int64, currency, account, subLedger string) (*PushResult, error) {
	payload := map[string]any{
		"phone":           phone,
		"amount":          amount,
		"currency":        currency,
		"account":         account,
		"sub_ledger":      subLedger,
		"idempotency_key": uuid.NewString(),
	}

	var result PushResult
	if err := c.post(ctx, "/v1/push", payload, &result); err != nil {
		return nil, fmt.Errorf("failed to initiate push payment: %w", err)
	}

	return &result, nil
}

// ListSettlements fetches the settlement records that landed between the two
// timestamps. The processor does not push confirmations; this feed is polled.
func (c *ProcessorClient) ListSettlements(ctx context.Context, from, to time.Time) ([]SettlementEntry, error) {
	endpoint := fmt.Sprintf("/v1/settlements?date_from=%s&date_to=%s",
		url.QueryEscape(from.Format(time.RFC3339)),
		url.QueryEscape(to.Format(time.RFC3339)))

	var entries []SettlementEntry
	if err := c.get(ctx, endpoint, &entries); err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}

	log.WithFields(log.Fields{
		"from":  from,
		"to":    to,
		"count": len(entries),
	}).Debug("Fetched settlement feed window")

	return entries, nil
}

// Payout transfers funds from a collection account to the recipient's phone
func (c *ProcessorClient) Payout(ctx context.Context, account, phone string, amount int64, reference string) (*PayoutResult, error) {
	payload := map[string]any{
		"account":   account,
		"phone":     phone,
		"amount":    amount,
		"reference": reference,
	}

	var result PayoutResult
	if err := c.post(ctx, "/v1/payouts", payload, &result); err != nil {
		return nil, fmt.Errorf("failed to request payout: %w", err)
	}

	return &result, nil
}

// FindAccountByPhone looks up a system account by phone number. Returns nil
// with no error when no account matches.
func (c *ProcessorClient) FindAccountByPhone(ctx context.Context, phone string) (*Account, error) {
	endpoint := fmt.Sprintf("/v1/accounts/lookup?phone=%s", url.QueryEscape(phone))

	var account Account
	err := c.get(ctx, endpoint, &account)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up account by phone: %w", err)
	}

	return &account, nil
}

func (c *ProcessorClient) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *ProcessorClient) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *ProcessorClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
