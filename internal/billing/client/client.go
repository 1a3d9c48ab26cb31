// Package client talks to the clinicdesk bill API. Client implements the
// drawer's collaborator interfaces: domain.CatalogLookup,
// domain.PartyLookup and domain.BillGateway.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"go.uber.org/zap"
)

const defaultTimeout = 12 * time.Second

var (
	ErrInvalidConfig   = errors.New("invalid_client_config")
	ErrInvalidResponse = errors.New("invalid_response")
)

// FieldError is one entry of a validation error response.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is a non-2xx response from the bill API.
type APIError struct {
	Status  int
	Type    string
	Message string
	Fields  []FieldError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bill api: %d %s: %s", e.Status, e.Type, e.Message)
}

// UserMessage is the single message shown to the operator.
func (e *APIError) UserMessage() string {
	for _, f := range e.Fields {
		if msg := strings.TrimSpace(f.Message); msg != "" {
			if f.Field != "" && f.Field != "request" {
				return f.Field + ": " + msg
			}
			return msg
		}
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	return http.StatusText(e.Status)
}

type errorEnvelope struct {
	Error struct {
		Type    string       `json:"type"`
		Message string       `json:"message"`
		Errors  []FieldError `json:"errors"`
	} `json:"error"`
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// OperatorID is sent as X-Operator-Id so the API can attribute writes.
	OperatorID string
}

type Client struct {
	baseURL    string
	operatorID string
	http       *http.Client
	log        *zap.Logger
}

var (
	_ domain.CatalogLookup = (*Client)(nil)
	_ domain.PartyLookup   = (*Client)(nil)
	_ domain.BillGateway   = (*Client)(nil)
)

func New(cfg Config, log *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrInvalidConfig
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    base,
		operatorID: strings.TrimSpace(cfg.OperatorID),
		http:       &http.Client{Timeout: timeout},
		log:        log.Named("billing.client"),
	}, nil
}

func (c *Client) SearchCatalog(ctx context.Context, q domain.CatalogQuery) ([]domain.CatalogEntry, error) {
	values := url.Values{}
	if text := strings.TrimSpace(q.SearchText); text != "" {
		values.Set("search", text)
	}
	if q.ActiveOnly {
		values.Set("active_only", "true")
	}
	if q.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(q.PageSize))
	}

	var out []domain.CatalogEntry
	if err := c.do(ctx, http.MethodGet, "/api/procedures", values, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SearchParties(ctx context.Context, kind domain.PartyKind, text string) ([]domain.PartyRef, error) {
	path, err := partyPath(kind)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	if text = strings.TrimSpace(text); text != "" {
		values.Set("search", text)
	}

	var out []domain.PartyRef
	if err := c.do(ctx, http.MethodGet, path, values, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetParty(ctx context.Context, kind domain.PartyKind, id snowflake.ID) (domain.PartyRef, error) {
	path, err := partyPath(kind)
	if err != nil {
		return domain.PartyRef{}, err
	}

	var out domain.PartyRef
	if err := c.do(ctx, http.MethodGet, path+"/"+id.String(), nil, nil, &out); err != nil {
		return domain.PartyRef{}, err
	}
	return out, nil
}

func (c *Client) FetchBill(ctx context.Context, id snowflake.ID) (domain.BillResponse, error) {
	var out domain.BillResponse
	err := c.do(ctx, http.MethodGet, "/api/bills/"+id.String(), nil, nil, &out)
	return out, err
}

func (c *Client) CreateBill(ctx context.Context, payload domain.BillPayload) (domain.BillResponse, error) {
	var out domain.BillResponse
	err := c.do(ctx, http.MethodPost, "/api/bills", nil, payload, &out)
	return out, err
}

func (c *Client) UpdateBill(ctx context.Context, id snowflake.ID, payload domain.BillPayload) (domain.BillResponse, error) {
	var out domain.BillResponse
	err := c.do(ctx, http.MethodPut, "/api/bills/"+id.String(), nil, payload, &out)
	return out, err
}

func (c *Client) RecordPayment(ctx context.Context, id snowflake.ID, req domain.PaymentRequest) (domain.BillResponse, error) {
	var out domain.BillResponse
	err := c.do(ctx, http.MethodPost, "/api/bills/"+id.String()+"/payments", nil, req, &out)
	return out, err
}

func partyPath(kind domain.PartyKind) (string, error) {
	switch kind {
	case domain.PartyPatient:
		return "/api/patients", nil
	case domain.PartyDoctor:
		return "/api/doctors", nil
	default:
		return "", fmt.Errorf("unknown party kind %q", kind)
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.operatorID != "" {
		req.Header.Set("X-Operator-Id", c.operatorID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("bill api request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	c.log.Debug("bill api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	envelope := dataEnvelope[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(envelope.Data) == 0 {
		return ErrInvalidResponse
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var payload errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		apiErr.Type = "request_failed"
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}
	apiErr.Type = payload.Error.Type
	apiErr.Message = payload.Error.Message
	apiErr.Fields = payload.Error.Errors
	return apiErr
}
