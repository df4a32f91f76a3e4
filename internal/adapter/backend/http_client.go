package backend

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
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/rl1809/stock-transfer/internal/core/domain"
	"github.com/rl1809/stock-transfer/internal/logging"
)

const (
	maxResponseBytes     = 4 << 20
	idempotencyKeyHeader = "Idempotency-Key"
)

type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	ClinicsPath   string
	InventoryPath string
	SerialsPath   string
	TransferPath  string

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// HTTPClient talks JSON to the clinic backend. Every call goes through one
// circuit breaker; 4xx responses do not count as breaker failures.
type HTTPClient struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewHTTPClient(cfg Config, logger *zap.Logger) (*HTTPClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}

	c := &HTTPClient{
		cfg:    cfg,
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logging.OrNop(logger),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "clinic-backend",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up says nothing about backend health
			if errors.Is(err, context.Canceled) {
				return true
			}
			var be *domain.BackendError
			if errors.As(err, &be) {
				return be.Status >= 400 && be.Status < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c, nil
}

func (c *HTTPClient) ListClinics(ctx context.Context) ([]domain.Clinic, error) {
	var dtos []clinicDTO
	if err := c.getList(ctx, c.cfg.ClinicsPath, nil, &dtos); err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}
	clinics := make([]domain.Clinic, 0, len(dtos))
	for _, d := range dtos {
		clinics = append(clinics, d.toDomain())
	}
	return clinics, nil
}

func (c *HTTPClient) ListTransferableItems(ctx context.Context) ([]domain.InventoryItem, error) {
	var dtos []inventoryItemDTO
	if err := c.getList(ctx, c.cfg.InventoryPath, nil, &dtos); err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	items := make([]domain.InventoryItem, 0, len(dtos))
	for _, d := range dtos {
		item, ok := d.toDomain()
		if !ok {
			c.logger.Warn("skipping inventory item with unknown stock type",
				zap.Int("item_id", d.ID),
				zap.String("stock_type", d.stockType()),
			)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *HTTPClient) ListAvailableSerials(ctx context.Context, itemID int) ([]string, error) {
	var raw []json.RawMessage
	q := url.Values{"inventory_item": {strconv.Itoa(itemID)}}
	if err := c.getList(ctx, c.cfg.SerialsPath, q, &raw); err != nil {
		return nil, fmt.Errorf("list serials: %w", err)
	}
	return decodeSerials(raw), nil
}

func (c *HTTPClient) CreateTransfer(ctx context.Context, req domain.TransferRequest, idempotencyKey string) (*domain.Confirmation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}

	var resp transferResponseDTO
	headers := http.Header{}
	if idempotencyKey != "" {
		headers.Set(idempotencyKeyHeader, idempotencyKey)
	}
	if err := c.do(ctx, http.MethodPost, c.cfg.TransferPath, nil, bytes.NewReader(body), headers, &resp); err != nil {
		return nil, err
	}
	return &domain.Confirmation{
		Message:          resp.Message,
		TransferredCount: resp.TransferredCount,
	}, nil
}

// getList decodes a list that may be wrapped in a {"data": ...} or
// {"results": ...} envelope.
func (c *HTTPClient) getList(ctx context.Context, path string, query url.Values, out any) error {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, query, nil, nil, &raw); err != nil {
		return err
	}
	list, err := unwrapList(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(list, out); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body io.Reader, headers http.Header, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse path %q: %w", path, err)
	}
	target := c.base.ResolveReference(ref)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &domain.BackendError{Message: "clinic backend is temporarily unavailable", Err: err}
		}
		return err
	}

	if out == nil {
		return nil
	}
	payload := result.([]byte)
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *HTTPClient) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.BackendError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.BackendError{Status: resp.StatusCode, Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(payload)
		if msg == "" {
			msg = fmt.Sprintf("request failed with status code %d", resp.StatusCode)
		}
		return nil, &domain.BackendError{Status: resp.StatusCode, Message: msg}
	}
	return payload, nil
}
