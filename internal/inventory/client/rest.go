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
	"strings"
	"time"

	"github.com/fekuna/omnipos-inventory-sync/internal/auth"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory"
	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-sync/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Options struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	RateLimit float64 // requests per second, <= 0 disables pacing
	Burst     int
}

// RESTClient talks to the commerce backend's product endpoints.
type RESTClient struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
	logger  logger.ZapLogger
}

func NewRESTClient(opts Options, log logger.ZapLogger) *RESTClient {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		limiter: limiter,
		logger:  log,
	}
}

var _ inventory.Backend = (*RESTClient)(nil)

func (c *RESTClient) ListProducts(ctx context.Context) ([]dto.ProductPayload, error) {
	body, err := c.do(ctx, "list", "", http.MethodGet, "/api/products", nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(body)
	if err != nil {
		return nil, &inventory.RemoteError{Op: "list", Err: err}
	}
	return items, nil
}

func (c *RESTClient) GetProduct(ctx context.Context, id string) (*dto.ProductPayload, error) {
	body, err := c.do(ctx, "get", id, http.MethodGet, productPath(id), nil)
	if err != nil {
		return nil, err
	}
	p, err := decodeProduct(body)
	if err != nil {
		return nil, &inventory.RemoteError{Op: "get", ProductID: id, Err: err}
	}
	if p == nil {
		return nil, &inventory.RemoteError{Op: "get", ProductID: id, Err: errors.New("empty response body")}
	}
	return p, nil
}

func (c *RESTClient) CreateProduct(ctx context.Context, input *dto.ProductInput) (*dto.ProductPayload, error) {
	body, err := c.do(ctx, "create", "", http.MethodPost, "/api/products/add", input)
	if err != nil {
		return nil, err
	}
	p, err := decodeProduct(body)
	if err != nil {
		return nil, &inventory.RemoteError{Op: "create", Err: err}
	}
	return p, nil
}

func (c *RESTClient) UpdateProduct(ctx context.Context, id string, input *dto.ProductInput) (*dto.ProductPayload, error) {
	body, err := c.do(ctx, "update", id, http.MethodPut, productPath(id), input)
	if err != nil {
		return nil, err
	}
	p, err := decodeProduct(body)
	if err != nil {
		return nil, &inventory.RemoteError{Op: "update", ProductID: id, Err: err}
	}
	return p, nil
}

func (c *RESTClient) DeleteProduct(ctx context.Context, id string) error {
	_, err := c.do(ctx, "delete", id, http.MethodDelete, productPath(id), nil)
	return err
}

func (c *RESTClient) UpdateStock(ctx context.Context, id string, stock int) (*dto.ProductPayload, error) {
	body, err := c.do(ctx, "update-stock", id, http.MethodPatch, productPath(id)+"/update-stock", map[string]int{"stock": stock})
	if err != nil {
		return nil, err
	}
	p, err := decodeProduct(body)
	if err != nil {
		return nil, &inventory.RemoteError{Op: "update-stock", ProductID: id, Err: err}
	}
	return p, nil
}

func productPath(id string) string {
	return "/api/products/" + url.PathEscape(id)
}

func (c *RESTClient) do(ctx context.Context, op, id, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &inventory.RemoteError{Op: op, ProductID: id, Err: err}
	}

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &inventory.RemoteError{Op: op, ProductID: id, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &inventory.RemoteError{Op: op, ProductID: id, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokenFor(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed",
			zap.String("op", op), zap.String("product_id", id), zap.Error(err))
		return nil, &inventory.RemoteError{Op: op, ProductID: id, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &inventory.RemoteError{Op: op, ProductID: id, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("Backend request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &inventory.RemoteError{Op: op, ProductID: id, StatusCode: resp.StatusCode, Err: errors.New(errorMessage(body))}
	}
	return body, nil
}

// tokenFor prefers the caller's own credentials over the service token.
func (c *RESTClient) tokenFor(ctx context.Context) string {
	if a, ok := auth.GetActor(ctx); ok && a.Token != "" {
		return a.Token
	}
	return c.token
}

func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		if len(s) > 200 {
			s = s[:200]
		}
		return s
	}
	return "unexpected status"
}

// decodeList accepts a bare array or an object wrapping it under "products".
func decodeList(body []byte) ([]dto.ProductPayload, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}
	var items []dto.ProductPayload
	if body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode products: %w", err)
		}
	} else {
		var wrapped struct {
			Products *[]dto.ProductPayload `json:"products"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("decode products: %w", err)
		}
		if wrapped.Products == nil {
			return nil, errors.New("decode products: missing products field")
		}
		items = *wrapped.Products
	}
	for i, p := range items {
		if err := p.ToModel().Validate(); err != nil {
			return nil, fmt.Errorf("product at index %d: %w", i, err)
		}
	}
	if items == nil {
		items = []dto.ProductPayload{}
	}
	return items, nil
}

// decodeProduct returns nil for an empty acknowledgment. A body that is a
// JSON object without an _id (e.g. {"message":"ok"}) is also an acknowledgment.
func decodeProduct(body []byte) (*dto.ProductPayload, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	var wrapped struct {
		Product *dto.ProductPayload `json:"product"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	p := wrapped.Product
	if p == nil {
		p = &dto.ProductPayload{}
		if err := json.Unmarshal(body, p); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
	}
	if p.ID == "" {
		return nil, nil
	}
	if err := p.ToModel().Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
