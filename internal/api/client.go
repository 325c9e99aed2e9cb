package api

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"
    "strings"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "github.com/Dev020403/sweet-shop-management-system/internal/domain"
    "github.com/Dev020403/sweet-shop-management-system/pkg/config"
)

// TokenSource supplies the bearer credential for outgoing requests.
// An empty string means "send unauthenticated".
type TokenSource interface {
    Token() string
}

// Client is the typed HTTP client for the sweet shop backend.
type Client struct {
    baseURL        string
    httpClient     *http.Client
    tokens         TokenSource
    onUnauthorized func()
    logger         *zap.Logger
}

func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
    return &Client{
        baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
        httpClient: &http.Client{Timeout: cfg.RequestTimeout},
        logger:     logger,
    }
}

// SetTokenSource wires the session in after construction; the session
// itself needs the client for login, so this cannot happen in NewClient.
func (c *Client) SetTokenSource(ts TokenSource) { c.tokens = ts }

// SetUnauthorizedHook registers the forced-logout callback invoked on any 401.
func (c *Client) SetUnauthorizedHook(fn func()) { c.onUnauthorized = fn }

func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
    var resp domain.LoginResponse
    body, err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, req)
    if err != nil {
        return resp, err
    }
    if err := json.Unmarshal(body, &resp); err != nil {
        return resp, fmt.Errorf("failed to decode login response: %w", err)
    }
    return resp, nil
}

func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (domain.RegisterResponse, error) {
    var resp domain.RegisterResponse
    body, err := c.do(ctx, http.MethodPost, "/api/auth/register", nil, req)
    if err != nil {
        return resp, err
    }
    if err := json.Unmarshal(body, &resp); err != nil {
        return resp, fmt.Errorf("failed to decode register response: %w", err)
    }
    return resp, nil
}

// ListSweets calls the paginated browse endpoint. When the backend omits
// pagination metadata it is synthesized from the item count.
func (c *Client) ListSweets(ctx context.Context, page, limit int, f domain.Filters) ([]domain.Sweet, domain.Pagination, error) {
    q := url.Values{}
    q.Set("page", strconv.Itoa(page))
    q.Set("limit", strconv.Itoa(limit))
    if f.Category != "" {
        q.Set("category", f.Category)
    }
    if f.MinPrice != nil {
        q.Set("minPrice", formatPrice(*f.MinPrice))
    }
    if f.MaxPrice != nil {
        q.Set("maxPrice", formatPrice(*f.MaxPrice))
    }

    body, err := c.do(ctx, http.MethodGet, "/api/sweets", q, nil)
    if err != nil {
        return nil, domain.Pagination{}, err
    }

    payload := decodeListPayload(body)
    pagination := domain.Pagination{
        Page:       1,
        Limit:      len(payload.Sweets),
        Total:      len(payload.Sweets),
        TotalPages: 1,
    }
    if payload.Pagination != nil {
        pagination = *payload.Pagination
    }
    return payload.Sweets, pagination, nil
}

// SearchSweets calls the filtered endpoint. The free-text query maps to the
// backend's "name" parameter. Results are not server-paginated; the second
// return value is the reported total (falling back to the item count).
func (c *Client) SearchSweets(ctx context.Context, f domain.Filters) ([]domain.Sweet, int, error) {
    q := url.Values{}
    if f.Query != "" {
        q.Set("name", f.Query)
    }
    if f.Category != "" {
        q.Set("category", f.Category)
    }
    if f.MinPrice != nil {
        q.Set("minPrice", formatPrice(*f.MinPrice))
    }
    if f.MaxPrice != nil {
        q.Set("maxPrice", formatPrice(*f.MaxPrice))
    }

    body, err := c.do(ctx, http.MethodGet, "/api/sweets/search", q, nil)
    if err != nil {
        return nil, 0, err
    }

    payload := decodeListPayload(body)
    total := len(payload.Sweets)
    if payload.HasTotal {
        total = payload.Total
    }
    return payload.Sweets, total, nil
}

func (c *Client) GetSweet(ctx context.Context, id int64) (domain.Sweet, error) {
    body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/sweets/%d", id), nil, nil)
    if err != nil {
        return domain.Sweet{}, err
    }
    return decodeSweet(body)
}

func (c *Client) CreateSweet(ctx context.Context, req domain.CreateSweetRequest) (domain.Sweet, error) {
    body, err := c.do(ctx, http.MethodPost, "/api/sweets", nil, req)
    if err != nil {
        return domain.Sweet{}, err
    }
    return decodeSweet(body)
}

func (c *Client) UpdateSweet(ctx context.Context, id int64, req domain.UpdateSweetRequest) (domain.Sweet, error) {
    body, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/sweets/%d", id), nil, req)
    if err != nil {
        return domain.Sweet{}, err
    }
    return decodeSweet(body)
}

func (c *Client) DeleteSweet(ctx context.Context, id int64) error {
    _, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/sweets/%d", id), nil, nil)
    return err
}

func (c *Client) PurchaseSweet(ctx context.Context, id int64, quantity int) (domain.Sweet, error) {
    body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/sweets/%d/purchase", id), nil, domain.PurchaseRequest{Quantity: quantity})
    if err != nil {
        return domain.Sweet{}, err
    }
    return decodeSweet(body)
}

func (c *Client) RestockSweet(ctx context.Context, id int64, quantity int) (domain.Sweet, error) {
    body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/sweets/%d/restock", id), nil, domain.RestockRequest{Quantity: quantity})
    if err != nil {
        return domain.Sweet{}, err
    }
    return decodeSweet(body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
    var reqBody io.Reader
    if payload != nil {
        data, err := json.Marshal(payload)
        if err != nil {
            return nil, fmt.Errorf("failed to marshal request body: %w", err)
        }
        reqBody = bytes.NewReader(data)
    }

    endpoint := c.baseURL + path
    if len(query) > 0 {
        endpoint += "?" + query.Encode()
    }

    req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
    if err != nil {
        return nil, fmt.Errorf("failed to build request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Request-ID", uuid.New().String())
    if c.tokens != nil {
        if token := c.tokens.Token(); token != "" {
            req.Header.Set("Authorization", "Bearer "+token)
        }
    }

    resp, err := c.httpClient.Do(req)
    if err != nil {
        c.logger.Error("Request failed",
            zap.String("method", method),
            zap.String("path", path),
            zap.Error(err))
        return nil, networkError(err)
    }
    defer resp.Body.Close()

    body, err := io.ReadAll(resp.Body)
    if err != nil {
        return nil, networkError(err)
    }

    if resp.StatusCode >= 400 {
        apiErr := errorFromStatus(resp.StatusCode, errorMessage(body))
        if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
            c.logger.Warn("Credential rejected, forcing logout", zap.String("path", path))
            c.onUnauthorized()
        }
        return nil, apiErr
    }

    return body, nil
}

// errorMessage pulls the human-readable message out of a backend error body.
func errorMessage(body []byte) string {
    var env struct {
        Message string `json:"message"`
        Error   string `json:"error"`
    }
    if err := json.Unmarshal(body, &env); err != nil {
        return ""
    }
    if env.Message != "" {
        return env.Message
    }
    return env.Error
}

func formatPrice(v float64) string {
    return strconv.FormatFloat(v, 'f', -1, 64)
}
