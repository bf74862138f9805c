// Package backend реализует HTTP-клиент внешних сервисов витрины: каталог, скидки,
// ваучеры, магазины и заказы. Один конверт ответа, один таймаут, одна попытка повтора.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	// DefaultTimeout: таймаут одного запроса к бэкенду.
	DefaultTimeout    = 60 * time.Second
	defaultRetryDelay = 500 * time.Millisecond
	maxResponseBytes  = 4 << 20

	headerIdempotencyKey = "Idempotency-Key"
)

// Client обращается к REST API бэкенда.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker[*response]
	products   singleflight.Group
	retryDelay time.Duration
	metrics    *metrics.StorefrontMetrics
	logger     *log.Entry
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет http.Client (например, в тестах).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout задаёт таймаут запроса.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetryDelay задаёт паузу перед повторной попыткой.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBreakerSettings заменяет настройки circuit breaker.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) { c.breaker = newBreaker(st, c.logger) }
}

// New создаёт клиент для baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retryDelay: defaultRetryDelay,
		logger:     log.New().WithField("component", "backend-client"),
	}
	c.breaker = newBreaker(gobreaker.Settings{Name: "backend"}, c.logger)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newBreaker(st gobreaker.Settings, logger *log.Entry) *gobreaker.CircuitBreaker[*response] {
	if st.Name == "" {
		st.Name = "backend"
	}
	if st.Timeout == 0 {
		st.Timeout = 30 * time.Second
	}
	if st.ReadyToTrip == nil {
		st.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	// 4xx это ответ бизнес-логики, breaker считает только сбои транспорта и 5xx
	st.IsSuccessful = func(err error) bool {
		return err == nil || domain.KindOf(err) != domain.KindTransport
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.WithFields(log.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
	}
	return gobreaker.NewCircuitBreaker[*response](st)
}

type response struct {
	status int
	body   []byte
}

// envelope: общий формат ответа бэкенда.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// request описывает один вызов API.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	// body сериализуется в JSON; для multipart используется form.
	body           any
	form           func() (io.Reader, string, error)
	idempotencyKey string
	// noRetry отключает повтор даже при сетевой ошибке.
	noRetry bool
}

// call выполняет запрос и раскладывает data конверта в out.
// Сетевая ошибка или таймаут повторяются ровно один раз; ответы 4xx и 5xx не повторяются.
func (c *Client) call(ctx context.Context, r request, out any) error {
	attempts := 2
	if r.noRetry {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var resp *response
		resp, err = c.breaker.Execute(func() (*response, error) {
			return c.roundTrip(ctx, r)
		})
		if err == nil {
			c.metrics.RecordBackendRequest(r.op, "ok")
			return decode(resp, out)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.RecordBackendRequest(r.op, "circuit_open")
			return domain.ErrTransport.WithMessage("backend circuit open").Wrap(err)
		}
		if !isNetworkFailure(err) || ctx.Err() != nil || attempt == attempts {
			break
		}

		c.metrics.RecordBackendRetry()
		c.logger.WithError(err).WithFields(log.Fields{"op": r.op, "attempt": attempt}).Warn("backend request failed, retrying")
		select {
		case <-ctx.Done():
			return domain.ErrTransport.Wrap(ctx.Err())
		case <-time.After(c.retryDelay):
		}
	}
	c.metrics.RecordBackendRequest(r.op, outcome(err))
	return err
}

// roundTrip выполняет одну попытку. Ошибка всегда типизирована: транспорт, 4xx или 5xx.
func (c *Client) roundTrip(ctx context.Context, r request) (*response, error) {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, errNetwork{domain.ErrTransport.Wrap(err)}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, errNetwork{domain.ErrTransport.WithMessage("read response body").Wrap(err)}
	}
	resp := &response{status: httpResp.StatusCode, body: body}
	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return resp, nil
	}
	return nil, statusError(resp)
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	u := *c.baseURL
	u.Path = u.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case r.form != nil:
		var err error
		body, contentType, err = r.form()
		if err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token, ok := AccessToken(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if r.idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, r.idempotencyKey)
	}
	return req, nil
}

func decode(resp *response, out any) error {
	if out == nil || len(resp.body) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return domain.ErrTransport.WithMessage("malformed response envelope").Wrap(err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return domain.ErrTransport.WithMessage("malformed response data").Wrap(err)
	}
	return nil
}

// statusError переводит HTTP-статус и код ошибки бэкенда в доменную ошибку.
func statusError(resp *response) error {
	var env envelope
	_ = json.Unmarshal(resp.body, &env)
	var apiErr apiError
	if env.Error != nil {
		apiErr = *env.Error
	}

	known, ok := domain.LookupError(apiErr.Code)
	withMessage := func(e *domain.Error) error {
		if apiErr.Message != "" {
			return e.WithMessage("%s", apiErr.Message)
		}
		return e
	}

	switch {
	case resp.status == http.StatusUnauthorized:
		return withMessage(domain.ErrSessionExpired)
	case resp.status == http.StatusBadRequest || resp.status == http.StatusUnprocessableEntity:
		if ok && known.Kind == domain.KindValidation {
			return withMessage(known)
		}
		return withMessage(domain.ErrBadRequest)
	case resp.status == http.StatusForbidden || resp.status == http.StatusNotFound || resp.status == http.StatusConflict:
		if ok && known.Kind == domain.KindIneligibility {
			return withMessage(known)
		}
		if resp.status == http.StatusNotFound {
			return withMessage(domain.ErrNotFound)
		}
		return withMessage(domain.ErrRejected)
	case resp.status >= 500:
		return domain.ErrTransport.WithMessage("backend responded %d", resp.status)
	default:
		return withMessage(domain.ErrBadRequest)
	}
}

// errNetwork помечает ошибки, после которых допустим повтор.
type errNetwork struct {
	err error
}

func (e errNetwork) Error() string { return e.err.Error() }
func (e errNetwork) Unwrap() error { return e.err }

func isNetworkFailure(err error) bool {
	var ne errNetwork
	if !errors.As(err, &ne) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}

func outcome(err error) string {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return "validation"
	case domain.KindIneligibility:
		return "ineligible"
	case domain.KindAuth:
		return "auth"
	default:
		return "transport"
	}
}

// Ping сообщает об ошибке, пока circuit breaker разомкнут.
func (c *Client) Ping(context.Context) error {
	if state := c.breaker.State(); state == gobreaker.StateOpen {
		return domain.ErrTransport.WithMessage("backend circuit breaker is %s", state)
	}
	return nil
}
