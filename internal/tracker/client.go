package tracker

import (
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

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/AlekseyZapadovnikov/tracker-analytics/conf"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/domain"
)

// RetryPolicy задаёт ограниченный экспоненциальный backoff.
type RetryPolicy struct {
	MaxRetries          uint64
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// Options задаёт неизменяемую конфигурацию прогона, передаётся клиенту при создании.
type Options struct {
	BaseURL         string
	Username        string
	Token           string
	APIVersion      string
	PageSize        int
	ExpandChangelog bool
	HTTPTimeout     time.Duration
	Retry           RetryPolicy
}

// OptionsFromConfig собирает Options из секций конфигурации.
func OptionsFromConfig(t conf.TrackerConf, r conf.RetryConf) Options {
	return Options{
		BaseURL:         t.BaseURL,
		Username:        t.Username,
		Token:           t.Token,
		APIVersion:      t.APIVersion,
		PageSize:        t.PageSize,
		ExpandChangelog: t.ExpandChangelog,
		HTTPTimeout:     t.HTTPTimeout.Duration,
		Retry: RetryPolicy{
			MaxRetries:          r.MaxRetries,
			InitialInterval:     r.InitialInterval.Duration,
			MaxInterval:         r.MaxInterval.Duration,
			Multiplier:          r.Multiplier,
			RandomizationFactor: r.RandomizationFactor,
		},
	}
}

// Client выполняет GET-запросы к REST API трекера с повторами и общим троттлингом.
type Client struct {
	opts Options
	http *http.Client
	gate *throttle
	log  zerolog.Logger
}

// NewClient создаёт клиент. Один клиент (и его троттлинг) разделяется всеми воркерами прогона.
func NewClient(opts Options, log zerolog.Logger) *Client {
	if opts.APIVersion == "" {
		opts.APIVersion = "2"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	return &Client{
		opts: opts,
		http: &http.Client{Timeout: opts.HTTPTimeout},
		gate: newThrottle(time.Now),
		log:  log.With().Str("component", "tracker").Logger(),
	}
}

// PageSize возвращает запрошенный размер страницы.
func (c *Client) PageSize() int {
	return c.opts.PageSize
}

// transientError помечает сбой, который имеет смысл повторить: сеть, 5xx, 429.
type transientError struct {
	status     int
	retryAfter time.Duration
	err        error
}

func (e *transientError) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("tracker api status=%d: %v", e.status, e.err)
	}
	return fmt.Sprintf("tracker request: %v", e.err)
}

func (e *transientError) Unwrap() error {
	return e.err
}

// rateLimited сообщает, что трекер просит снизить нагрузку (429 или 503).
func (e *transientError) rateLimited() bool {
	return e.status == http.StatusTooManyRequests || e.status == http.StatusServiceUnavailable
}

func (c *Client) apiURL(path string, q url.Values) string {
	base := strings.TrimRight(c.opts.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := base + "/rest/api/" + c.opts.APIVersion + path
	if len(q) > 0 {
		u = u + "?" + q.Encode()
	}
	return u
}

// authorize выставляет заголовки аутентификации. Без учётных данных запрос уходит анонимно.
func (c *Client) authorize(req *http.Request) {
	switch {
	case c.opts.Username != "" && c.opts.Token != "":
		req.SetBasicAuth(c.opts.Username, c.opts.Token)
	case c.opts.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}
}

// newBackOff строит политику повторов для одного запроса.
func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.Retry.InitialInterval
	exp.MaxInterval = c.opts.Retry.MaxInterval
	exp.Multiplier = c.opts.Retry.Multiplier
	exp.RandomizationFactor = c.opts.Retry.RandomizationFactor
	exp.MaxElapsedTime = 0
	if exp.Multiplier < 1 {
		exp.Multiplier = 1
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, c.opts.Retry.MaxRetries), ctx)
}

// getJSON запрашивает path и декодирует ответ в out, повторяя временные сбои.
// Возвращает число сделанных попыток.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) (int, error) {
	u := c.apiURL(path, q)
	attempts := 0
	op := func() error {
		attempts++
		if err := c.gate.wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := c.do(ctx, u, out)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}
		var te *transientError
		if errors.As(err, &te) {
			if te.retryAfter > 0 {
				c.gate.hold(te.retryAfter)
			}
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		// Без Retry-After пауза до следующей попытки распространяется на всех воркеров.
		var te *transientError
		if errors.As(err, &te) && te.retryAfter == 0 && te.rateLimited() {
			c.gate.hold(next)
		}
		c.log.Warn().Err(err).Str("url", u).Int("attempt", attempts).Dur("retry_in", next).Msg("tracker request failed, retrying")
	}
	err := backoff.RetryNotify(op, c.newBackOff(ctx), notify)
	return attempts, err
}

func (c *Client) do(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &transientError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(b))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return domain.NewAuthError(resp.StatusCode, msg)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &transientError{
				status:     resp.StatusCode,
				retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
				err:        errors.New(msg),
			}
		default:
			return fmt.Errorf("tracker api status=%d body=%s", resp.StatusCode, msg)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// Обрезанное тело ответа считаем сетевым сбоем и повторяем.
		return &transientError{err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// parseRetryAfter разбирает Retry-After в секундах или в формате HTTP-даты.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// classify превращает ошибку запроса страницы в ошибку таксономии прогона.
// Ошибки аутентификации и отмена контекста пробрасываются как есть.
func classify(ctx context.Context, scope, issueKey string, offset, attempts int, err error) error {
	if err == nil {
		return nil
	}
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return domain.NewRetrievalError(scope, issueKey, offset, attempts, err)
}
