// Package gateway implements relsync.Gateway against the relation HTTP API.
package gateway

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
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/followsync/config"
	"github.com/d60-Lab/followsync/internal/relsync"
	"github.com/d60-Lab/followsync/pkg/logger"
)

// GenerationHeader carries the generation tag of a mutation.
const GenerationHeader = "X-Relation-Generation"

// snapshotPageSize matches the server's page size cap.
const snapshotPageSize = 100

// Session is the caller's credential. It is passed explicitly instead of being
// looked up from ambient storage.
type Session struct {
	Token string
}

// envelope mirrors pkg/response.Response.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the remote relation authority.
type Client struct {
	baseURL  string
	session  Session
	http     *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	retries  uint64
	maxPages int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, e.g. for httptest.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLimiter sets client side call pacing. nil disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithSnapshotRetries bounds retries of the snapshot fetch.
func WithSnapshotRetries(n uint64) Option {
	return func(c *Client) { c.retries = n }
}

// WithMaxPages bounds how many discovery pages a snapshot fetch walks.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// New builds a client for cfg authenticated as session.
func New(cfg config.GatewayConfig, session Session, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		session:  session,
		timeout:  cfg.RequestTimeout,
		retries:  cfg.SnapshotRetries,
		maxPages: 50,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c
}

var _ relsync.Gateway = (*Client)(nil)

type followData struct {
	OK             bool   `json:"ok"`
	FollowersCount *int64 `json:"followers_count"`
}

func (c *Client) Follow(ctx context.Context, targetID string, generation uint64) (relsync.FollowResult, error) {
	var data followData
	env, err := c.do(ctx, "follow", http.MethodPost, "/api/v1/follow/"+url.PathEscape(targetID), generation, &data)
	if err != nil {
		return relsync.FollowResult{}, withTarget(err, targetID)
	}
	return relsync.FollowResult{OK: data.OK, FollowersCount: data.FollowersCount, Message: env.Message}, nil
}

func (c *Client) Unfollow(ctx context.Context, targetID string, generation uint64) (relsync.UnfollowResult, error) {
	var data followData
	env, err := c.do(ctx, "unfollow", http.MethodDelete, "/api/v1/unfollow/"+url.PathEscape(targetID), generation, &data)
	if err != nil {
		return relsync.UnfollowResult{}, withTarget(err, targetID)
	}
	return relsync.UnfollowResult{OK: data.OK, Message: env.Message}, nil
}

// FetchSnapshot walks the discovery pages of userID's snapshot. Each page is
// retried with exponential backoff on transport failures and 5xx answers.
func (c *Client) FetchSnapshot(ctx context.Context, userID string) (*relsync.Snapshot, error) {
	var out *relsync.Snapshot
	for page := 1; page <= c.maxPages; page++ {
		snap, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		if snap.UserID != userID {
			return nil, relsync.NewError(relsync.KindRejected, "snapshot",
				fmt.Sprintf("snapshot is for user %q, not %q", snap.UserID, userID), nil)
		}
		if out == nil {
			out = snap
		} else {
			out.Users = append(out.Users, snap.Users...)
		}
		if len(snap.Users) < snapshotPageSize {
			return out, nil
		}
	}
	logger.Warn("snapshot truncated", zap.String("user", userID), zap.Int("pages", c.maxPages))
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, page int) (*relsync.Snapshot, error) {
	path := fmt.Sprintf("/api/v1/relations/snapshot?page=%d&page_size=%d", page, snapshotPageSize)

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
		backoff.WithMaxElapsedTime(30*time.Second),
	), c.retries)

	var snap relsync.Snapshot
	err := backoff.RetryNotify(func() error {
		snap = relsync.Snapshot{}
		_, err := c.do(ctx, "snapshot", http.MethodGet, path, 0, &snap)
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logger.Debug("retrying snapshot fetch", zap.Int("page", page), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// do performs one API call and decodes the envelope's data into out. Failures
// come back as *relsync.Error.
func (c *Client) do(ctx context.Context, op, method, path string, generation uint64, out any) (*envelope, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, transportError(ctx, op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, relsync.NewError(relsync.KindInvalid, op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}
	if generation > 0 {
		req.Header.Set(GenerationHeader, strconv.FormatUint(generation, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil && resp.StatusCode/100 == 2 {
		return nil, relsync.NewError(relsync.KindRejected, op, "malformed response", err)
	}
	if env.Message == "" {
		env.Message = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode/100 != 2 {
		return &env, &statusError{
			err:    relsync.NewError(kindForStatus(resp.StatusCode), op, env.Message, nil),
			status: resp.StatusCode,
		}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, relsync.NewError(relsync.KindRejected, op, "malformed response data", err)
		}
	}
	return &env, nil
}

// statusError keeps the HTTP status next to the classified error so retries
// can tell 5xx from other rejections.
type statusError struct {
	err    *relsync.Error
	status int
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }

func kindForStatus(status int) relsync.ErrorKind {
	switch status {
	case http.StatusUnauthorized:
		return relsync.KindUnauthorized
	case http.StatusConflict:
		return relsync.KindConflict
	default:
		return relsync.KindRejected
	}
}

func transportError(ctx context.Context, op string, err error) *relsync.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return relsync.NewError(relsync.KindTimeout, op, "the server did not answer in time", err)
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return relsync.NewError(relsync.KindTimeout, op, "the server did not answer in time", err)
	}
	return relsync.NewError(relsync.KindNetwork, op, "could not reach the server", err)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	return relsync.KindOf(err) == relsync.KindNetwork
}

// withTarget stamps the target onto a classified error for log context.
func withTarget(err error, targetID string) error {
	var re *relsync.Error
	if errors.As(err, &re) {
		cp := *re
		cp.TargetID = targetID
		return &cp
	}
	return err
}
