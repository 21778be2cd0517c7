package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"voicecall/internal/domain"
)

const maxBodyBytes = 1 << 20

// Config controls how the backend API is reached.
type Config struct {
	BaseURL       string
	SessionCookie string
	CookieName    string
	ProxyAddr     string
	Timeout       time.Duration
	TTSProvider   string
}

// Client talks to the companion backend HTTP API.
type Client struct {
	base        *url.URL
	http        *http.Client
	cookie      *http.Cookie
	ttsProvider string
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:5000"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TTSProvider == "" {
		cfg.TTSProvider = "piper"
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL scheme %q", base.Scheme)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.ProxyAddr != "" {
		httpClient, err = NewSocksClient(cfg.ProxyAddr, cfg.Timeout)
		if err != nil {
			return nil, err
		}
	}

	client := &Client{base: base, http: httpClient, ttsProvider: cfg.TTSProvider}
	if cfg.SessionCookie != "" {
		name := cfg.CookieName
		if name == "" {
			name = "session"
		}
		client.cookie = &http.Cookie{Name: name, Value: cfg.SessionCookie}
	}
	return client, nil
}

// DialContext is the signature shared by net.Dialer and the SOCKS5 dialer.
type DialContext func(ctx context.Context, network, addr string) (net.Conn, error)

// NewSocksDialer dials through the SOCKS5 proxy at socksAddr.
func NewSocksDialer(socksAddr string) (DialContext, error) {
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks proxy %q: %w", socksAddr, err)
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}, nil
}

// NewSocksClient returns an HTTP client that dials through a SOCKS5 proxy.
func NewSocksClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	dial, err := NewSocksDialer(socksAddr)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: &http.Transport{DialContext: dial}, Timeout: timeout}, nil
}

// BaseURL returns the resolved API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Header returns the headers every backend request carries.
func (c *Client) Header() http.Header {
	h := http.Header{}
	if c.cookie != nil {
		h.Set("Cookie", c.cookie.String())
	}
	return h
}

// Resolve turns a backend reference (absolute or site-relative) into a URL.
func (c *Client) Resolve(ref string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	return c.base.ResolveReference(parsed), nil
}

func (c *Client) newRequest(ctx context.Context, method string, path string, body any) (*http.Request, error) {
	target, err := c.Resolve(path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	return req, nil
}

// doJSON performs one request. statusKind is the sentinel a non-2xx answer unwraps to.
func (c *Client) doJSON(ctx context.Context, op string, method string, path string, body any, out any, statusKind error) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return &Error{Op: op, Kind: domain.ErrBackend, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &Error{Op: op, Kind: domain.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Kind: domain.ErrNetwork, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Debug("Backend returned failure", "op", op, "status", resp.StatusCode)
		return &Error{Op: op, StatusCode: resp.StatusCode, Kind: statusKind, Message: errorMessage(payload)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Kind: domain.ErrBackend, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func errorMessage(payload []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// Error is a failed backend exchange.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Kind       error
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.StatusCode == 0 && e.Message == "" && e.Err == nil && e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// StatusCode extracts the HTTP status of a backend error, or 0.
func StatusCode(err error) int {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.StatusCode
	}
	return 0
}
