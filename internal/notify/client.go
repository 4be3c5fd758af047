package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"uberfix/internal/domain"
)

// ErrCircuitOpen is returned while the gateway breaker rejects calls.
var ErrCircuitOpen = errors.New("notification gateway circuit is open")

type Sender interface {
	Send(ctx context.Context, msg Message) (providerID string, err error)
}

type Message struct {
	RequestID string
	Channel   domain.NotificationChannel
	To        string
	Body      string
}

// BreakerSettings tunes the gateway circuit breaker.
type BreakerSettings struct {
	MaxFailures          uint32
	OpenTimeout          time.Duration
	HalfOpenMaxSuccesses uint32
	// OnStateChange receives 0 for closed, 1 for half-open and 2 for open.
	OnStateChange func(state float64)
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxFailures:          3,
		OpenTimeout:          30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	}
}

// HTTPClient posts messages to an SMS/WhatsApp gateway.
type HTTPClient struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewHTTPClient(baseURL, token string, timeout time.Duration, settings BreakerSettings) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = DefaultBreakerSettings().MaxFailures
	}
	onChange := settings.OnStateChange
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify-gateway",
		MaxRequests: settings.HalfOpenMaxSuccesses,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		// A rejected message says nothing about gateway health.
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			if onChange != nil {
				onChange(breakerStateValue(to))
			}
		},
	})
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		timeout:    timeout,
		httpClient: &http.Client{},
		breaker:    breaker,
	}
}

type sendRequest struct {
	To        string `json:"to"`
	Channel   string `json:"channel"`
	Body      string `json:"body"`
	Reference string `json:"reference,omitempty"`
}

func (c *HTTPClient) Send(ctx context.Context, msg Message) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("NOTIFY_GATEWAY_URL is required")
	}
	if strings.TrimSpace(msg.To) == "" {
		return "", fmt.Errorf("message recipient is required")
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrCircuitOpen
		}
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state as "closed", "half-open" or "open".
func (c *HTTPClient) State() string {
	return c.breaker.State().String()
}

func (c *HTTPClient) post(ctx context.Context, msg Message) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(sendRequest{
		To:        msg.To,
		Channel:   string(msg.Channel),
		Body:      msg.Body,
		Reference: msg.RequestID,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return ParseGatewayResponse(resp.StatusCode, respBody)
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
