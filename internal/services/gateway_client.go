package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// ErrGatewayRejected wraps any non-2xx answer from the delivery gateway.
var ErrGatewayRejected = errors.New("gateway rejected message")

const maxErrorBody = 512

// SendResult is what the gateway said about one message.
type SendResult struct {
	OK         bool
	StatusCode int
	Body       string
}

type sendRequest struct {
	To   string `json:"to"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// GatewaySettings configures the delivery gateway client.
type GatewaySettings struct {
	URL             string
	APIKey          string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// GatewayClient posts messages to the WhatsApp delivery gateway. It never retries;
// the queue owns retry state.
type GatewayClient struct {
	endpoint string
	http     *resty.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

func NewGatewayClient(settings GatewaySettings, logger *slog.Logger) *GatewayClient {
	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.BreakerFailures == 0 {
		settings.BreakerFailures = 5
	}
	if settings.BreakerCooldown <= 0 {
		settings.BreakerCooldown = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(settings.Timeout).
		SetAuthToken(settings.APIKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(0)

	failures := settings.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whatsapp-gateway",
		MaxRequests: 1,
		Timeout:     settings.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway circuit state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &GatewayClient{
		endpoint: settings.URL,
		http:     client,
		breaker:  breaker,
		logger:   logger,
	}
}

// Send performs one delivery attempt. Any error means the message was not delivered.
func (c *GatewayClient) Send(ctx context.Context, recipient, content, category string) (*SendResult, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(sendRequest{To: recipient, Msg: content, Type: category}).
			Post(c.endpoint)
		if err != nil {
			return &SendResult{}, fmt.Errorf("gateway request: %w", err)
		}

		res := &SendResult{
			OK:         resp.IsSuccess(),
			StatusCode: resp.StatusCode(),
			Body:       truncate(resp.String(), maxErrorBody),
		}
		if !res.OK {
			return res, fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, res.StatusCode, res.Body)
		}
		return res, nil
	})

	res, _ := out.(*SendResult)
	if res == nil {
		res = &SendResult{}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return res, fmt.Errorf("gateway circuit open: %w", err)
	}
	if err != nil {
		c.logger.Debug("gateway send failed", slog.Int("status", res.StatusCode), slog.Any("error", err))
	}
	return res, err
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
