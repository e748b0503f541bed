package fetcher

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

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fxwatcher/internal/metrics"
	"fxwatcher/internal/pair"
)

const maxErrorBody = 512

// ExchangeRateOptions parameterise the rates API fetcher.
type ExchangeRateOptions struct {
	URL       string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
	Pair      pair.Pair
}

// ExchangeRate fetches a rates map from an exchangerate-api style endpoint.
type ExchangeRate struct {
	opts   ExchangeRateOptions
	logger zerolog.Logger
	client *http.Client
}

// NewExchangeRate constructs a rates API fetcher.
func NewExchangeRate(opts ExchangeRateOptions, logger zerolog.Logger) *ExchangeRate {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if opts.Pair == nil {
		opts.Pair = pair.CADRMB
	}
	if strings.TrimSpace(opts.URL) == "" {
		opts.URL = opts.Pair.DefaultURL()
	}

	return &ExchangeRate{
		opts:   opts,
		logger: logger.With().Str("component", "rate_fetcher").Str("pair", opts.Pair.Code()).Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchRate performs one request and returns the pair's target rate.
func (e *ExchangeRate) FetchRate(ctx context.Context) (decimal.Decimal, error) {
	quote, err := e.FetchQuote(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return quote.TargetRate, nil
}

// FetchQuote performs one request and returns the decoded payload.
func (e *ExchangeRate) FetchQuote(ctx context.Context) (Quote, error) {
	quote, category, err := e.fetch(ctx)
	metrics.FetchAttemptsTotal.WithLabelValues(e.opts.Pair.Code(), category).Inc()
	if err != nil {
		e.logger.Error().Err(err).Str("category", category).Msg("rate request failed")
		return Quote{}, err
	}
	return quote, nil
}

func (e *ExchangeRate) fetch(ctx context.Context) (Quote, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.opts.URL, nil)
	if err != nil {
		return Quote{}, "request", fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(e.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if e.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.opts.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Quote{}, "network", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, "network", &TransportError{Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Quote{}, "status", &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(payload)}
	}

	var body ratesResponse
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return Quote{}, "parse", fmt.Errorf("%w: decode response: %v", ErrFetch, err)
	}

	rate, err := e.opts.Pair.ExtractRate(body.Rates)
	if err != nil {
		return Quote{}, "parse", &ExtractionError{Currency: e.opts.Pair.TargetCurrency(), Err: err}
	}

	base := body.Base
	if base == "" {
		base = e.opts.Pair.BaseCurrency()
	}

	return Quote{
		Base:       base,
		Date:       body.Date,
		Rates:      body.Rates,
		TargetRate: rate,
	}, "ok", nil
}

type ratesResponse struct {
	Base  string                 `json:"base"`
	Date  string                 `json:"date"`
	Rates map[string]json.Number `json:"rates"`
}

func truncate(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

// IsTransient reports whether err is worth retrying. Every fetch failure is
// retried today; the distinction is only used for logging.
func IsTransient(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

var _ RateFetcher = (*ExchangeRate)(nil)
