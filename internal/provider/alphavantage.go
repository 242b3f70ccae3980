package provider

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
	"strings"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/metrics"
	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultAlphaVantageURL is the vendor's query endpoint.
const DefaultAlphaVantageURL = "https://www.alphavantage.co/query"

const (
	opPrice = "price"
	opChain = "chain"
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// AlphaVantageAPI fetches GLOBAL_QUOTE prices and REALTIME_OPTIONS chains.
type AlphaVantageAPI struct {
	client  *http.Client
	limiter *RateLimiter
	logger  logrus.FieldLogger
	apiKey  string
	baseURL string
}

// Ensure AlphaVantageAPI implements Provider at compile time.
var _ Provider = (*AlphaVantageAPI)(nil)

// NewAlphaVantageAPI creates a client. A nil limiter gets the default
// 590 calls/min gate; an empty baseURL uses DefaultAlphaVantageURL.
func NewAlphaVantageAPI(apiKey, baseURL string, limiter *RateLimiter, logger logrus.FieldLogger) *AlphaVantageAPI {
	if baseURL == "" {
		baseURL = DefaultAlphaVantageURL
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultCallsPerMinute)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AlphaVantageAPI{
		// Per-call deadlines come from the caller's context.
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: limiter,
		logger:  logger,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (a *AlphaVantageAPI) WithHTTPClient(c *http.Client) *AlphaVantageAPI {
	if c != nil {
		a.client = c
	}
	return a
}

// ============ Response Structures ============

// flexFloat accepts a JSON number, a numeric string, or an empty string.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" || s == "-" || strings.EqualFold(s, "none") {
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing number %q: %w", s, models.ErrMalformedPayload)
	}
	f.Value, f.Set = v, true
	return nil
}

// vendorNotice carries the free-text fields the vendor uses instead of HTTP
// status codes.
type vendorNotice struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

type globalQuoteResponse struct {
	vendorNotice
	GlobalQuote map[string]string `json:"Global Quote"`
}

type realtimeOptionsResponse struct {
	vendorNotice
	Message string      `json:"message"`
	Data    *[]avOption `json:"data"`
}

type avOption struct {
	ContractID        string    `json:"contractID"`
	Symbol            string    `json:"symbol"`
	Expiration        string    `json:"expiration"`
	Strike            flexFloat `json:"strike"`
	Type              string    `json:"type"`
	Mark              flexFloat `json:"mark"`
	Bid               flexFloat `json:"bid"`
	Ask               flexFloat `json:"ask"`
	Volume            flexFloat `json:"volume"`
	OpenInterest      flexFloat `json:"open_interest"`
	ImpliedVolatility flexFloat `json:"implied_volatility"`
	Delta             flexFloat `json:"delta"`
}

func (o avOption) toContract(symbol string) (models.OptionContract, error) {
	typ, err := models.ParseOptionType(o.Type)
	if err != nil {
		return models.OptionContract{}, err
	}
	exp, err := models.ParseDate(o.Expiration)
	if err != nil {
		return models.OptionContract{}, err
	}
	if o.Symbol != "" {
		symbol = o.Symbol
	}
	c := models.OptionContract{
		Symbol:       symbol,
		ContractID:   o.ContractID,
		Type:         typ,
		Expiration:   exp,
		Strike:       o.Strike.Value,
		Bid:          o.Bid.Value,
		Ask:          o.Ask.Value,
		Mark:         o.Mark.Value,
		OpenInterest: int64(o.OpenInterest.Value),
		Volume:       int64(o.Volume.Value),
	}
	if o.Delta.Set || o.ImpliedVolatility.Set {
		c.Greeks = &models.Greeks{Delta: o.Delta.Value, ImpliedVolatility: o.ImpliedVolatility.Value}
	}
	return c, nil
}

// ============ API Methods ============

// GetLastPrice retrieves the latest trade price for symbol.
func (a *AlphaVantageAPI) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)

	price, err := a.getLastPrice(ctx, symbol, params)
	metrics.ObserveProviderRequest("GLOBAL_QUOTE", err)
	return price, err
}

func (a *AlphaVantageAPI) getLastPrice(ctx context.Context, symbol string, params url.Values) (float64, error) {
	var response globalQuoteResponse
	if err := a.makeRequestCtx(ctx, params, &response); err != nil {
		return 0, classify(symbol, opPrice, err)
	}
	if err := response.check(symbol, opPrice); err != nil {
		return 0, err
	}
	raw, ok := response.GlobalQuote["05. price"]
	if len(response.GlobalQuote) == 0 || !ok {
		return 0, &models.ProviderError{Symbol: symbol, Op: opPrice, Kind: models.ProviderNoData,
			Err: fmt.Errorf("no price data for %s: %w", symbol, models.ErrNoData)}
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &models.ProviderError{Symbol: symbol, Op: opPrice, Kind: models.ProviderMalformed,
			Err: fmt.Errorf("parsing price %q: %w", raw, models.ErrMalformedPayload)}
	}
	if price <= 0 {
		return 0, &models.ProviderError{Symbol: symbol, Op: opPrice, Kind: models.ProviderNoData,
			Err: fmt.Errorf("non-positive price %.4f for %s: %w", price, symbol, models.ErrNoData)}
	}
	return price, nil
}

// GetOptionChain retrieves the full realtime chain, with greeks, for symbol.
func (a *AlphaVantageAPI) GetOptionChain(ctx context.Context, symbol string) ([]models.OptionContract, error) {
	params := url.Values{}
	params.Set("function", "REALTIME_OPTIONS")
	params.Set("symbol", symbol)
	params.Set("require_greeks", "true")

	chain, err := a.getOptionChain(ctx, symbol, params)
	metrics.ObserveProviderRequest("REALTIME_OPTIONS", err)
	return chain, err
}

func (a *AlphaVantageAPI) getOptionChain(ctx context.Context, symbol string, params url.Values) ([]models.OptionContract, error) {
	var response realtimeOptionsResponse
	if err := a.makeRequestCtx(ctx, params, &response); err != nil {
		return nil, classify(symbol, opChain, err)
	}
	if err := response.check(symbol, opChain); err != nil {
		return nil, err
	}
	if response.Data == nil {
		return nil, &models.ProviderError{Symbol: symbol, Op: opChain, Kind: models.ProviderMalformed,
			Err: fmt.Errorf("unexpected response format (message %q): %w", response.Message, models.ErrMalformedPayload)}
	}
	if len(*response.Data) == 0 {
		return nil, &models.ProviderError{Symbol: symbol, Op: opChain, Kind: models.ProviderEmptyChain,
			Err: fmt.Errorf("%s: %w", symbol, models.ErrEmptyChain)}
	}

	chain := make([]models.OptionContract, 0, len(*response.Data))
	for i, raw := range *response.Data {
		c, err := raw.toContract(symbol)
		if err != nil {
			return nil, &models.ProviderError{Symbol: symbol, Op: opChain, Kind: models.ProviderMalformed,
				Err: fmt.Errorf("contract %d (%s): %v: %w", i, raw.ContractID, err, models.ErrMalformedPayload)}
		}
		chain = append(chain, c)
	}
	a.logger.WithFields(logrus.Fields{"symbol": symbol, "contracts": len(chain)}).Debug("Fetched option chain")
	return chain, nil
}

// check converts the vendor's in-band notices into provider errors.
func (n vendorNotice) check(symbol, op string) error {
	switch {
	case n.Note != "":
		return &models.ProviderError{Symbol: symbol, Op: op, Kind: models.ProviderRateLimit,
			Err: fmt.Errorf("API rate limit reached: %s: %w", n.Note, models.ErrRateLimited)}
	case n.Information != "" && strings.Contains(strings.ToLower(n.Information), "rate limit"):
		return &models.ProviderError{Symbol: symbol, Op: op, Kind: models.ProviderRateLimit,
			Err: fmt.Errorf("API rate limit reached: %s: %w", n.Information, models.ErrRateLimited)}
	case n.ErrorMessage != "":
		return &models.ProviderError{Symbol: symbol, Op: op, Kind: models.ProviderNoData,
			Err: fmt.Errorf("%s: %w", n.ErrorMessage, models.ErrNoData)}
	}
	return nil
}

// classify wraps transport and decoding failures.
func classify(symbol, op string, err error) error {
	var apiErr *APIError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests:
		return &models.ProviderError{Symbol: symbol, Op: op, Kind: models.ProviderRateLimit, Err: err}
	case errors.Is(err, models.ErrMalformedPayload):
		return &models.ProviderError{Symbol: symbol, Op: op, Kind: models.ProviderMalformed, Err: err}
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return &models.ProviderError{Symbol: symbol, Op: op, Kind: models.ProviderMalformed,
			Err: fmt.Errorf("%v: %w", err, models.ErrMalformedPayload)}
	default:
		return &models.ProviderError{Symbol: symbol, Op: op, Kind: models.ProviderNetwork, Err: err}
	}
}

// makeRequestCtx waits for the rate gate, issues a GET and decodes the JSON body.
func (a *AlphaVantageAPI) makeRequestCtx(ctx context.Context, params url.Values, response interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("apikey", a.apiKey)
	endpoint := a.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "pmcc-scanner/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s -> failed to read error body", params.Get("function"))}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s -> %s", params.Get("function"), string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil {
		if err == io.EOF {
			return fmt.Errorf("empty response body: %w", io.ErrUnexpectedEOF)
		}
		return err
	}
	return nil
}
