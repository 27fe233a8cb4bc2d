package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/finledger/internal/config"
	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
)

// HTTPProviderConfig describes a JSON quote endpoint.
//
// Endpoint and QueryParams may contain the placeholders {symbol}, {base},
// {base_lower}, {date}, {date_yyyymmdd}, {date_ddmmyyyy} and {date_unix}.
// Header, query and auth values may reference environment variables as ${NAME}.
// ResponsePath is a dot separated path to the close price ("close" by default).
type HTTPProviderConfig struct {
	Name         string
	Endpoint     string
	Method       string
	Headers      map[string]string
	QueryParams  map[string]string
	AuthType     string
	AuthValue    string
	ResponsePath string
}

// ProviderError is a non-200 answer from a quote endpoint
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request may succeed
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// HTTPPriceProvider fetches daily closes from a configurable JSON endpoint
type HTTPPriceProvider struct {
	cfg        HTTPProviderConfig
	httpClient *http.Client
}

// NewHTTPPriceProvider creates a provider for cfg
func NewHTTPPriceProvider(cfg HTTPProviderConfig) *HTTPPriceProvider {
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	if cfg.ResponsePath == "" {
		cfg.ResponsePath = "close"
	}
	return &HTTPPriceProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewProviderFromConfig builds the provider described by the PRICE_PROVIDER_*
// settings, or returns nil when no endpoint is configured.
func NewProviderFromConfig(cfg *config.Config) PriceProvider {
	if cfg.PriceProviderEndpoint == "" {
		return nil
	}
	return NewHTTPPriceProvider(HTTPProviderConfig{
		Name:         cfg.PriceProviderName,
		Endpoint:     cfg.PriceProviderEndpoint,
		AuthType:     cfg.PriceProviderAuthType,
		AuthValue:    cfg.PriceProviderAuthKey,
		ResponsePath: cfg.PriceProviderPath,
	})
}

func (p *HTTPPriceProvider) Name() string {
	return p.cfg.Name
}

// FetchDaily fetches the close of symbol in baseSymbol for the UTC day of date
func (p *HTTPPriceProvider) FetchDaily(ctx context.Context, symbol, baseSymbol string, date time.Time) (*AssetValueSpec, error) {
	day, _, err := models.GranularityDay.Window(date)
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	if p.cfg.Method != "" {
		method = strings.ToUpper(p.cfg.Method)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.buildURL(symbol, baseSymbol, day), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range p.cfg.Headers {
		req.Header.Set(key, expandEnvVars(value))
	}
	if p.cfg.AuthType != "" {
		authValue := expandEnvVars(p.cfg.AuthValue)
		switch strings.ToLower(p.cfg.AuthType) {
		case "bearer":
			req.Header.Set("Authorization", "Bearer "+authValue)
		case "apikey":
			req.Header.Set("X-API-Key", authValue)
		}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s %s/%s on %s: %w", p.cfg.Name, symbol, baseSymbol, day.Format("2006-01-02"), apperrors.ErrQuoteNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{Provider: p.cfg.Name, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	closePrice, err := extractDecimal(payload, p.cfg.ResponsePath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract close: %w", err)
	}

	return &AssetValueSpec{
		EvaluatedAt: day,
		Granularity: models.GranularityDay,
		Close:       closePrice,
		Source:      models.SourceProvider,
	}, nil
}

func (p *HTTPPriceProvider) buildURL(symbol, baseSymbol string, day time.Time) string {
	replacer := strings.NewReplacer(
		"{symbol}", url.PathEscape(symbol),
		"{base}", url.PathEscape(baseSymbol),
		"{base_lower}", url.PathEscape(strings.ToLower(baseSymbol)),
		"{date}", day.Format("2006-01-02"),
		"{date_yyyymmdd}", day.Format("20060102"),
		"{date_ddmmyyyy}", day.Format("02-01-2006"),
		"{date_unix}", fmt.Sprintf("%d", day.Unix()),
	)
	u := replacer.Replace(p.cfg.Endpoint)
	if len(p.cfg.QueryParams) == 0 {
		return u
	}

	keys := make([]string, 0, len(p.cfg.QueryParams))
	for k := range p.cfg.QueryParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := url.Values{}
	for _, k := range keys {
		values.Set(k, expandEnvVars(replacer.Replace(p.cfg.QueryParams[k])))
	}
	separator := "?"
	if strings.Contains(u, "?") {
		separator = "&"
	}
	return u + separator + values.Encode()
}

// expandEnvVars expands ${NAME} with the environment, leaving unknown names as is
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if value := os.Getenv(match[2 : len(match)-1]); value != "" {
			return value
		}
		return match
	})
}

func extractDecimal(data any, path string) (decimal.Decimal, error) {
	current := data
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return decimal.Zero, fmt.Errorf("cannot navigate path '%s' in non-object type", part)
		}
		if current, ok = obj[part]; !ok {
			return decimal.Zero, fmt.Errorf("path element '%s' not found in response", part)
		}
	}

	switch v := current.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Zero, fmt.Errorf("price value is not a number: %T", current)
	}
}
