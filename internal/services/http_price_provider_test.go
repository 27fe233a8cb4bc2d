package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicaldog17/finledger/internal/config"
	apperrors "github.com/tropicaldog17/finledger/internal/errors"
	"github.com/tropicaldog17/finledger/internal/models"
)

func TestHTTPPriceProvider_FetchDaily(t *testing.T) {
	t.Setenv("QUOTES_API_KEY", "secret")

	var gotPath, gotQuery, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotKey = r.URL.Path, r.URL.RawQuery, r.Header.Get("X-API-Key")
		switch r.URL.Query().Get("date") {
		case "2016-03-04":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"quote":{"close":"200.43"}}}`))
		case "2016-03-05":
			http.NotFound(w, r)
		case "2016-03-07":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("maintenance"))
		default:
			_, _ = w.Write([]byte(`{"data":{"quote":{"close":200.59}}}`))
		}
	}))
	defer server.Close()

	provider := NewHTTPPriceProvider(HTTPProviderConfig{
		Name:         "quotes",
		Endpoint:     server.URL + "/v1/{symbol}/{base_lower}",
		QueryParams:  map[string]string{"date": "{date}"},
		AuthType:     "apikey",
		AuthValue:    "${QUOTES_API_KEY}",
		ResponsePath: "data.quote.close",
	})
	assert.Equal(t, "quotes", provider.Name())
	ctx := context.Background()

	spec, err := provider.FetchDaily(ctx, "SPY", "USD", date(2016, 3, 4).Add(13*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "/v1/SPY/usd", gotPath)
	assert.Equal(t, "date=2016-03-04", gotQuery)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, date(2016, 3, 4), spec.EvaluatedAt)
	assert.Equal(t, models.GranularityDay, spec.Granularity)
	requireDecimal(t, "200.43", spec.Close)

	spec, err = provider.FetchDaily(ctx, "SPY", "USD", date(2016, 3, 8))
	require.NoError(t, err)
	requireDecimal(t, "200.59", spec.Close)

	_, err = provider.FetchDaily(ctx, "SPY", "USD", date(2016, 3, 5))
	assert.ErrorIs(t, err, apperrors.ErrQuoteNotFound)

	_, err = provider.FetchDaily(ctx, "SPY", "USD", date(2016, 3, 7))
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Temporary())
	assert.Equal(t, "maintenance", pe.Body)
}

func TestExtractDecimal(t *testing.T) {
	tests := []struct {
		name    string
		data    any
		path    string
		want    string
		wantErr bool
	}{
		{name: "number", data: map[string]any{"close": 1.5}, path: "close", want: "1.5"},
		{name: "string", data: map[string]any{"close": "921.77"}, path: "close", want: "921.77"},
		{name: "nested", data: map[string]any{"a": map[string]any{"b": 2.0}}, path: "a.b", want: "2"},
		{name: "missing", data: map[string]any{"open": 1.0}, path: "close", wantErr: true},
		{name: "not an object", data: []any{1.0}, path: "close", wantErr: true},
		{name: "not a number", data: map[string]any{"close": true}, path: "close", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractDecimal(tt.data, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			requireDecimal(t, tt.want, got)
		})
	}
}

func TestNewProviderFromConfig(t *testing.T) {
	assert.Nil(t, NewProviderFromConfig(&config.Config{}))

	p := NewProviderFromConfig(&config.Config{
		PriceProviderName:     "quotes",
		PriceProviderEndpoint: "https://quotes.example.com/{symbol}/{date}",
	})
	require.NotNil(t, p)
	assert.Equal(t, "quotes", p.Name())
}
