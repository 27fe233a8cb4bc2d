package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tropicaldog17/finledger/internal/logger"
)

// Handlers bundles everything the router serves. Nil handlers leave their
// routes unregistered.
type Handlers struct {
	Valuation *ValuationHandler
	Assets    *AssetHandler
	Ingest    *IngestHandler
	Rebalance *RebalanceHandler
	// Health reports store reachability; nil means always healthy
	Health func() error
}

// NewRouter wires the API routes and a /health endpoint. CORS wraps the whole
// router so preflight requests never reach route matching.
func NewRouter(h Handlers, log *zap.Logger) http.Handler {
	log = logger.OrNop(log)
	r := mux.NewRouter()
	r.Use(requestLogger(log))

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if h.Health != nil {
			if err := h.Health(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "service": "finledger", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "finledger"})
	}).Methods(http.MethodGet)

	api := prefixed{r: r, prefix: "/api"}

	if v := h.Valuation; v != nil {
		api.HandleFunc("/accounts/{id}/balance", v.HandleAccountBalance).Methods(http.MethodGet)
		api.HandleFunc("/accounts/{id}/net-worth", v.HandleAccountNetWorth).Methods(http.MethodGet)
		api.HandleFunc("/portfolios/{id}/balance", v.HandlePortfolioBalance).Methods(http.MethodGet)
		api.HandleFunc("/portfolios/{id}/net-worth", v.HandlePortfolioNetWorth).Methods(http.MethodGet)
		api.HandleFunc("/portfolios/{id}/daily-net-worth", v.HandleDailyNetWorth).Methods(http.MethodGet)
	}
	if a := h.Assets; a != nil {
		api.HandleFunc("/assets/{symbol}", a.HandleAsset).Methods(http.MethodGet)
		api.HandleFunc("/assets/{symbol}/values", a.HandleValues).Methods(http.MethodGet)
		api.HandleFunc("/assets/{symbol}/populate", a.HandlePopulate).Methods(http.MethodPost)
	}
	if i := h.Ingest; i != nil {
		api.HandleFunc("/accounts/{id}/records", i.HandleImportRecords).Methods(http.MethodPost)
		api.HandleFunc("/assets/{symbol}/values", i.HandleImportValues).Methods(http.MethodPost)
	}
	if rb := h.Rebalance; rb != nil {
		api.HandleFunc("/rebalance", rb.HandleCalculate).Methods(http.MethodPost)
		api.HandleFunc("/accounts/{id}/rebalance", rb.HandleAccountRebalance).Methods(http.MethodPost)
	}

	return corsMiddleware(r)
}

// prefixed registers routes on the root router under a shared path prefix.
// A mux subrouter reports a method mismatch as 404, the root router as 405.
type prefixed struct {
	r      *mux.Router
	prefix string
}

func (p prefixed) HandleFunc(path string, f func(http.ResponseWriter, *http.Request)) *mux.Route {
	return p.r.HandleFunc(p.prefix+path, f)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}
}
