// Package server exposes the scanner, the store-backed screener and the filter
// store over a JSON HTTP API.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/metrics"
	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/eddiefleurent/pmcc_scanner/internal/screener"
	"github.com/eddiefleurent/pmcc_scanner/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// requestTimeout bounds a whole request; a large scan is paced by the
// provider's call-rate gate.
const requestTimeout = 5 * time.Minute

// maxBodyBytes caps request bodies, which may carry a caller-supplied chain.
const maxBodyBytes = 8 << 20

// Server is the HTTP API.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	scanner   *screener.Scanner
	screener  *screener.Screener
	store     storage.FilterStore
	registry  *prometheus.Registry
	logger    logrus.FieldLogger
	addr      string
	authToken string
}

// Config holds the listener settings.
type Config struct {
	Addr      string
	AuthToken string
}

// NewServer wires the routes. registry may be nil to disable /metrics.
func NewServer(
	cfg Config,
	scanner *screener.Scanner,
	scr *screener.Screener,
	store storage.FilterStore,
	registry *prometheus.Registry,
	logger logrus.FieldLogger,
) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:    chi.NewRouter(),
		scanner:   scanner,
		screener:  scr,
		store:     store,
		registry:  registry,
		logger:    logger,
		addr:      cfg.Addr,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	if s.registry != nil {
		s.router.Handle("/metrics", metrics.Handler(s.registry))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/scan", s.handleScan)
		r.Post("/screen", s.handleScreen)

		r.Get("/filters", s.handleListFilters)
		r.Post("/filters", s.handleSaveFilter)
		r.Get("/filters/active", s.handleActiveFilter)
		r.Get("/filters/{id}", s.handleGetFilter)
		r.Delete("/filters/{id}", s.handleDeleteFilter)
		r.Post("/filters/{id}/activate", s.handleActivateFilter)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting API server on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// symbolList accepts either "AAPL, MSFT" or ["AAPL", "MSFT"].
type symbolList []string

func (l *symbolList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*l = list
		return nil
	}
	var csv string
	if err := json.Unmarshal(b, &csv); err != nil {
		return errors.New("symbols must be a string or an array of strings")
	}
	*l = strings.Split(csv, ",")
	return nil
}

type scanRequest struct {
	Symbols        symbolList             `json:"symbols"`
	FilterCriteria *models.FilterCriteria `json:"filter_criteria,omitempty"`
}

// symbolResult groups one symbol's opportunities for the response.
type symbolResult struct {
	Symbol             string               `json:"symbol"`
	UnderlyingPrice    float64              `json:"underlying_price"`
	OpportunitiesFound int                  `json:"opportunities_found"`
	Opportunities      []models.Opportunity `json:"opportunities"`
	Error              string               `json:"error,omitempty"`
}

type scanResponse struct {
	Success            bool                 `json:"success"`
	ScanID             string               `json:"scan_id"`
	Strategy           models.Strategy      `json:"type_of_trade"`
	SymbolsProcessed   int                  `json:"symbols_processed"`
	TotalOpportunities int                  `json:"total_opportunities"`
	Results            []symbolResult       `json:"results"`
	Errors             []models.SymbolError `json:"errors,omitempty"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !s.decode(w, r, &req) {
		return
	}

	var symbols []string
	for _, sym := range req.Symbols {
		if sym = strings.TrimSpace(sym); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "no symbols provided")
		return
	}

	criteria, ok := s.criteriaOrActive(w, r, req.FilterCriteria)
	if !ok {
		return
	}

	result, err := s.scanner.Scan(r.Context(), symbols, criteria)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupBySymbol(result))
}

// groupBySymbol keeps the global ranking inside each group and lists groups in
// order of their best opportunity, followed by failed symbols.
func groupBySymbol(result *screener.ScanResult) scanResponse {
	resp := scanResponse{
		Success:            true,
		ScanID:             result.ID,
		Strategy:           result.Strategy,
		SymbolsProcessed:   result.SymbolsProcessed,
		TotalOpportunities: len(result.Opportunities),
		Results:            []symbolResult{},
		Errors:             result.Errors,
	}

	index := map[string]int{}
	for _, opp := range result.Opportunities {
		i, ok := index[opp.Symbol]
		if !ok {
			i = len(resp.Results)
			index[opp.Symbol] = i
			resp.Results = append(resp.Results, symbolResult{
				Symbol:          opp.Symbol,
				UnderlyingPrice: opp.UnderlyingPrice,
			})
		}
		resp.Results[i].Opportunities = append(resp.Results[i].Opportunities, opp)
		resp.Results[i].OpportunitiesFound++
	}
	for _, se := range result.Errors {
		if _, ok := index[se.Symbol]; ok {
			continue
		}
		resp.Results = append(resp.Results, symbolResult{
			Symbol:        se.Symbol,
			Opportunities: []models.Opportunity{},
			Error:         se.Message,
		})
	}
	return resp
}

type screenRequest struct {
	Symbol          string                  `json:"symbol"`
	UnderlyingPrice float64                 `json:"underlying_price"`
	FilterCriteria  *models.FilterCriteria  `json:"filter_criteria,omitempty"`
	Options         []models.OptionContract `json:"options,omitempty"`
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req screenRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	criteria, ok := s.criteriaOrActive(w, r, req.FilterCriteria)
	if !ok {
		return
	}

	var (
		result *screener.ScreenResult
		err    error
	)
	if req.Options != nil {
		result, err = s.screener.ScreenContracts(req.Symbol, req.UnderlyingPrice, criteria, req.Options)
	} else {
		result, err = s.screener.Screen(r.Context(), req.Symbol, req.UnderlyingPrice, criteria)
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := s.store.List(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, filters)
}

func (s *Server) handleActiveFilter(w http.ResponseWriter, r *http.Request) {
	c, err := storage.ActiveOrDefault(r.Context(), s.store)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := filterID(w, r)
	if !ok {
		return
	}
	c, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSaveFilter(w http.ResponseWriter, r *http.Request) {
	var c models.FilterCriteria
	if !s.decode(w, r, &c) {
		return
	}
	if err := s.store.Save(r.Context(), &c); err != nil {
		s.writeErr(w, err)
		return
	}
	s.logger.WithFields(logrus.Fields{"filter_id": c.ID, "name": c.Name}).Info("Filter saved")
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": c.ID, "success": true})
}

func (s *Server) handleDeleteFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := filterID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleActivateFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := filterID(w, r)
	if !ok {
		return
	}
	if err := s.store.Activate(r.Context(), id); err != nil {
		s.writeErr(w, err)
		return
	}
	s.logger.WithField("filter_id", id).Info("Filter activated")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// criteriaOrActive returns the request's criteria or the store's active filter.
func (s *Server) criteriaOrActive(w http.ResponseWriter, r *http.Request, c *models.FilterCriteria) (*models.FilterCriteria, bool) {
	if c != nil {
		return c, true
	}
	active, err := storage.ActiveOrDefault(r.Context(), s.store)
	if err != nil {
		s.writeErr(w, err)
		return nil, false
	}
	return active, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func filterID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid filter id")
		return 0, false
	}
	return id, true
}

// writeErr maps engine and store errors onto HTTP statuses.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case models.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrFilterNotFound):
		writeError(w, http.StatusNotFound, "filter not found")
	case models.ProviderErrorKindOf(err) != "":
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.WithError(err).Error("Request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
