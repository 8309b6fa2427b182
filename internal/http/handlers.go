package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"tagihanair/internal/log"
	"tagihanair/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})
	fail := func(name, reason string) {
		checks[name] = reason
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", "failed: templates not loaded")
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.billing == nil:
		fail("store", "not_configured")
	case !s.billing.WritesEnabled():
		fail("store", "failed: offline")
	default:
		// The cached ledger keeps this cheap; a cold cache costs one read.
		_, warns := s.billing.Ledger(ctx)
		if services.HasWarning(warns, services.WarnStoreUnavailable) {
			fail("store", "failed: unavailable")
		} else if len(warns) > 0 {
			checks["store"] = "degraded: " + string(warns[0].Code)
		} else {
			checks["store"] = "ok"
		}
	}

	if s.history.Enabled() {
		checks["history"] = "enabled"
	} else {
		checks["history"] = "disabled"
	}

	if s.rateLimiter != nil {
		checks["rate_limiter"] = map[string]interface{}{
			"active_clients": s.rateLimiter.ActiveClients(),
			"status":         "ok",
		}
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(response)
}

// handleMetrics provides application metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	uptime := time.Since(s.appMetrics.uptime)

	w.WriteHeader(http.StatusOK)

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n\n", name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %d\n\n", name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_server_errors_total", "Total number of HTTP 5xx responses", traceMetrics.ServerErrors)
	counter("http_request_duration_ms_total", "Total time spent serving HTTP requests in milliseconds", traceMetrics.TotalDurationMs)
	counter("billing_updates_total", "Total number of stored billing updates", atomic.LoadInt64(&s.appMetrics.billingUpdates))
	counter("customer_registrations_total", "Total number of registered customers", atomic.LoadInt64(&s.appMetrics.registrations))
	counter("price_changes_total", "Total number of unit price changes", atomic.LoadInt64(&s.appMetrics.priceChanges))
	counter("store_write_failures_total", "Total number of writes the store rejected", atomic.LoadInt64(&s.appMetrics.writeFailures))
	counter("rejected_inputs_total", "Total number of form submissions rejected by validation", atomic.LoadInt64(&s.appMetrics.rejectedRequests))

	if s.rateLimiter != nil {
		rl := s.rateLimiter.GetMetrics()
		counter("rate_limit_hits_total", "Total rate limit hits", rl.Rejected)
		gauge("active_rate_limit_clients", "Currently tracked rate limit clients", rl.ClientCount)
	}
	if s.caches != nil {
		counter("cache_swept_entries_total", "Total expired cache entries removed by sweeps", s.caches.Swept())
		gauge("cache_registered", "Caches registered for sweeping", int64(s.caches.Len()))
	}

	var writes int64
	if s.billing != nil && s.billing.WritesEnabled() {
		writes = 1
	}
	gauge("store_writes_enabled", "Whether the spreadsheet accepts writes", writes)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", uptime.Seconds())
}

var errTemplatesMissing = errors.New("templates not loaded")

// indexData is the full page model.
type indexData struct {
	Dashboard      services.Dashboard
	HistoryEnabled bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			log.FieldComponent, log.ComponentTemplate)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	data := indexData{
		Dashboard:      s.billing.Dashboard(r.Context()),
		HistoryEnabled: s.history.Enabled(),
	}
	w.Header().Set("Cache-Control", "no-store")
	s.render(w, r, "index.html", data)
}

// handleDashboard renders the metrics, warnings and customer table fragment.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	s.render(w, r, "dashboard.html", s.billing.Dashboard(r.Context()))
}

// handleCustomerPicker renders the customer select of the billing form.
func (s *Server) handleCustomerPicker(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	s.render(w, r, "customer_picker.html", s.billing.Dashboard(r.Context()))
}

// handlePriceForm renders the unit price settings form.
func (s *Server) handlePriceForm(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	s.render(w, r, "price_form.html", s.billing.Dashboard(r.Context()))
}

// handleRefresh drops the cached ledger, price and history; listeners reload on ledger:changed.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	s.billing.Refresh()
	s.history.Reset()
	log.FromContext(r.Context()).InfoContext(r.Context(), "Ledger cache refreshed")
	NewHTMXResponse().
		TriggerLedgerChanged("").
		TriggerPriceChanged("").
		TriggerNotification(NotificationInfo, "Data dimuat ulang dari Google Sheets.", 3000).
		Write(w)
}

// render executes a named template, logging failures as server errors.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	html, err := s.renderString(r, name, data)
	if err != nil {
		InternalServerError(msgInternal).Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

// renderString executes a template into memory so a failure never leaves a
// half-written fragment.
func (s *Server) renderString(r *http.Request, name string, data any) (string, error) {
	if s.templates == nil {
		return "", errTemplatesMissing
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err, "template", name, log.FieldOperation, log.OpRender)
		return "", err
	}
	return buf.String(), nil
}
