package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tagihanair/internal/ledger"
	"tagihanair/internal/services"
	"tagihanair/internal/sheets"
	"tagihanair/internal/sheets/memory"
	"tagihanair/internal/storage"
)

const (
	ledgerTab = "Sheet1"
	configTab = "Konfigurasi"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func seededBook() *memory.Store {
	s := memory.New()
	s.Seed(ledgerTab, [][]string{
		ledger.Columns,
		{"A001", "Budi", "Sukamaju", "001/002", "80", "100", "20", "50000", "45000", "5000", "0", "50000", "2025-02-01 08:00:00"},
		{"B002", "Ani", "Sukamaju", "003/001", "0", "50", "0", "0", "0", "2500", "0", "0", "2025-02-02 08:00:00"},
	})
	s.Seed(configTab, [][]string{{"Key", "Value"}, {services.PriceKey, "2500"}})
	return s
}

type testOption func(*Deps)

func withHistory(h *services.HistoryService) testOption {
	return func(d *Deps) { d.History = h }
}

func withRateLimit(perMinute int) testOption {
	return func(d *Deps) { d.RateLimitPerMinute = perMinute }
}

func newTestServer(t *testing.T, book sheets.Workbook, recorder services.EventRecorder, opts ...testOption) *Server {
	t.Helper()
	prices := services.NewPriceAccessor(book, configTab, services.DefaultUnitPrice, time.Minute, nil)
	billing := services.NewBillingService(book, prices, services.Options{
		LedgerSheet: ledgerTab,
		LedgerTTL:   time.Minute,
		Location:    time.UTC,
		Now:         func() time.Time { return fixedNow },
		Recorder:    recorder,
	})
	deps := Deps{Billing: billing, Location: time.UTC}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func postForm(srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, seededBook(), nil)

	rr := get(srv, "/")
	if rr.Code != 200 {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Aplikasi Pendataan", "Dashboard Informasi", "Budi", "Rp 2,500", "Daftarkan Pelanggan"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("trace middleware did not set X-Request-ID")
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers missing")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := get(srv, path)
		if rr.Code != 200 {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	if rr := get(srv, "/nope"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown path status=%d, want 404", rr.Code)
	}
}

func TestDashboardEmptyLedger(t *testing.T) {
	book := memory.New()
	book.Seed(ledgerTab, [][]string{ledger.Columns})
	book.Seed(configTab, [][]string{{"Key", "Value"}, {services.PriceKey, "2500"}})
	srv := newTestServer(t, book, nil)

	rr := get(srv, "/ui/dashboard")
	if rr.Code != 200 {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Belum ada data pelanggan") {
		t.Errorf("expected empty-ledger notice: %s", rr.Body.String())
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("fragment Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}

func TestUpdateBillingSuccess(t *testing.T) {
	book := seededBook()
	srv := newTestServer(t, book, nil)

	rr := postForm(srv, "/billing", url.Values{
		"code":            {"a001"},
		"current_reading": {"120"},
		"amount_paid":     {"50000"},
	})
	if rr.Code != 200 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"Hasil Perhitungan Tagihan Bulan Ini", "Rp 55,000", "Rp 5,000", "20 m³"} {
		if !strings.Contains(body, want) {
			t.Errorf("result missing %q: %s", want, body)
		}
	}
	trigger := rr.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, `"ledger:changed"`) || !strings.Contains(trigger, `"code":"A001"`) {
		t.Errorf("HX-Trigger = %s", trigger)
	}

	row := book.Rows(ledgerTab)[1]
	if row[4] != "100" || row[5] != "120" || row[9] != "5000" || row[11] != "55000" {
		t.Errorf("stored row = %v", row)
	}
}

func TestUpdateBillingAcceptsRupiahNotation(t *testing.T) {
	book := seededBook()
	srv := newTestServer(t, book, nil)

	rr := postForm(srv, "/billing", url.Values{
		"code":            {"A001"},
		"current_reading": {"120"},
		"amount_paid":     {"Rp 50.000,-"},
	})
	if rr.Code != 200 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	row := book.Rows(ledgerTab)[1]
	if row[8] != "50000" || row[9] != "5000" {
		t.Errorf("paid=%s balance=%s, want 50000 and 5000", row[8], row[9])
	}
}

func TestUpdateBillingRejections(t *testing.T) {
	tests := []struct {
		name     string
		form     url.Values
		wantCode int
		wantBody string
	}{
		{
			name:     "reading lower than last month",
			form:     url.Values{"code": {"A001"}, "current_reading": {"90"}, "amount_paid": {"0"}},
			wantCode: http.StatusUnprocessableEntity,
			wantBody: "tidak boleh lebih kecil",
		},
		{
			name:     "missing reading",
			form:     url.Values{"code": {"A001"}, "current_reading": {""}},
			wantCode: http.StatusUnprocessableEntity,
			wantBody: "Semua field harus diisi.",
		},
		{
			name:     "invalid number",
			form:     url.Values{"code": {"A001"}, "current_reading": {"banyak"}},
			wantCode: http.StatusUnprocessableEntity,
			wantBody: "Nilai harus berupa angka.",
		},
		{
			name:     "negative payment",
			form:     url.Values{"code": {"A001"}, "current_reading": {"120"}, "amount_paid": {"-5"}},
			wantCode: http.StatusUnprocessableEntity,
			wantBody: "tidak boleh negatif",
		},
		{
			name:     "unknown customer",
			form:     url.Values{"code": {"Z999"}, "current_reading": {"10"}},
			wantCode: http.StatusNotFound,
			wantBody: "tidak ditemukan",
		},
		{
			name:     "no customer selected",
			form:     url.Values{"current_reading": {"10"}},
			wantCode: http.StatusUnprocessableEntity,
			wantBody: "Semua field harus diisi.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := seededBook()
			srv := newTestServer(t, book, nil)
			before := book.Rows(ledgerTab)

			rr := postForm(srv, "/billing", tt.form)
			if rr.Code != tt.wantCode {
				t.Fatalf("status=%d, want %d (%s)", rr.Code, tt.wantCode, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body %q missing %q", rr.Body.String(), tt.wantBody)
			}
			if got := book.Rows(ledgerTab); len(got) != len(before) || got[1][5] != before[1][5] {
				t.Error("rejected update must not write")
			}
		})
	}
}

func TestUpdateBillingWriteFailureStillShowsResult(t *testing.T) {
	book := seededBook()
	book.FailWrites = true
	srv := newTestServer(t, book, nil)

	rr := postForm(srv, "/billing", url.Values{"code": {"A001"}, "current_reading": {"120"}, "amount_paid": {"50000"}})
	if rr.Code != 200 {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Rp 55,000") || !strings.Contains(body, "belum tersimpan") {
		t.Errorf("expected computed result with warning: %s", body)
	}
	if strings.Contains(rr.Header().Get("HX-Trigger"), "ledger:changed") {
		t.Error("unsaved update must not announce a ledger change")
	}
}

func TestWritesRejectedWhenOffline(t *testing.T) {
	srv := newTestServer(t, sheets.Offline(nil), nil)

	rr := get(srv, "/")
	if rr.Code != 200 {
		t.Fatalf("offline index status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Gagal terhubung ke Google Sheets") {
		t.Error("offline index should warn about the connection")
	}

	rr = postForm(srv, "/billing", url.Values{"code": {"A001"}, "current_reading": {"120"}})
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("billing status=%d, want 503", rr.Code)
	}
	rr = postForm(srv, "/settings/price", url.Values{"unit_price": {"3000"}})
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "Tidak dapat memperbarui harga") {
		t.Errorf("price status=%d body=%s", rr.Code, rr.Body.String())
	}

	if rr := get(srv, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status=%d, want 503", rr.Code)
	}
}

func TestRegisterCustomer(t *testing.T) {
	book := seededBook()
	srv := newTestServer(t, book, nil)

	form := url.Values{
		"code":            {"c003"},
		"name":            {"Citra"},
		"village":         {"Sukamaju"},
		"unit":            {"002/002"},
		"initial_reading": {"15"},
	}
	rr := postForm(srv, "/customers", form)
	if rr.Code != 200 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Pelanggan baru &#39;Citra&#39; dengan kode &#39;C003&#39; berhasil ditambahkan!") {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}
	if trigger := rr.Header().Get("HX-Trigger"); !strings.Contains(trigger, "form:reset") {
		t.Errorf("HX-Trigger = %s", trigger)
	}
	rows := book.Rows(ledgerTab)
	if len(rows) != 4 || rows[3][0] != "C003" || rows[3][5] != "15" {
		t.Errorf("ledger rows = %v", rows)
	}

	// The same code again is a duplicate.
	rr = postForm(srv, "/customers", form)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "Kode Pelanggan sudah ada") {
		t.Errorf("duplicate status=%d body=%s", rr.Code, rr.Body.String())
	}

	form.Set("name", "  ")
	form.Set("code", "D004")
	rr = postForm(srv, "/customers", form)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "Semua field harus diisi.") {
		t.Errorf("blank field status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRegisterCustomerAcceptsJSON(t *testing.T) {
	book := seededBook()
	srv := newTestServer(t, book, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/customers",
		strings.NewReader(`{"code":"E005","name":"Eka","village":"Cibodas","unit":"004/001","initial_reading":7}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	rows := book.Rows(ledgerTab)
	if last := rows[len(rows)-1]; last[0] != "E005" || last[5] != "7" {
		t.Errorf("appended row = %v", last)
	}
}

func TestUpdatePrice(t *testing.T) {
	book := seededBook()
	srv := newTestServer(t, book, nil)

	rr := postForm(srv, "/settings/price", url.Values{"unit_price": {"3000"}})
	if rr.Code != 200 {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "berhasil diperbarui menjadi Rp 3,000!") {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}
	if got := book.Rows(configTab)[1][1]; got != "3000" {
		t.Errorf("stored price = %q", got)
	}

	// The next bill uses the new price.
	rr = postForm(srv, "/billing", url.Values{"code": {"B002"}, "current_reading": {"60"}})
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "Rp 30,000") {
		t.Errorf("bill after price change: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = postForm(srv, "/settings/price", url.Values{"unit_price": {"-1"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("negative price status=%d", rr.Code)
	}
}

func TestCustomerReference(t *testing.T) {
	srv := newTestServer(t, seededBook(), nil)

	rr := get(srv, "/ui/customer?code=a001")
	if rr.Code != 200 {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Data Bulan Lalu (Sebagai Referensi)") || !strings.Contains(body, "100 m³") {
		t.Errorf("unexpected reference: %s", body)
	}

	if rr := get(srv, "/ui/customer?code=Z9"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown customer status=%d", rr.Code)
	}
	if rr := get(srv, "/ui/customer"); rr.Code != 200 || !strings.Contains(rr.Body.String(), "Pilih pelanggan") {
		t.Errorf("empty selection status=%d", rr.Code)
	}
}

func TestHistoryAfterUpdate(t *testing.T) {
	repo, err := storage.NewHistoryRepository(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer repo.Close()
	history := services.NewHistoryService(repo, time.Minute, 10, nil)
	srv := newTestServer(t, seededBook(), repo, withHistory(history))

	// Warm the cache so the update has to invalidate it.
	if rr := get(srv, "/ui/history?code=A001"); !strings.Contains(rr.Body.String(), "Belum ada riwayat") {
		t.Fatalf("expected empty history: %s", rr.Body.String())
	}
	if rr := postForm(srv, "/billing", url.Values{"code": {"A001"}, "current_reading": {"120"}, "amount_paid": {"50000"}}); rr.Code != 200 {
		t.Fatalf("billing status=%d", rr.Code)
	}

	rr := get(srv, "/ui/history?code=a001")
	body := rr.Body.String()
	if !strings.Contains(body, "Riwayat Tagihan A001") || !strings.Contains(body, "Rp 55,000") {
		t.Errorf("history missing update: %s", body)
	}
}

func TestHistoryDisabled(t *testing.T) {
	srv := newTestServer(t, seededBook(), nil)
	rr := get(srv, "/ui/history?code=A001")
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "tidak diaktifkan") {
		t.Errorf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRefreshTriggersReload(t *testing.T) {
	book := seededBook()
	srv := newTestServer(t, book, nil)
	_ = get(srv, "/ui/dashboard")

	// An out-of-band edit is invisible until the cache is dropped.
	rows := book.Rows(ledgerTab)
	rows[2][1] = "Ani Rahma"
	book.Seed(ledgerTab, rows)

	rr := postForm(srv, "/ui/refresh", nil)
	if rr.Code != 200 {
		t.Fatalf("refresh status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "ledger:changed") {
		t.Errorf("HX-Trigger = %s", rr.Header().Get("HX-Trigger"))
	}
	if !strings.Contains(get(srv, "/ui/dashboard").Body.String(), "Ani Rahma") {
		t.Error("dashboard should show the refreshed ledger")
	}
}

func TestMethodChecks(t *testing.T) {
	srv := newTestServer(t, seededBook(), nil)
	for _, path := range []string{"/billing", "/customers", "/settings/price", "/ui/refresh"} {
		if rr := get(srv, path); rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s status=%d, want 405", path, rr.Code)
		}
	}
	if rr := postForm(srv, "/ui/dashboard", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /ui/dashboard status=%d, want 405", rr.Code)
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	srv := newTestServer(t, seededBook(), nil, withRateLimit(2))

	for i := 0; i < 2; i++ {
		if rr := postForm(srv, "/ui/refresh", nil); rr.Code != 200 {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := postForm(srv, "/ui/refresh", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	// Reads are never limited.
	if rr := get(srv, "/ui/dashboard"); rr.Code != 200 {
		t.Errorf("GET status=%d", rr.Code)
	}
}

func TestMetricsAndReadyPayload(t *testing.T) {
	srv := newTestServer(t, seededBook(), nil)
	_ = postForm(srv, "/settings/price", url.Values{"unit_price": {"3000"}})

	body := get(srv, "/metrics").Body.String()
	for _, want := range []string{"http_requests_total", "price_changes_total 1", "store_writes_enabled 1", "uptime_seconds"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	var ready struct {
		Status string                 `json:"status"`
		Checks map[string]interface{} `json:"checks"`
	}
	if err := json.NewDecoder(get(srv, "/readyz").Body).Decode(&ready); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if ready.Status != "ready" || ready.Checks["store"] != "ok" || ready.Checks["history"] != "disabled" {
		t.Errorf("readyz = %+v", ready)
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, seededBook(), nil)
	rr := get(srv, "/static/style.css")
	if rr.Code != 200 {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}
