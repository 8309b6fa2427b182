package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"tagihanair/internal/core"
)

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"code": " a001 ", "current_reading": 1234567.125, "amount_paid": "Rp 50,000", "lunas": true, "meta": {"x": 1}}`
	req := httptest.NewRequest(http.MethodPost, "/billing", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !p.IsJSON() {
		t.Error("IsJSON() = false")
	}

	tests := map[string]string{
		"code":            "a001",
		"current_reading": "1234567.125",
		"amount_paid":     "Rp 50,000",
		"lunas":           "true",
		"meta":            "",
		"missing":         "",
	}
	for key, want := range tests {
		if got := p.Get(key); got != want {
			t.Errorf("Get(%q) = %q, want %q", key, got, want)
		}
	}

	reading, err := p.Amount("current_reading")
	if err != nil || reading.String() != "1234567.125" {
		t.Errorf("Amount(current_reading) = %s, %v", reading, err)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "code=B002&name=Siti+Aminah&unit=003%2F001"
	req := httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.IsJSON() {
		t.Error("IsJSON() = true for form data")
	}
	if got := p.Get("name"); got != "Siti Aminah" {
		t.Errorf("Get(name) = %q", got)
	}
	if got := p.Get("unit"); got != "003/001" {
		t.Errorf("Get(unit) = %q", got)
	}
}

func TestRequestBodyParser_RupiahAmounts(t *testing.T) {
	body := "amount_paid=Rp+50.000%2C-&current_reading=120&unit_price=2.750"
	req := httptest.NewRequest(http.MethodPost, "/billing", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	tests := map[string]string{
		"amount_paid":     "50000",
		"current_reading": "120",
		"unit_price":      "2750",
	}
	for key, want := range tests {
		got, err := p.Amount(key)
		if err != nil || got.String() != want {
			t.Errorf("Amount(%s) = %s, %v; want %s", key, got, err, want)
		}
	}
}

func TestRequestBodyParser_OversizedBody(t *testing.T) {
	body := "name=" + strings.Repeat("a", maxBodyBytes)
	req := httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader(body))

	p := NewRequestBodyParser(req)
	resp := ParseBodyOrFail(p)
	if resp == nil {
		t.Fatal("ParseBodyOrFail() accepted an oversized body")
	}
	rr := httptest.NewRecorder()
	resp.Write(rr)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rr.Code)
	}
	if got := p.Get("name"); got != "" {
		t.Errorf("Get(name) after rejected body = %q", got)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequireMethod(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		allowed []string
		wantErr bool
	}{
		{"POST allowed", http.MethodPost, []string{http.MethodPost}, false},
		{"DELETE allowed with multiple", http.MethodDelete, []string{http.MethodDelete, http.MethodPost}, false},
		{"GET not allowed", http.MethodGet, []string{http.MethodPost}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			result := RequireMethod(req, tt.allowed...)

			if tt.wantErr && result == nil {
				t.Error("Expected error response but got nil")
			}
			if !tt.wantErr && result != nil {
				t.Error("Expected nil but got error response")
			}
		})
	}
}

func TestRequirePOST(t *testing.T) {
	postReq := httptest.NewRequest(http.MethodPost, "/test", nil)
	if result := RequirePOST(postReq); result != nil {
		t.Error("RequirePOST should allow POST requests")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/test", nil)
	if result := RequirePOST(getReq); result == nil {
		t.Error("RequirePOST should reject GET requests")
	}
}

func TestRequireGET(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		if result := RequireGET(httptest.NewRequest(method, "/test", nil)); result != nil {
			t.Errorf("RequireGET should allow %s", method)
		}
	}
	if result := RequireGET(httptest.NewRequest(http.MethodPost, "/test", nil)); result == nil {
		t.Error("RequireGET should reject POST requests")
	}
}

func TestParseBodyOrFail(t *testing.T) {
	// Valid form request
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("field=value"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	p := NewRequestBodyParser(req)
	if result := ParseBodyOrFail(p); result != nil {
		t.Error("Expected nil for valid form, got error response")
	}
	if p.Get("field") != "value" {
		t.Error("Form was not parsed correctly")
	}

	// Broken JSON
	req = httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"field":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	result := ParseBodyOrFail(NewRequestBodyParser(req))
	if result == nil {
		t.Fatal("Expected error response for malformed JSON")
	}
	result.Write(w)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRequestBodyParser_Amount(t *testing.T) {
	body := "reading=Rp+50%2C000&paid=&bad=abc&neg=-3&frac=12%2C5"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		key     string
		want    string
		wantErr error
	}{
		{"reading", "50000", nil},
		{"frac", "12.5", nil},
		{"paid", "", core.ErrMissingField},
		{"missing", "", core.ErrMissingField},
		{"bad", "", core.ErrInvalidNumber},
		{"neg", "", core.ErrNegativeAmount},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := p.Amount(tt.key)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Amount(%q) error = %v, want %v", tt.key, err, tt.wantErr)
				}
				if fieldOf(err) != tt.key {
					t.Errorf("field = %q, want %q", fieldOf(err), tt.key)
				}
				return
			}
			if err != nil {
				t.Fatalf("Amount(%q) error = %v", tt.key, err)
			}
			if got.String() != tt.want {
				t.Errorf("Amount(%q) = %s, want %s", tt.key, got, tt.want)
			}
		})
	}

	if got, err := p.OptionalAmount("paid"); err != nil || !got.IsZero() {
		t.Errorf("OptionalAmount(empty) = %s, %v; want 0, nil", got, err)
	}
	if _, err := p.OptionalAmount("bad"); !errors.Is(err, core.ErrInvalidNumber) {
		t.Errorf("OptionalAmount(bad) error = %v", err)
	}
}

func TestParseCustomerCode(t *testing.T) {
	tests := []struct {
		query url.Values
		want  string
	}{
		{url.Values{"code": {" a001 "}}, "A001"},
		{url.Values{"code": {"b\x00002"}}, "B002"},
		{url.Values{"code": {"c\x01003"}}, "C003"},
		{url.Values{}, ""},
	}
	for _, tt := range tests {
		if got := ParseCustomerCode(tt.query); got != tt.want {
			t.Errorf("ParseCustomerCode(%v) = %q, want %q", tt.query, got, tt.want)
		}
	}
}
