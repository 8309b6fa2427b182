package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// decodeTriggers parses the HX-Trigger header into its events.
func decodeTriggers(t *testing.T, rr *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	raw := rr.Header().Get("HX-Trigger")
	if raw == "" {
		t.Fatal("HX-Trigger header not set")
	}
	events := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v (%s)", err, raw)
	}
	return events
}

func TestHTMXResponse_DefaultsToEmptyOK(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHTMXResponse().Write(rr)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rr.Body.String())
	}
	if rr.Header().Get("HX-Trigger") != "" {
		t.Error("no triggers were added but HX-Trigger is set")
	}
}

func TestHTMXResponse_LedgerWrite(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHTMXResponse().
		BodyHTML("<p>ok</p>").
		TriggerLedgerChanged("A001").
		TriggerFormReset().
		TriggerSuccessNotification("Tersimpan").
		Write(rr)

	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	events := decodeTriggers(t, rr)

	var ledger struct{ Code string }
	if err := json.Unmarshal(events["ledger:changed"], &ledger); err != nil || ledger.Code != "A001" {
		t.Errorf("ledger:changed = %s", events["ledger:changed"])
	}
	if _, ok := events["form:reset"]; !ok {
		t.Error("form:reset missing")
	}
	var note struct {
		Type     string
		Message  string
		Duration int
	}
	if err := json.Unmarshal(events["show-notification"], &note); err != nil {
		t.Fatalf("show-notification: %v", err)
	}
	if note.Type != "success" || note.Message != "Tersimpan" || note.Duration != 3000 {
		t.Errorf("notification = %+v", note)
	}
}

func TestHTMXResponse_NotificationDurations(t *testing.T) {
	tests := []struct {
		name     string
		apply    func(*HTMXResponseBuilder) *HTMXResponseBuilder
		wantType string
		wantMs   int
	}{
		{"success", func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerSuccessNotification("x") }, "success", 3000},
		{"error", func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerErrorNotification("x") }, "error", 5000},
		{"warning", func(b *HTMXResponseBuilder) *HTMXResponseBuilder { return b.TriggerWarningNotification("x") }, "warning", 8000},
		{"info", func(b *HTMXResponseBuilder) *HTMXResponseBuilder {
			return b.TriggerNotification(NotificationInfo, "x", 1500)
		}, "info", 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.apply(NewHTMXResponse()).Write(rr)

			var note struct {
				Type     string
				Duration int
			}
			if err := json.Unmarshal(decodeTriggers(t, rr)["show-notification"], &note); err != nil {
				t.Fatal(err)
			}
			if note.Type != tt.wantType || note.Duration != tt.wantMs {
				t.Errorf("got %+v, want %s/%d", note, tt.wantType, tt.wantMs)
			}
		})
	}
}

func TestHTMXResponse_LaterTriggerReplacesEarlier(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHTMXResponse().
		TriggerPriceChanged("Rp 2,500").
		TriggerPriceChanged("Rp 3,000").
		Write(rr)

	var price struct{ Price string }
	if err := json.Unmarshal(decodeTriggers(t, rr)["price:changed"], &price); err != nil {
		t.Fatal(err)
	}
	if price.Price != "Rp 3,000" {
		t.Errorf("price = %q, want Rp 3,000", price.Price)
	}
}

func TestHTMXResponse_KeepsHeadersAlreadySet(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Header().Set("Retry-After", "60")

	NewHTMXResponse().
		Header("X-Custom", "value").
		Status(http.StatusCreated).
		BodyString("plain").
		Write(rr)

	if rr.Header().Get("Retry-After") != "60" || rr.Header().Get("X-Custom") != "value" {
		t.Errorf("headers = %v", rr.Header())
	}
	if rr.Code != http.StatusCreated || rr.Body.String() != "plain" {
		t.Errorf("got %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Type") == "text/html; charset=utf-8" {
		t.Error("BodyString must not claim HTML")
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		builder    *HTMXResponseBuilder
		wantStatus int
	}{
		{"bad request", BadRequestError("Pesan"), http.StatusBadRequest},
		{"not found", NotFoundError("Pesan"), http.StatusNotFound},
		{"conflict", ConflictError("Pesan"), http.StatusConflict},
		{"unprocessable", UnprocessableEntityError("Pesan"), http.StatusUnprocessableEntity},
		{"rate limited", TooManyRequestsError("Pesan"), http.StatusTooManyRequests},
		{"internal", InternalServerError("Pesan"), http.StatusInternalServerError},
		{"unavailable", ServiceUnavailableError("Pesan"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.builder.Write(rr)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if rr.Body.String() != `<div class="error">Pesan</div>` {
				t.Errorf("body = %q", rr.Body.String())
			}
		})
	}
}

func TestNoticeEscapesMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	SuccessResponse(`Pelanggan '<b>Budi</b>' & co`).Write(rr)

	body := rr.Body.String()
	if strings.Contains(body, "<b>") {
		t.Errorf("message not escaped: %s", body)
	}
	want := `<div class="success">Pelanggan &#39;&lt;b&gt;Budi&lt;/b&gt;&#39; &amp; co</div>`
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestMethodNotAllowedError(t *testing.T) {
	rr := httptest.NewRecorder()
	MethodNotAllowedError("GET, HEAD").Write(rr)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
	if rr.Header().Get("Allow") != "GET, HEAD" {
		t.Errorf("Allow = %q", rr.Header().Get("Allow"))
	}
	if rr.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rr.Body.String())
	}
}
