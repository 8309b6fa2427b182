// Package http provides HTTP server and handler implementations.
//
// This file holds the fluent builder every handler answers through. A
// response is an optional HTML fragment plus HX-Trigger events that tell the
// other fragments on the page to reload.

package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Events the page listens for.
const (
	eventLedgerChanged = "ledger:changed"
	eventPriceChanged  = "price:changed"
	eventFormReset     = "form:reset"
	eventNotification  = "show-notification"
)

// Toast durations in milliseconds.
const (
	notifyShort = 3000
	notifyLong  = 5000
	notifySlow  = 8000
)

// HTMXResponseBuilder collects status, headers, body and HX-Trigger events
// and writes them in one go.
type HTMXResponseBuilder struct {
	status   int
	headers  http.Header
	triggers map[string]any
	body     string
}

// NewHTMXResponse starts a 200 response with no body.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		status:   http.StatusOK,
		headers:  make(http.Header),
		triggers: make(map[string]any),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers.Set(name, value)
	return b
}

// Trigger adds an HX-Trigger event. A later call with the same name replaces
// the earlier payload.
func (b *HTMXResponseBuilder) Trigger(name string, payload any) *HTMXResponseBuilder {
	b.triggers[name] = payload
	return b
}

// TriggerLedgerChanged tells the dashboard and customer picker to reload.
// code names the customer whose row was written, or is empty after a refresh.
func (b *HTMXResponseBuilder) TriggerLedgerChanged(code string) *HTMXResponseBuilder {
	return b.Trigger(eventLedgerChanged, map[string]string{"code": code})
}

// TriggerPriceChanged tells the price form and dashboard to reload.
func (b *HTMXResponseBuilder) TriggerPriceChanged(price string) *HTMXResponseBuilder {
	return b.Trigger(eventPriceChanged, map[string]string{"price": price})
}

// TriggerFormReset clears the form that submitted the request.
func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger(eventFormReset, struct{}{})
}

// NotificationType selects the toast style.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// TriggerNotification shows a toast for durationMs milliseconds.
func (b *HTMXResponseBuilder) TriggerNotification(kind NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger(eventNotification, map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": durationMs,
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, notifyShort)
}

func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, notifyLong)
}

// TriggerWarningNotification is for results the operator must not miss, such
// as a bill that was computed but not saved.
func (b *HTMXResponseBuilder) TriggerWarningNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationWarning, message, notifySlow)
}

// BodyString sets a body without touching Content-Type.
func (b *HTMXResponseBuilder) BodyString(content string) *HTMXResponseBuilder {
	b.body = content
	return b
}

// BodyHTML sets an already rendered HTML fragment.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.headers.Set("Content-Type", "text/html; charset=utf-8")
	b.body = html
	return b
}

// Notice sets the body to a single escaped message box styled by kind.
func (b *HTMXResponseBuilder) Notice(kind NotificationType, message string) *HTMXResponseBuilder {
	return b.BodyHTML(`<div class="` + string(kind) + `">` + template.HTMLEscapeString(message) + `</div>`)
}

// Write sends the response. An unencodable trigger payload drops the
// HX-Trigger header rather than failing the request.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	h := w.Header()
	for name, values := range b.headers {
		h[name] = values
	}
	if len(b.triggers) > 0 {
		if raw, err := json.Marshal(b.triggers); err == nil {
			h.Set("HX-Trigger", string(raw))
		}
	}
	w.WriteHeader(b.status)
	if b.body != "" {
		_, _ = w.Write([]byte(b.body))
	}
}

// ErrorResponse is an error box with the given status.
func ErrorResponse(status int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().Status(status).Notice(NotificationError, message)
}

// SuccessResponse is a 200 confirmation box.
func SuccessResponse(message string) *HTMXResponseBuilder {
	return NewHTMXResponse().Notice(NotificationSuccess, message)
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// ConflictError reports a row that changed between read and write.
func ConflictError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func TooManyRequestsError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ServiceUnavailableError reports that the spreadsheet cannot be reached.
func ServiceUnavailableError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message)
}

// MethodNotAllowedError answers 405 with the Allow header and no body.
func MethodNotAllowedError(allowed string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowed)
}
