package http

import (
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"tagihanair/internal/core"
	"tagihanair/internal/log"
	"tagihanair/internal/services"
)

// customerRefData backs the "previous period" panel of the billing form.
type customerRefData struct {
	Code           string
	Record         core.CustomerRecord
	Price          core.UnitPrice
	Warnings       []services.Warning
	HistoryEnabled bool
}

// billResultData backs the computed bill panel.
type billResultData struct {
	Result   services.UpdateResult
	Warnings []services.Warning
}

// historyData backs the per-customer history table.
type historyData struct {
	Code     string
	Enabled  bool
	Events   []core.LedgerEvent
	Warnings []services.Warning
}

// handleCustomerReference shows the selected customer's latest stored period.
func (s *Server) handleCustomerReference(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	code := ParseCustomerCode(r.URL.Query())
	data := customerRefData{Code: code, HistoryEnabled: s.history.Enabled()}
	if code == "" {
		s.render(w, r, "customer_ref.html", data)
		return
	}

	rec, warns, err := s.billing.LastRecord(ctx, code)
	if err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Customer lookup failed",
			log.FieldCustomerCode, code, log.FieldError, err)
		errorResponse(err).Write(w)
		return
	}
	price, pwarns := s.billing.Price(ctx)
	data.Record = rec
	data.Price = price
	data.Warnings = append(warns, pwarns...)
	s.render(w, r, "customer_ref.html", data)
}

// handleUpdateBilling records this period's reading and payment for a customer.
func (s *Server) handleUpdateBilling(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	logger := log.FromContext(ctx)

	p := NewRequestBodyParser(r)
	if resp := ParseBodyOrFail(p); resp != nil {
		resp.Write(w)
		return
	}

	code := core.NormalizeCode(p.Get("code"))
	if code == "" {
		s.reject(w, r, &core.ValidationError{Field: "code", Err: core.ErrMissingField})
		return
	}
	reading, err := p.Amount("current_reading")
	if err != nil {
		s.reject(w, r, err)
		return
	}
	paid, err := p.OptionalAmount("amount_paid")
	if err != nil {
		s.reject(w, r, err)
		return
	}

	res, err := s.billing.UpdateCustomer(ctx, services.UpdateRequest{
		Code:           code,
		CurrentReading: reading,
		AmountPaid:     paid,
	})
	switch {
	case err == nil:
	case errors.Is(err, core.ErrWriteFailed):
		// The bill was computed but not stored; show it with a warning.
		atomic.AddInt64(&s.appMetrics.writeFailures, 1)
		logger.ErrorContext(ctx, "Billing update not saved",
			log.FieldCustomerCode, code, log.FieldError, err)
		warn := services.Warning{
			Code:    services.WarnStoreUnavailable,
			Message: "Gagal menyimpan data ke Google Sheets. Hasil perhitungan di bawah ini belum tersimpan.",
		}
		html, rerr := s.renderString(r, "bill_result.html", billResultData{
			Result:   res,
			Warnings: append(res.Warnings, warn),
		})
		if rerr != nil {
			InternalServerError(msgWriteFailed).Write(w)
			return
		}
		NewHTMXResponse().
			BodyHTML(html).
			TriggerWarningNotification(warn.Message).
			Write(w)
		return
	default:
		s.reject(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.billingUpdates, 1)
	s.history.Forget(code)
	logger.InfoContext(ctx, "Billing updated",
		log.FieldCustomerCode, code,
		log.FieldBalance, res.Bill.Balance.String(),
		log.FieldUnitPrice, res.Price.PerCubicMeter.String())

	html, err := s.renderString(r, "bill_result.html", billResultData{Result: res, Warnings: res.Warnings})
	if err != nil {
		InternalServerError(msgInternal).Write(w)
		return
	}
	NewHTMXResponse().
		BodyHTML(html).
		TriggerLedgerChanged(code).
		TriggerSuccessNotification(fmt.Sprintf("✅ Data untuk '%s' berhasil diperbarui!", res.Record.Name)).
		Write(w)
}

// handleRegisterCustomer appends a new customer to the ledger.
func (s *Server) handleRegisterCustomer(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()

	p := NewRequestBodyParser(r)
	if resp := ParseBodyOrFail(p); resp != nil {
		resp.Write(w)
		return
	}

	initial, err := p.OptionalAmount("initial_reading")
	if err != nil {
		s.reject(w, r, err)
		return
	}
	reg := core.Registration{
		Code:           p.Get("code"),
		Name:           p.Get("name"),
		Village:        p.Get("village"),
		Unit:           p.Get("unit"),
		InitialReading: initial,
	}

	rec, err := s.billing.RegisterCustomer(ctx, reg)
	if err != nil {
		s.reject(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.registrations, 1)
	log.FromContext(ctx).InfoContext(ctx, "Customer registered", log.FieldCustomerCode, rec.Code)
	msg := fmt.Sprintf("✅ Pelanggan baru '%s' dengan kode '%s' berhasil ditambahkan!", rec.Name, rec.Code)
	SuccessResponse(msg).
		TriggerLedgerChanged(rec.Code).
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		Write(w)
}

// handleUpdatePrice stores a new unit price for future bills.
func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()

	p := NewRequestBodyParser(r)
	if resp := ParseBodyOrFail(p); resp != nil {
		resp.Write(w)
		return
	}
	value, err := p.Amount("unit_price")
	if err != nil {
		s.reject(w, r, err)
		return
	}

	if err := s.billing.UpdatePrice(ctx, value); err != nil {
		if errors.Is(err, services.ErrWritesDisabled) {
			ServiceUnavailableError(msgPriceOffline).Write(w)
			return
		}
		s.reject(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.priceChanges, 1)
	formatted := core.FormatRupiah(value)
	log.FromContext(ctx).InfoContext(ctx, "Unit price changed", log.FieldUnitPrice, value.String())
	msg := fmt.Sprintf("✅ Harga per m³ berhasil diperbarui menjadi %s!", formatted)
	SuccessResponse(msg).
		TriggerPriceChanged(formatted).
		TriggerSuccessNotification(msg).
		Write(w)
}

// handleHistory lists the recorded events of one customer.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	code := ParseCustomerCode(r.URL.Query())
	data := historyData{Code: code, Enabled: s.history.Enabled()}
	if data.Enabled && code != "" {
		data.Events, data.Warnings = s.history.ForCustomer(r.Context(), code)
	}
	s.render(w, r, "history.html", data)
}

// reject logs a failed operation at a level matching its cause and writes
// the mapped error response.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	switch {
	case isServerError(err):
		if errors.Is(err, core.ErrWriteFailed) {
			atomic.AddInt64(&s.appMetrics.writeFailures, 1)
		}
		logger.ErrorContext(ctx, "Request failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
	default:
		atomic.AddInt64(&s.appMetrics.rejectedRequests, 1)
		logger.InfoContext(ctx, "Request rejected",
			log.FieldOperation, log.OpValidate,
			log.FieldPath, r.URL.Path, "field", fieldOf(err), log.FieldError, err)
	}
	errorResponse(err).Write(w)
}
