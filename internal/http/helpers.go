package http

import (
	"errors"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tagihanair/internal/core"
	"tagihanair/internal/services"
	"tagihanair/internal/sheets"
)

const (
	msgStoreUnavailable = "Gagal terhubung ke Google Sheets. Pastikan API telah diaktifkan dan Sheet sudah di-share."
	msgMissingField     = "Semua field harus diisi."
	msgDuplicateCode    = "Kode Pelanggan sudah ada. Gunakan kode unik."
	msgReadingDecreased = "Jumlah meter bulan ini tidak boleh lebih kecil dari meteran bulan lalu."
	msgNegativeAmount   = "Nilai tidak boleh negatif."
	msgInvalidNumber    = "Nilai harus berupa angka."
	msgNotFound         = "Data pelanggan tidak ditemukan."
	msgStalePosition    = "Data pelanggan berubah sejak dimuat. Silakan refresh data lalu coba lagi."
	msgWriteFailed      = "Gagal menyimpan data ke Google Sheets. Silakan coba lagi."
	msgPriceOffline     = "Tidak dapat memperbarui harga karena koneksi ke Google Sheets gagal."
	msgRateLimited      = "Terlalu banyak permintaan. Silakan tunggu sebentar."
	msgInternal         = "Terjadi kesalahan. Silakan coba lagi."
)

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// errorResponse maps a service error to the status and message the operator sees.
func errorResponse(err error) *HTMXResponseBuilder {
	switch {
	case errors.Is(err, services.ErrWritesDisabled), errors.Is(err, sheets.ErrUnavailable):
		return ServiceUnavailableError(msgStoreUnavailable)
	case errors.Is(err, sheets.ErrWorksheetNotFound):
		return ServiceUnavailableError(err.Error())
	case errors.Is(err, core.ErrDuplicateCode):
		return UnprocessableEntityError(msgDuplicateCode)
	case errors.Is(err, core.ErrMissingField):
		return UnprocessableEntityError(msgMissingField)
	case errors.Is(err, core.ErrReadingDecreased):
		return UnprocessableEntityError(msgReadingDecreased)
	case errors.Is(err, core.ErrNegativeAmount):
		return UnprocessableEntityError(msgNegativeAmount)
	case errors.Is(err, core.ErrInvalidNumber):
		return UnprocessableEntityError(msgInvalidNumber)
	case errors.Is(err, core.ErrRecordNotFound):
		return NotFoundError(msgNotFound)
	case errors.Is(err, core.ErrStalePosition):
		return ConflictError(msgStalePosition)
	case errors.Is(err, core.ErrWriteFailed):
		return InternalServerError(msgWriteFailed)
	default:
		return InternalServerError(msgInternal)
	}
}

// isServerError reports whether err should be logged at error level.
func isServerError(err error) bool {
	return !services.IsUserError(err) &&
		!errors.Is(err, core.ErrStalePosition) &&
		!errors.Is(err, services.ErrWritesDisabled)
}

// templateFuncs are available to every page and fragment.
func templateFuncs(loc *time.Location) template.FuncMap {
	return template.FuncMap{
		"rupiah": core.FormatRupiah,
		"m3":     core.FormatCubicMeters,
		"number": func(d decimal.Decimal) string { return d.String() },
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.In(loc).Format(core.TimestampLayout)
		},
		"negative": func(d decimal.Decimal) bool { return d.IsNegative() },
		"positive": func(d decimal.Decimal) bool { return d.IsPositive() },
		"eventLabel": func(k core.EventKind) string {
			switch k {
			case core.EventCustomerRegistered:
				return "Pendaftaran"
			case core.EventBillingUpdated:
				return "Tagihan"
			case core.EventPriceChanged:
				return "Perubahan Harga"
			}
			return string(k)
		},
	}
}
