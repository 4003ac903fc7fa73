package apierror_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/getreel/reel/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	details := "wallet wal_123 not found"
	apiErr := apierror.NewAPIError(apierror.ErrNotFound, "Wallet not found", details)

	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.Equal(t, "Wallet not found", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "NOT_FOUND: Wallet not found", apiErr.Error())
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", apierror.NewAPIError(apierror.ErrNotFound, "missing", nil), http.StatusNotFound},
		{"conflict", apierror.NewAPIError(apierror.ErrConflict, "duplicate", nil), http.StatusConflict},
		{"already refunded", apierror.NewAPIError(apierror.ErrAlreadyRefunded, "refunded", nil), http.StatusConflict},
		{"unknown tier", apierror.NewAPIError(apierror.ErrUnknownTier, "no tier", nil), http.StatusConflict},
		{"invalid input", apierror.NewAPIError(apierror.ErrInvalidInput, "bad", nil), http.StatusBadRequest},
		{"insufficient credits", apierror.NewAPIError(apierror.ErrInsufficientCredits, "broke", nil), http.StatusPaymentRequired},
		{"payment not confirmed", apierror.NewAPIError(apierror.ErrPaymentNotConfirmed, "unpaid", nil), http.StatusPaymentRequired},
		{"quota exceeded", apierror.NewAPIError(apierror.ErrQuotaExceeded, "capped", nil), http.StatusTooManyRequests},
		{"internal", apierror.NewAPIError(apierror.ErrInternalServer, "boom", nil), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apierror.MapErrorToHTTPStatus(tt.err))
		})
	}
}
