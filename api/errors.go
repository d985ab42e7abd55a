/*
errors.go - Error to HTTP status mapping

THE TABLE:
  This is the only place that decides a status code for a domain error.
  Rows are checked in order with errors.Is; the first match wins.

    ErrUnauthorized            401  unauthorized
    ErrForbidden               403  forbidden
    ErrNotFound                404  not_found
    ErrValidation              400  validation_failed   details: field -> message
    ErrInsufficientFunds       400  insufficient_funds  details: account, balance, required
    ErrConcurrentModification  409  concurrent_modification
    ErrConflict                409  conflict            details: field, when known
    anything else              500  internal server error, no details

  InsufficientFundsError also matches ErrConflict, so its row must come
  before the ErrConflict row.
*/
package api

import (
	"errors"
	"net/http"

	"github.com/warp/finance-engine/finance"
	"github.com/warp/finance-engine/logger"
)

var statusTable = []struct {
	target error
	status int
	code   string
}{
	{finance.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{finance.ErrForbidden, http.StatusForbidden, "forbidden"},
	{finance.ErrNotFound, http.StatusNotFound, "not_found"},
	{finance.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{finance.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds"},
	{finance.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{finance.ErrConflict, http.StatusConflict, "conflict"},
}

// InsufficientFundsDetails is what a client needs to offer a top-up.
type InsufficientFundsDetails struct {
	AccountID      int64  `json:"accountId"`
	AccountName    string `json:"accountName"`
	CurrentBalance string `json:"currentBalance"`
	RequiredAmount string `json:"requiredAmount"`
}

// errorResponse maps err to a status and body.
func errorResponse(err error) (int, ErrorResponse) {
	for _, row := range statusTable {
		if errors.Is(err, row.target) {
			return row.status, ErrorResponse{Error: clientMessage(err), Code: row.code, Details: errorDetails(err)}
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal"}
}

func clientMessage(err error) string {
	var verr *finance.ValidationError
	if errors.As(err, &verr) {
		return "invalid request"
	}
	return err.Error()
}

func errorDetails(err error) any {
	var (
		verr     *finance.ValidationError
		funds    *finance.InsufficientFundsError
		conflict *finance.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		return verr.Fields
	case errors.As(err, &funds):
		return InsufficientFundsDetails{
			AccountID:      int64(funds.AccountID),
			AccountName:    funds.AccountName,
			CurrentBalance: funds.CurrentBalance.StringFixed(2),
			RequiredAmount: funds.RequiredAmount.StringFixed(2),
		}
	case errors.As(err, &conflict) && conflict.Field != "":
		return map[string]string{"field": conflict.Field}
	}
	return nil
}

// writeError writes the mapped response. Server errors are logged with the
// full error; the client only sees the generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, resp)
}
