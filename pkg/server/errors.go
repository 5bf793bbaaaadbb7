package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Layr-Labs/reward-vault-go/pkg/ledger"
	"github.com/Layr-Labs/reward-vault-go/pkg/persistence"
	"github.com/Layr-Labs/reward-vault-go/pkg/types"
)

// statusForVaultError maps vault error codes to HTTP status codes
var statusForVaultError = map[uint32]int{
	types.ErrInvalidSignature.Code:      http.StatusForbidden,
	types.ErrExpiredSignature.Code:      http.StatusUnauthorized,
	types.ErrWithdrawTooMuch.Code:       http.StatusUnprocessableEntity,
	types.ErrSigVerificationFailed.Code: http.StatusUnauthorized,
	types.ErrSignatureUsed.Code:         http.StatusConflict,
	types.ErrSignerAddedAlready.Code:    http.StatusConflict,
	types.ErrSignerNotExist.Code:        http.StatusConflict,
	types.ErrTooManySigners.Code:        http.StatusConflict,
	types.ErrInvalidAmount.Code:         http.StatusBadRequest,
	types.ErrAlreadyInitialized.Code:    http.StatusConflict,
	types.ErrNotInitialized.Code:        http.StatusPreconditionFailed,
	types.ErrInvalidParameter.Code:      http.StatusBadRequest,
}

func errorBody(r *http.Request, code uint32, name, msg string) *types.ErrorResponse {
	return &types.ErrorResponse{
		Code:      code,
		Name:      name,
		Error:     msg,
		RequestID: requestIDFrom(r.Context()),
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError turns an operation failure into a typed response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var body *types.ErrorResponse

	if ve, ok := types.AsVaultError(err); ok {
		if st, known := statusForVaultError[ve.Code]; known {
			status = st
		}
		body = errorBody(r, ve.Code, ve.Name, err.Error())
	} else {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			status = http.StatusUnprocessableEntity
			body = errorBody(r, 0, "InsufficientFunds", err.Error())
		case errors.Is(err, ledger.ErrInvalidAccount):
			status = http.StatusBadRequest
			body = errorBody(r, 0, "InvalidAccount", err.Error())
		case errors.Is(err, persistence.ErrConflict):
			status = http.StatusConflict
			body = errorBody(r, 0, "Conflict", err.Error())
		default:
			body = errorBody(r, 0, "Internal", "internal error")
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Sugar().Errorw("Request failed", "requestId", body.RequestID, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Sugar().Infow("Request rejected", "requestId", body.RequestID, "path", r.URL.Path, "code", body.Code, "error", err)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody(r, types.ErrInvalidParameter.Code, types.ErrInvalidParameter.Name, msg))
}
