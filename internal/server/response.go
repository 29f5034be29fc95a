// internal/server/response.go
//
// 本檔負責統一 HTTP 回應格式。
//   - 成功回應：JSON 編碼（Content-Type: application/json）。
//   - 錯誤回應：JSON 字串陣列，例如 ["Not enough funds."]，舊客戶端依此格式解析。
//
// 領域錯誤到狀態碼與訊息的對應集中在此，handler 不直接判斷錯誤種類。
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledger/internal/bank"
	"ledger/internal/logger"
)

// 回應訊息。
const (
	msgAccountNotFound   = "Account does not exist."
	msgAccountNotOwned   = "Account does not belong to currently authenticated user."
	msgInsufficientFunds = "Not enough funds."
	msgInvalidAmount     = "A valid amount is required: at most 12 digits and 2 decimal places."
	msgInvalidType       = "Transaction type must be one of: Deposit, Transfer."
	msgInvalidCurrency   = "Currency must be one of: USD, EUR."
	msgBalanceLimit      = "Balance limit exceeded."
	msgUnauthenticated   = "Authentication credentials were not provided."
	msgInvalidToken      = "Invalid token."
	msgForbidden         = "You do not have permission to perform this action."
	msgInvalidJSON       = "Invalid JSON body."
	msgInternal          = "Internal server error."
	msgInProgress        = "A request with this Idempotency-Key is already in progress."
	msgUnavailable       = "Service temporarily unavailable."
)

// writeJSON 統一輸出成功回應。
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("error while encoding response", logger.Error(err))
	}
}

// writeErr 以 JSON 字串陣列輸出錯誤。
func writeErr(w http.ResponseWriter, code int, msgs ...string) {
	writeJSON(w, code, msgs)
}

// rejection 將驗證拒絕對應到訊息；非驗證拒絕回傳空字串。
func rejection(err error) string {
	switch {
	case errors.Is(err, bank.ErrPersistence):
		return ""
	case errors.Is(err, bank.ErrAccountNotFound):
		return msgAccountNotFound
	case errors.Is(err, bank.ErrAccountNotOwned):
		return msgAccountNotOwned
	case errors.Is(err, bank.ErrInsufficientFunds):
		return msgInsufficientFunds
	case errors.Is(err, bank.ErrInvalidAmount):
		return msgInvalidAmount
	case errors.Is(err, bank.ErrInvalidType):
		return msgInvalidType
	case errors.Is(err, bank.ErrInvalidCurrency):
		return msgInvalidCurrency
	case errors.Is(err, bank.ErrBalanceLimit):
		return msgBalanceLimit
	case errors.Is(err, bank.ErrUnauthenticated):
		return msgUnauthenticated
	}
	return ""
}

// writeSubmitErr 用於寫入操作：所有驗證拒絕皆為 400，身分缺失為 401，其餘為 500。
func writeSubmitErr(w http.ResponseWriter, err error) {
	msg := rejection(err)
	switch {
	case msg == "":
		writeErr(w, http.StatusInternalServerError, msgInternal)
	case errors.Is(err, bank.ErrUnauthenticated):
		writeErr(w, http.StatusUnauthorized, msg)
	default:
		writeErr(w, http.StatusBadRequest, msg)
	}
}

// writeReadErr 用於查詢操作：不存在為 404，非擁有者為 403。
func writeReadErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bank.ErrPersistence):
		writeErr(w, http.StatusInternalServerError, msgInternal)
	case errors.Is(err, bank.ErrAccountNotFound):
		writeErr(w, http.StatusNotFound, msgAccountNotFound)
	case errors.Is(err, bank.ErrAccountNotOwned):
		writeErr(w, http.StatusForbidden, msgAccountNotOwned)
	default:
		writeSubmitErr(w, err)
	}
}
