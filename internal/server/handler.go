// internal/server/handler.go
//
// Package server 提供 HTTP RESTful 介面，作為 bank 模組的應用層。
// 每個 handler 僅負責：
//  1. 解析 HTTP 請求並取得請求者身分
//  2. 呼叫 bank 層執行商業邏輯
//  3. 將結果或錯誤轉成 JSON 回應
//
// 餘額規則與並行控制都在 bank 層；此層不保存任何狀態。
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ledger/internal/bank"
	"ledger/internal/idempotency"
	"ledger/internal/logger"
)

// Server 為 HTTP 層核心結構：
// - bank：注入的商業邏輯層。
// - secret：驗證 bearer token 的 HS256 金鑰。
// - idem：Idempotency-Key 回應快取；nil 表示停用。
type Server struct {
	bank    *bank.Bank
	secret  string
	idem    idempotency.Store
	idemTTL time.Duration
}

// Option 調整 Server 的可選協作者。
type Option func(*Server)

// WithIdempotency 啟用 POST /transaction 的 Idempotency-Key 重送。
func WithIdempotency(store idempotency.Store, ttl time.Duration) Option {
	return func(s *Server) {
		s.idem = store
		s.idemTTL = ttl
	}
}

// NewServer 建立新的 HTTP 伺服器。
func NewServer(b *bank.Bank, tokenSecret string, opts ...Option) *Server {
	s := &Server{bank: b, secret: tokenSecret}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// balanceView 為 GET /account/balance/{id} 的回應：帳戶狀態加上交易紀錄。
type balanceView struct {
	bank.AccountView
	Transactions []bank.TransactionView `json:"transactions"`
}

type userView struct {
	ID       string   `json:"id"`
	Accounts []string `json:"accounts"`
}

// health 提供健康檢查端點：GET /health。
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createAccount 處理 POST /account，body：{"currency":"USD"}。
func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Warn("error while decoding an account request", logger.Error(err))
		writeErr(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	a, err := s.bank.CreateAccount(r.Context(), identity(r.Context()), bank.Currency(req.Currency))
	if err != nil {
		writeSubmitErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.View())
}

// listAccounts 處理 GET /account：只列出請求者自己的帳戶。
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	as, err := s.bank.Accounts(r.Context(), identity(r.Context()))
	if err != nil {
		writeReadErr(w, err)
		return
	}
	out := make([]bank.AccountView, 0, len(as))
	for _, a := range as {
		out = append(out, a.View())
	}
	writeJSON(w, http.StatusOK, out)
}

// balance 處理 GET /account/balance/{id}；餘額與交易紀錄來自同一個一致的讀取。
func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, txs, err := s.bank.Statement(ctx, chi.URLParam(r, "id"), identity(ctx))
	if err != nil {
		writeReadErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{AccountView: a.View(), Transactions: transactionViews(txs)})
}

// history 處理 GET /account/history/{id}，依帳本順序回傳。
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txs, err := s.bank.History(ctx, chi.URLParam(r, "id"), identity(ctx))
	if err != nil {
		writeReadErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionViews(txs))
}

// user 處理 GET /users/{id}：只能查詢自己。
func (s *Server) user(w http.ResponseWriter, r *http.Request) {
	ctx, id := r.Context(), chi.URLParam(r, "id")
	if id != identity(ctx) {
		writeErr(w, http.StatusForbidden, msgForbidden)
		return
	}
	as, err := s.bank.Accounts(ctx, id)
	if err != nil {
		writeReadErr(w, err)
		return
	}
	ids := make([]string, 0, len(as))
	for _, a := range as {
		ids = append(ids, a.ID)
	}
	writeJSON(w, http.StatusOK, userView{ID: id, Accounts: ids})
}

// transaction 處理 POST /transaction，body：{"type","account","amount"}。
// amount 可為 JSON 字串或數字；數字以原始文字解析，不經過 float64。
func (s *Server) transaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type    string          `json:"type"`
		Account string          `json:"account"`
		Amount  json.RawMessage `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Warn("error while decoding a transaction request", logger.Error(err))
		writeErr(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	amount, ok := rawAmount(req.Amount)
	if !ok {
		writeErr(w, http.StatusBadRequest, msgInvalidAmount)
		return
	}

	ctx := r.Context()
	rcpt, err := s.bank.Submit(ctx, bank.Command{
		AccountID: req.Account,
		Requester: identity(ctx),
		Type:      bank.TxType(req.Type),
		Amount:    amount,
	})
	if err != nil {
		writeSubmitErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rcpt.View())
}

// rawAmount 取出金額的文字表示；欄位缺少或為 null 時回傳空字串，由 bank 層判定為不合法。
func rawAmount(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", true
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	if raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9') {
		return string(raw), true
	}
	return "", false
}

func transactionViews(txs []bank.Transaction) []bank.TransactionView {
	out := make([]bank.TransactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, t.View())
	}
	return out
}
