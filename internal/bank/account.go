// internal/bank/account.go
//
// Package bank 定義核心領域模型與業務規則。
// 本檔定義 Account 與交易紀錄 Transaction，不含任何 HTTP 或儲存細節。

package bank

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the denomination of an account.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// Valid 回報幣別是否屬於支援清單。
func (c Currency) Valid() bool {
	return c == USD || c == EUR
}

// TxType is the kind of balance-affecting event.
type TxType string

const (
	// Deposit 增加餘額。
	Deposit TxType = "Deposit"
	// Transfer 為對外扣款（無對手帳戶），減少餘額。
	Transfer TxType = "Transfer"
)

// Valid 回報交易類型是否合法。
func (t TxType) Valid() bool {
	return t == Deposit || t == Transfer
}

// Account represents an owned, currency-typed balance.
// Owner 與 Currency 建立後不可變更；Balance 只能經由 Bank.Submit 變動。
type Account struct {
	ID        string
	Owner     string
	Currency  Currency
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// Transaction represents one committed ledger entry.
// 一旦提交即不可修改、不可刪除（append-only）。
type Transaction struct {
	ID        string
	AccountID string
	Type      TxType
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// Effect 回傳此筆交易對餘額的帶號影響：Deposit 為 +|amount|，Transfer 為 -|amount|。
func (t Transaction) Effect() decimal.Decimal {
	if t.Type == Transfer {
		return t.Amount.Abs().Neg()
	}
	return t.Amount.Abs()
}

// AccountView 為對外輸出的帳戶投影，金額固定兩位小數。
type AccountView struct {
	ID       string   `json:"id"`
	Balance  string   `json:"balance"`
	Currency Currency `json:"currency"`
	Owner    string   `json:"owner"`
}

// TransactionView 為對外輸出的交易投影。
type TransactionView struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created"`
	Type      TxType    `json:"type"`
	Amount    string    `json:"amount"`
	AccountID string    `json:"account"`
}

// View 產生帳戶的唯讀投影。
func (a Account) View() AccountView {
	return AccountView{
		ID:       a.ID,
		Balance:  a.Balance.StringFixed(Scale),
		Currency: a.Currency,
		Owner:    a.Owner,
	}
}

// View 產生交易的唯讀投影。
func (t Transaction) View() TransactionView {
	return TransactionView{
		ID:        t.ID,
		CreatedAt: t.CreatedAt,
		Type:      t.Type,
		Amount:    t.Amount.StringFixed(Scale),
		AccountID: t.AccountID,
	}
}

// Receipt 為一次成功提交的結果：新增的交易與提交後的餘額。
type Receipt struct {
	Transaction Transaction
	Balance     decimal.Decimal
	Currency    Currency
}

// ReceiptView 為提交結果的對外投影：交易欄位加上提交後餘額。
type ReceiptView struct {
	TransactionView
	Balance string `json:"balance"`
}

// View 產生提交結果的唯讀投影。
func (r Receipt) View() ReceiptView {
	return ReceiptView{
		TransactionView: r.Transaction.View(),
		Balance:         r.Balance.StringFixed(Scale),
	}
}
