// internal/bank/errors.go
//
// 本檔集中定義「領域錯誤（domain errors）」。
// 驗證類錯誤（rejection）屬於商業邏輯層級，會由上層 HTTP handler 轉換成適當的狀態碼；
// 儲存失敗則以 PersistenceError 與之區分，代表伺服器端錯誤且可由呼叫端重試。

package bank

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound 代表帳戶不存在。
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountNotOwned 代表請求者不是帳戶擁有者。
	ErrAccountNotOwned = errors.New("account not owned by requester")

	// ErrInsufficientFunds 代表 Transfer 會使餘額為負。
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount 代表金額不是合法的有限小數（或超出位數限制）。
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidType 代表交易類型不是 Deposit 或 Transfer。
	ErrInvalidType = errors.New("invalid transaction type")

	// ErrInvalidCurrency 代表幣別不在支援清單內。
	ErrInvalidCurrency = errors.New("invalid currency")

	// ErrBalanceLimit 代表存款後餘額會超出 12 位數上限。
	ErrBalanceLimit = errors.New("balance limit exceeded")

	// ErrUnauthenticated 代表沒有提供請求者身分。
	ErrUnauthenticated = errors.New("requester identity required")

	// ErrStaleBalance 由儲存層回傳：提交時帳戶餘額已與讀取時不同。
	// 只在 store 與 Bank 之間流動，不會回傳給呼叫端。
	ErrStaleBalance = errors.New("stale balance")

	// errStatementChanged 代表讀取對帳單期間帳本持續被其他行程寫入。
	errStatementChanged = errors.New("ledger changed during read")

	// ErrPersistence 為所有 PersistenceError 的共同哨兵值。
	ErrPersistence = errors.New("persistence failure")
)

// PersistenceError 表示持久化步驟失敗；保證沒有任何部分寫入。
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrPersistence, e.Err)
}

// Unwrap 讓 errors.Is 同時比對 ErrPersistence 與底層原因。
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// IsRejection 回報 err 是否為驗證拒絕（非致命、狀態未改變）。
func IsRejection(err error) bool {
	switch {
	case err == nil, errors.Is(err, ErrPersistence):
		return false
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrAccountNotOwned),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidType),
		errors.Is(err, ErrInvalidCurrency),
		errors.Is(err, ErrBalanceLimit),
		errors.Is(err, ErrUnauthenticated):
		return true
	}
	return false
}

func persistenceErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
