// internal/bank/command.go
//
// 一次提交以不可變的值在各階段之間傳遞：
// Command →(validate)→ request →(authorize)→ authorized →(Evaluate)→ Outcome →(commit)→ Receipt。
// 每個階段只讀取上一階段的回傳值，沒有共享的可變狀態。

package bank

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Command is an inbound transaction request as parsed by the transport layer.
type Command struct {
	AccountID string
	Requester string
	Type      TxType
	Amount    string
}

// Stage 為單次提交的狀態機階段。Committed 與 Aborted 為終止狀態。
type Stage string

const (
	StageReceived   Stage = "received"
	StageAuthorized Stage = "authorized"
	StageEvaluated  Stage = "evaluated"
	StageCommitted  Stage = "committed"
	StageAborted    Stage = "aborted"
)

// Terminal 回報是否為終止狀態。
func (s Stage) Terminal() bool {
	return s == StageCommitted || s == StageAborted
}

// request 為通過格式驗證的 Command。
type request struct {
	accountID string
	requester string
	typ       TxType
	amount    decimal.Decimal
}

// authorized 為已確認帳戶存在且屬於請求者的 request。
type authorized struct {
	request
	currency Currency
}

// validate 檢查所有不需要讀取儲存層即可判斷的條件。
func (c Command) validate() (request, error) {
	if strings.TrimSpace(c.Requester) == "" {
		return request{}, ErrUnauthenticated
	}
	if !c.Type.Valid() {
		return request{}, ErrInvalidType
	}
	amt, err := ParseAmount(c.Amount)
	if err != nil {
		return request{}, err
	}
	return request{
		accountID: strings.TrimSpace(c.AccountID),
		requester: c.Requester,
		typ:       c.Type,
		amount:    amt,
	}, nil
}

// authorize 確認帳戶擁有者與請求者一致。
func (r request) authorize(a Account) (authorized, error) {
	if a.Owner != r.requester {
		return authorized{}, ErrAccountNotOwned
	}
	return authorized{request: r, currency: a.Currency}, nil
}
