// internal/bank/rules.go
//
// Balance Rule Engine：純函式，只根據「目前餘額、交易類型、金額」決定是否可接受並計算新餘額。
// 不做任何 I/O，可單獨測試。

package bank

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale 為金額小數位數（分）；所有對外輸出的金額都以此位數呈現。
const Scale = 2

// 解析金額時可接受的十進位指數範圍。超出範圍的輸入在換算前就拒絕，
// 避免 1e2000000000 之類的指數被展開成巨大的整數。
const (
	minExponent = -20
	maxExponent = 12
)

// ceiling 為金額與餘額的上限（不含）：最多 12 位數、2 位小數，即 9999999999.99。
var ceiling = decimal.New(1, 10)

// Reason 說明為何交易被拒絕。
type Reason string

const (
	ReasonInsufficientFunds    Reason = "InsufficientFunds"
	ReasonBalanceLimitExceeded Reason = "BalanceLimitExceeded"
	ReasonInvalidType          Reason = "InvalidType"
)

// Err 將拒絕原因對應到領域錯誤。
func (r Reason) Err() error {
	switch r {
	case ReasonInsufficientFunds:
		return ErrInsufficientFunds
	case ReasonBalanceLimitExceeded:
		return ErrBalanceLimit
	default:
		return ErrInvalidType
	}
}

// Outcome is the decision of the rule engine: Admitted with NewBalance, or Rejected with Reason.
type Outcome struct {
	Admitted   bool
	NewBalance decimal.Decimal
	Reason     Reason
}

func admitted(b decimal.Decimal) Outcome { return Outcome{Admitted: true, NewBalance: b} }
func rejected(r Reason) Outcome          { return Outcome{Reason: r} }

// Evaluate 依交易類型套用 |amount|：
//   - Deposit：永遠可接受（除非超出餘額上限），新餘額 = balance + |amount|
//   - Transfer：僅在 balance - |amount| >= 0 時可接受
func Evaluate(balance decimal.Decimal, typ TxType, amount decimal.Decimal) Outcome {
	abs := amount.Abs()
	switch typ {
	case Deposit:
		next := balance.Add(abs)
		if next.GreaterThanOrEqual(ceiling) {
			return rejected(ReasonBalanceLimitExceeded)
		}
		return admitted(next)
	case Transfer:
		next := balance.Sub(abs)
		if next.IsNegative() {
			return rejected(ReasonInsufficientFunds)
		}
		return admitted(next)
	}
	return rejected(ReasonInvalidType)
}

// ParseAmount 解析金額字串；接受正負號，但必須是有限小數、最多兩位小數、最多 12 位數。
// 金額保留原始正負號，實際套用時才取絕對值。
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if exp := d.Exponent(); exp < minExponent || exp > maxExponent {
		return decimal.Decimal{}, fmt.Errorf("%w: exponent %d out of range", ErrInvalidAmount, exp)
	}
	if !d.Equal(d.Round(Scale)) {
		return decimal.Decimal{}, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, Scale)
	}
	if d.Abs().GreaterThanOrEqual(ceiling) {
		return decimal.Decimal{}, fmt.Errorf("%w: more than 12 digits", ErrInvalidAmount)
	}
	return d.Round(Scale), nil
}
