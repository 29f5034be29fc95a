// internal/bank/bank.go

// Package bank 定義核心商業邏輯：帳戶建立、交易提交、查詢與交易紀錄。
// Bank 為 Transaction Coordinator：對單一帳戶以互斥鎖序列化「讀取餘額 → 判斷 → 寫入」，
// 並透過 Store.Commit 以「條件式更新」一次寫入交易紀錄與新餘額（全有或全無）。
// 金額以 decimal（兩位小數）表示，避免浮點誤差。
package bank

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxCommitAttempts 為條件式提交遇到 ErrStaleBalance 時的最大嘗試次數。
// 單一行程內有帳戶鎖保護，只有多個行程共用同一資料庫時才會發生重試。
const maxCommitAttempts = 3

// Commit 為一次原子寫入：新增 Entry，並在帳戶餘額仍等於 Expected 時改為 Balance。
type Commit struct {
	Entry    Transaction
	Expected decimal.Decimal
	Balance  decimal.Decimal
}

// Store 為持久化協作者。Commit 必須是全有或全無；餘額不等於 Expected 時回傳 ErrStaleBalance，
// 帳戶不存在時回傳 ErrAccountNotFound。
type Store interface {
	CreateAccount(ctx context.Context, a Account) error
	Account(ctx context.Context, id string) (Account, error)
	Accounts(ctx context.Context, owner string) ([]Account, error)
	Transactions(ctx context.Context, accountID string) ([]Transaction, error)
	Commit(ctx context.Context, c Commit) error
}

// Publisher 在交易提交後接收通知；失敗只記錄，不影響已提交的結果。
type Publisher interface {
	Publish(ctx context.Context, r Receipt) error
}

// Bank 為聚合根 (Aggregate Root) 與交易協調者。
// - store：持久化協作者（記憶體快照或 Postgres）。
// - locks：每帳戶一把鎖，相同帳戶的提交序列化，不同帳戶互不阻塞。
type Bank struct {
	store  Store
	locks  *accountLocks
	pub    Publisher
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

// Option 調整 Bank 的可選協作者。
type Option func(*Bank)

// WithLogger 注入 zap logger；預設為 no-op。
func WithLogger(l *zap.Logger) Option {
	return func(b *Bank) {
		if l != nil {
			b.log = l
		}
	}
}

// WithPublisher 注入提交後的事件發布者。
func WithPublisher(p Publisher) Option {
	return func(b *Bank) { b.pub = p }
}

// WithClock 替換時間來源（測試用）。
func WithClock(now func() time.Time) Option {
	return func(b *Bank) { b.now = now }
}

// NewBank 建立 Bank；store 不可為 nil。
func NewBank(store Store, opts ...Option) *Bank {
	b := &Bank{
		store:  store,
		locks:  newAccountLocks(),
		log:    zap.NewNop(),
		tracer: otel.Tracer("ledger/internal/bank"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CreateAccount 為 owner 建立指定幣別的帳戶，初始餘額為 0。
func (b *Bank) CreateAccount(ctx context.Context, owner string, currency Currency) (Account, error) {
	if strings.TrimSpace(owner) == "" {
		return Account{}, ErrUnauthenticated
	}
	if !currency.Valid() {
		return Account{}, ErrInvalidCurrency
	}
	a := Account{
		ID:        b.newID(),
		Owner:     owner,
		Currency:  currency,
		Balance:   decimal.Zero,
		CreatedAt: b.now(),
	}
	if err := b.store.CreateAccount(ctx, a); err != nil {
		b.log.Error("create account failed", zap.String("owner", owner), zap.Error(err))
		return Account{}, persistenceErr("create account", err)
	}
	b.log.Info("account created",
		zap.String("account_id", a.ID),
		zap.String("owner", owner),
		zap.String("currency", string(currency)),
	)
	return a, nil
}

// GetAccount 回傳帳戶目前狀態；僅限擁有者讀取。
func (b *Bank) GetAccount(ctx context.Context, id, requester string) (Account, error) {
	if strings.TrimSpace(requester) == "" {
		return Account{}, ErrUnauthenticated
	}
	a, err := b.load(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if a.Owner != requester {
		return Account{}, ErrAccountNotOwned
	}
	return a, nil
}

// History 依帳本順序（建立時間）回傳帳戶的交易紀錄；僅限擁有者讀取。
func (b *Bank) History(ctx context.Context, id, requester string) ([]Transaction, error) {
	a, err := b.GetAccount(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	txs, err := b.store.Transactions(ctx, a.ID)
	if err != nil {
		return nil, persistenceErr("list transactions", err)
	}
	return txs, nil
}

// Statement 回傳帳戶狀態與交易紀錄，兩者來自同一個一致的時間點：
// 餘額等於回傳交易的帶號影響總和。僅限擁有者讀取。
//
// 交易紀錄只會追加，因此「交易 → 帳戶 → 交易」三次讀取中兩次交易筆數相同，
// 即代表中間沒有任何提交，帳戶讀取與交易紀錄一致。其他行程持續寫入時最多嘗試 maxCommitAttempts 次。
func (b *Bank) Statement(ctx context.Context, id, requester string) (Account, []Transaction, error) {
	a, err := b.GetAccount(ctx, id, requester)
	if err != nil {
		return Account{}, nil, err
	}

	unlock := b.locks.lock(a.ID)
	defer unlock()

	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		before, err := b.store.Transactions(ctx, a.ID)
		if err != nil {
			return Account{}, nil, persistenceErr("list transactions", err)
		}
		cur, err := b.load(ctx, a.ID)
		if err != nil {
			return Account{}, nil, err
		}
		after, err := b.store.Transactions(ctx, a.ID)
		if err != nil {
			return Account{}, nil, persistenceErr("list transactions", err)
		}
		if len(before) == len(after) {
			return cur, after, nil
		}
		b.log.Debug("ledger changed during statement read, retrying",
			zap.String("account_id", a.ID),
			zap.Int("attempt", attempt),
		)
	}
	return Account{}, nil, persistenceErr("read statement", errStatementChanged)
}

// Accounts 列出 owner 擁有的所有帳戶。
func (b *Bank) Accounts(ctx context.Context, owner string) ([]Account, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrUnauthenticated
	}
	as, err := b.store.Accounts(ctx, owner)
	if err != nil {
		return nil, persistenceErr("list accounts", err)
	}
	return as, nil
}

// Submit 驗證並套用一筆交易。
// 驗證失敗（IsRejection）不會寫入任何資料；儲存失敗回傳 *PersistenceError，同樣不留下部分狀態。
func (b *Bank) Submit(ctx context.Context, cmd Command) (Receipt, error) {
	ctx, span := b.tracer.Start(ctx, "bank.Submit", trace.WithAttributes(
		attribute.String("account.id", cmd.AccountID),
		attribute.String("tx.type", string(cmd.Type)),
	))
	defer span.End()

	rcpt, reached, err := b.submit(ctx, cmd)

	final := StageCommitted
	if err != nil {
		final = StageAborted
	}
	span.SetAttributes(attribute.String("tx.stage", string(final)), attribute.String("tx.reached", string(reached)))
	log := b.log.With(
		zap.String("account_id", cmd.AccountID),
		zap.String("type", string(cmd.Type)),
		zap.String("stage", string(final)),
		zap.String("reached", string(reached)),
	)

	switch {
	case err == nil:
		log.Info("transaction committed",
			zap.String("transaction_id", rcpt.Transaction.ID),
			zap.String("balance", rcpt.Balance.StringFixed(Scale)),
		)
		b.publish(ctx, rcpt)
	case IsRejection(err):
		log.Warn("transaction rejected", zap.Error(err))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("transaction failed", zap.Error(err))
	}
	return rcpt, err
}

// submit 執行 validate → authorize → evaluate → commit，並回傳最後到達的階段。
func (b *Bank) submit(ctx context.Context, cmd Command) (Receipt, Stage, error) {
	req, err := cmd.validate()
	if err != nil {
		return Receipt{}, StageReceived, err
	}
	acct, err := b.load(ctx, req.accountID)
	if err != nil {
		return Receipt{}, StageReceived, err
	}
	auth, err := req.authorize(acct)
	if err != nil {
		return Receipt{}, StageReceived, err
	}

	// 臨界區：同一帳戶的讀取、判斷與寫入必須序列化。
	unlock := b.locks.lock(acct.ID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		cur, err := b.load(ctx, auth.accountID)
		if err != nil {
			return Receipt{}, StageAuthorized, err
		}
		out := Evaluate(cur.Balance, auth.typ, auth.amount)
		if !out.Admitted {
			return Receipt{}, StageEvaluated, out.Reason.Err()
		}

		entry := Transaction{
			ID:        b.newID(),
			AccountID: cur.ID,
			Type:      auth.typ,
			Amount:    auth.amount,
			CreatedAt: b.now(),
		}
		err = b.store.Commit(ctx, Commit{Entry: entry, Expected: cur.Balance, Balance: out.NewBalance})
		if err == nil {
			return Receipt{Transaction: entry, Balance: out.NewBalance, Currency: auth.currency}, StageCommitted, nil
		}
		if errors.Is(err, ErrStaleBalance) && attempt < maxCommitAttempts {
			b.log.Debug("stale balance on commit, retrying",
				zap.String("account_id", cur.ID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		return Receipt{}, StageEvaluated, persistenceErr("commit transaction", err)
	}
}

// load 讀取帳戶；非 ErrAccountNotFound 的錯誤一律視為持久化失敗。
func (b *Bank) load(ctx context.Context, id string) (Account, error) {
	if strings.TrimSpace(id) == "" {
		return Account{}, ErrAccountNotFound
	}
	a, err := b.store.Account(ctx, id)
	if errors.Is(err, ErrAccountNotFound) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, persistenceErr("load account", err)
	}
	return a, nil
}

func (b *Bank) publish(ctx context.Context, r Receipt) {
	if b.pub == nil {
		return
	}
	if err := b.pub.Publish(ctx, r); err != nil {
		b.log.Warn("publish ledger entry failed",
			zap.String("transaction_id", r.Transaction.ID),
			zap.Error(err),
		)
	}
}
