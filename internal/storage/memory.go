// internal/storage/memory.go
//
// Memory 為 bank.Store 的記憶體實作，可選擇以 JSON 快照持久化。
// 每次變更都在同一個臨界區內完成「更新記憶體 → 寫入快照」；快照寫入失敗時還原記憶體狀態，
// 讓 Commit 維持全有或全無。
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/shopspring/decimal"

	"ledger/internal/bank"
)

// Memory 以 map 保存帳戶與交易紀錄。
// - mu：保護所有讀寫；帳戶層級的序列化由 bank.Bank 負責，此處只保證單次操作原子。
// - path：非空時，每次變更後寫入 JSON 快照。
type Memory struct {
	mu    sync.RWMutex
	path  string
	ids   []string
	accts map[string]*bank.Account
	txs   map[string][]bank.Transaction
}

// NewMemory 建立記憶體儲存；path 非空且檔案存在時先由快照還原。
func NewMemory(path string) (*Memory, error) {
	m := &Memory{
		path:  path,
		accts: make(map[string]*bank.Account),
		txs:   make(map[string][]bank.Transaction),
	}
	if path == "" {
		return m, nil
	}
	snap, err := LoadSnapshot(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if err := m.Restore(snap); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateAccount 新增帳戶；ID 重複視為錯誤。
func (m *Memory) CreateAccount(ctx context.Context, a bank.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accts[a.ID]; ok {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	cp := a
	m.accts[a.ID] = &cp
	m.ids = append(m.ids, a.ID)
	if err := m.persist(); err != nil {
		delete(m.accts, a.ID)
		m.ids = m.ids[:len(m.ids)-1]
		return err
	}
	return nil
}

// Account 依 ID 回傳帳戶的值拷貝。
func (m *Memory) Account(ctx context.Context, id string) (bank.Account, error) {
	if err := ctx.Err(); err != nil {
		return bank.Account{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accts[id]
	if !ok {
		return bank.Account{}, bank.ErrAccountNotFound
	}
	return *a, nil
}

// Accounts 依建立順序回傳 owner 的帳戶。
func (m *Memory) Accounts(ctx context.Context, owner string) ([]bank.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]bank.Account, 0)
	for _, id := range m.ids {
		if a := m.accts[id]; a.Owner == owner {
			out = append(out, *a)
		}
	}
	return out, nil
}

// Transactions 依帳本順序回傳帳戶的交易紀錄拷貝。
func (m *Memory) Transactions(ctx context.Context, accountID string) ([]bank.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.accts[accountID]; !ok {
		return nil, bank.ErrAccountNotFound
	}
	src := m.txs[accountID]
	out := make([]bank.Transaction, len(src))
	copy(out, src)
	return out, nil
}

// Commit 在餘額仍等於 c.Expected 時，同時追加交易紀錄並更新餘額。
func (m *Memory) Commit(ctx context.Context, c bank.Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := c.Entry.AccountID
	a, ok := m.accts[id]
	if !ok {
		return bank.ErrAccountNotFound
	}
	if !a.Balance.Equal(c.Expected) {
		return bank.ErrStaleBalance
	}

	prev := a.Balance
	a.Balance = c.Balance
	m.txs[id] = append(m.txs[id], c.Entry)
	if err := m.persist(); err != nil {
		a.Balance = prev
		m.txs[id] = m.txs[id][:len(m.txs[id])-1]
		return err
	}
	return nil
}

// Snapshot 匯出目前狀態：帳戶依建立順序，交易依帳戶分組並保持帳本順序。
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot()
}

func (m *Memory) snapshot() Snapshot {
	s := Snapshot{
		Meta: Meta{Version: snapshotVersion, Note: "ledger accounts and append-only transactions"},
	}
	for _, id := range m.ids {
		a := m.accts[id]
		s.Accounts = append(s.Accounts, PersistAccount{
			ID:        a.ID,
			Owner:     a.Owner,
			Currency:  string(a.Currency),
			Balance:   a.Balance.String(),
			CreatedAt: a.CreatedAt,
		})
		for _, t := range m.txs[id] {
			s.Transactions = append(s.Transactions, PersistTransaction{
				ID:        t.ID,
				AccountID: t.AccountID,
				Type:      string(t.Type),
				Amount:    t.Amount.String(),
				CreatedAt: t.CreatedAt,
			})
		}
	}
	return s
}

// Restore 以快照取代目前狀態；快照無法解析或違反帳本不變量時回傳錯誤且不改變狀態：
//   - 帳戶 ID 不可重複，交易只能引用已存在的帳戶
//   - 幣別與交易類型必須合法
//   - 依帳本順序累加時餘額不可為負，且最終等於帳戶餘額
func (m *Memory) Restore(s Snapshot) error {
	ids := make([]string, 0, len(s.Accounts))
	accts := make(map[string]*bank.Account, len(s.Accounts))
	txs := make(map[string][]bank.Transaction)

	for _, pa := range s.Accounts {
		if _, dup := accts[pa.ID]; dup {
			return fmt.Errorf("restore account %s: duplicate id", pa.ID)
		}
		cur := bank.Currency(pa.Currency)
		if !cur.Valid() {
			return fmt.Errorf("restore account %s: invalid currency %q", pa.ID, pa.Currency)
		}
		bal, err := decimal.NewFromString(pa.Balance)
		if err != nil {
			return fmt.Errorf("restore account %s balance: %w", pa.ID, err)
		}
		accts[pa.ID] = &bank.Account{
			ID:        pa.ID,
			Owner:     pa.Owner,
			Currency:  cur,
			Balance:   bal,
			CreatedAt: pa.CreatedAt,
		}
		ids = append(ids, pa.ID)
	}

	running := make(map[string]decimal.Decimal, len(accts))
	for _, pt := range s.Transactions {
		if _, ok := accts[pt.AccountID]; !ok {
			return fmt.Errorf("restore transaction %s: unknown account %s", pt.ID, pt.AccountID)
		}
		typ := bank.TxType(pt.Type)
		if !typ.Valid() {
			return fmt.Errorf("restore transaction %s: invalid type %q", pt.ID, pt.Type)
		}
		amt, err := decimal.NewFromString(pt.Amount)
		if err != nil {
			return fmt.Errorf("restore transaction %s amount: %w", pt.ID, err)
		}
		t := bank.Transaction{
			ID:        pt.ID,
			AccountID: pt.AccountID,
			Type:      typ,
			Amount:    amt,
			CreatedAt: pt.CreatedAt,
		}
		sum := running[pt.AccountID].Add(t.Effect())
		if sum.IsNegative() {
			return fmt.Errorf("restore transaction %s: balance of %s goes negative", pt.ID, pt.AccountID)
		}
		running[pt.AccountID] = sum
		txs[pt.AccountID] = append(txs[pt.AccountID], t)
	}
	for _, id := range ids {
		if want := running[id]; !accts[id].Balance.Equal(want) {
			return fmt.Errorf("restore account %s: balance %s does not match ledger total %s", id, accts[id].Balance, want)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids, m.accts, m.txs = ids, accts, txs
	return nil
}

// Close 寫入最後一次快照。
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persist()
}

// persist 呼叫端須持有 m.mu。
func (m *Memory) persist() error {
	if m.path == "" {
		return nil
	}
	if err := SaveSnapshot(m.path, m.snapshot()); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
