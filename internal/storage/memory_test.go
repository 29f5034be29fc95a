package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/bank"
)

func account(id, owner string) bank.Account {
	return bank.Account{
		ID:        id,
		Owner:     owner,
		Currency:  bank.USD,
		Balance:   decimal.Zero,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func deposit(id, accountID, amount string) bank.Transaction {
	return bank.Transaction{
		ID:        id,
		AccountID: accountID,
		Type:      bank.Deposit,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC),
	}
}

func TestMemoryAccounts(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory("")
	require.NoError(t, err)

	require.NoError(t, m.CreateAccount(ctx, account("a1", "alice")))
	require.NoError(t, m.CreateAccount(ctx, account("a2", "bob")))
	require.NoError(t, m.CreateAccount(ctx, account("a3", "alice")))
	assert.Error(t, m.CreateAccount(ctx, account("a1", "alice")), "duplicate id")

	as, err := m.Accounts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, as, 2)
	assert.Equal(t, "a1", as[0].ID)
	assert.Equal(t, "a3", as[1].ID)

	_, err = m.Account(ctx, "nope")
	assert.ErrorIs(t, err, bank.ErrAccountNotFound)
	_, err = m.Transactions(ctx, "nope")
	assert.ErrorIs(t, err, bank.ErrAccountNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Account(cancelled, "a1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryCommitCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory("")
	require.NoError(t, err)
	require.NoError(t, m.CreateAccount(ctx, account("a1", "alice")))

	require.NoError(t, m.Commit(ctx, bank.Commit{
		Entry:    deposit("t1", "a1", "10"),
		Expected: decimal.Zero,
		Balance:  decimal.RequireFromString("10"),
	}))

	// 預期餘額已過期
	err = m.Commit(ctx, bank.Commit{
		Entry:    deposit("t2", "a1", "5"),
		Expected: decimal.Zero,
		Balance:  decimal.RequireFromString("5"),
	})
	assert.ErrorIs(t, err, bank.ErrStaleBalance)

	err = m.Commit(ctx, bank.Commit{Entry: deposit("t3", "ghost", "5")})
	assert.ErrorIs(t, err, bank.ErrAccountNotFound)

	a, err := m.Account(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("10")))
	txs, err := m.Transactions(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "t1", txs[0].ID)

	// 回傳值為拷貝，修改不影響內部狀態
	txs[0].ID = "mutated"
	again, err := m.Transactions(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "t1", again[0].ID)
}

func TestMemoryPersistFailureReverts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m, err := NewMemory(filepath.Join(dir, "data.json"))
	require.NoError(t, err)
	require.NoError(t, m.CreateAccount(ctx, account("a1", "alice")))

	// 快照目錄不存在時寫入失敗
	m.path = filepath.Join(dir, "missing", "data.json")

	err = m.Commit(ctx, bank.Commit{
		Entry:    deposit("t1", "a1", "10"),
		Expected: decimal.Zero,
		Balance:  decimal.RequireFromString("10"),
	})
	require.Error(t, err)
	assert.Error(t, m.CreateAccount(ctx, account("a2", "alice")))

	a, err := m.Account(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a.Balance.IsZero())
	txs, err := m.Transactions(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, txs)
	_, err = m.Account(ctx, "a2")
	assert.ErrorIs(t, err, bank.ErrAccountNotFound)
	as, err := m.Accounts(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, as, 1)
}

func TestMemorySnapshotRestore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")

	m, err := NewMemory(path)
	require.NoError(t, err)
	require.NoError(t, m.CreateAccount(ctx, account("a1", "alice")))
	require.NoError(t, m.CreateAccount(ctx, account("a2", "bob")))
	require.NoError(t, m.Commit(ctx, bank.Commit{
		Entry:    deposit("t1", "a1", "12.34"),
		Expected: decimal.Zero,
		Balance:  decimal.RequireFromString("12.34"),
	}))
	require.NoError(t, m.Close())

	reopened, err := NewMemory(path)
	require.NoError(t, err)
	assert.Equal(t, m.Snapshot().Accounts, reopened.Snapshot().Accounts)
	assert.Equal(t, m.Snapshot().Transactions, reopened.Snapshot().Transactions)

	a, err := reopened.Account(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("12.34")))
	txs, err := reopened.Transactions(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, bank.Deposit, txs[0].Type)
}

func TestMemoryRestoreRejectsBadSnapshot(t *testing.T) {
	m, err := NewMemory("")
	require.NoError(t, err)
	require.NoError(t, m.CreateAccount(context.Background(), account("keep", "alice")))

	err = m.Restore(Snapshot{Accounts: []PersistAccount{{ID: "x", Balance: "not-a-number"}}})
	assert.Error(t, err)
	err = m.Restore(Snapshot{Transactions: []PersistTransaction{{ID: "t", AccountID: "ghost", Amount: "1"}}})
	assert.Error(t, err)

	_, err = m.Account(context.Background(), "keep")
	assert.NoError(t, err, "state unchanged after failed restore")
}

func TestMemoryRestoreChecksLedgerInvariants(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	acct := func(id, balance string) PersistAccount {
		return PersistAccount{ID: id, Owner: "alice", Currency: "USD", Balance: balance, CreatedAt: created}
	}
	tx := func(id, typ, amount string) PersistTransaction {
		return PersistTransaction{ID: id, AccountID: "a1", Type: typ, Amount: amount, CreatedAt: created}
	}

	bad := map[string]Snapshot{
		"duplicate account id": {Accounts: []PersistAccount{acct("a1", "0"), acct("a1", "0")}},
		"invalid currency":     {Accounts: []PersistAccount{{ID: "a1", Currency: "GBP", Balance: "0"}}},
		"invalid type": {
			Accounts:     []PersistAccount{acct("a1", "5")},
			Transactions: []PersistTransaction{tx("t1", "Refund", "5")},
		},
		"balance differs from ledger": {
			Accounts:     []PersistAccount{acct("a1", "100")},
			Transactions: []PersistTransaction{tx("t1", "Deposit", "10")},
		},
		"balance without entries": {Accounts: []PersistAccount{acct("a1", "3")}},
		"negative balance": {
			Accounts:     []PersistAccount{acct("a1", "-5")},
			Transactions: []PersistTransaction{tx("t1", "Transfer", "5")},
		},
		"goes negative midway": {
			Accounts: []PersistAccount{acct("a1", "0")},
			Transactions: []PersistTransaction{
				tx("t1", "Transfer", "5"),
				tx("t2", "Deposit", "5"),
			},
		},
	}
	for name, snap := range bad {
		t.Run(name, func(t *testing.T) {
			m, err := NewMemory("")
			require.NoError(t, err)
			assert.Error(t, m.Restore(snap))
			assert.Empty(t, m.Snapshot().Accounts, "state unchanged")
		})
	}

	m, err := NewMemory("")
	require.NoError(t, err)
	require.NoError(t, m.Restore(Snapshot{
		Accounts: []PersistAccount{acct("a1", "7.50")},
		Transactions: []PersistTransaction{
			tx("t1", "Deposit", "10"),
			tx("t2", "Transfer", "-2.5"),
		},
	}))
	a, err := m.Account(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(decimal.RequireFromString("7.5")))
}

// 不符合帳本不變量的快照檔在啟動時即被拒絕。
func TestNewMemoryRejectsInconsistentSnapshotFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, SaveSnapshot(path, Snapshot{
		Accounts: []PersistAccount{{ID: "a1", Owner: "alice", Currency: "USD", Balance: "50"}},
	}))
	_, err := NewMemory(path)
	assert.ErrorContains(t, err, "does not match ledger total")
}
