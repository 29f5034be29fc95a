// internal/storage/postgres.go
//
// Postgres 為 bank.Store 的資料庫實作（pgx 連線池）。
// Commit 在同一個資料庫交易內執行「條件式更新餘額 + 新增交易紀錄」：
// UPDATE ... WHERE balance = 預期餘額 沒有命中時即回傳 bank.ErrStaleBalance，
// 因此即使多個服務實例共用同一資料庫，每個帳戶的更新仍是線性一致的。
package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"ledger/internal/bank"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres 以 pgxpool 存取 accounts 與 transactions 兩張表。
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect 建立並驗證連線池。
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is not set")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return pool, nil
}

// NewPostgres 包裝既有的連線池；連線池的生命週期由呼叫端管理。
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate 套用內嵌的 schema migrations；沒有新版本時直接回傳 nil。
func (p *Postgres) Migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(p.pool)
	drv, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		db.Close()
		return fmt.Errorf("create migration instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return fmt.Errorf("migration failed: dirty database version %d", dirty.Version)
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// CreateAccount 新增帳戶。
func (p *Postgres) CreateAccount(ctx context.Context, a bank.Account) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO accounts (id, owner, currency, balance, created_at)
		 VALUES ($1, $2, $3, $4::numeric, $5)`,
		a.ID, a.Owner, string(a.Currency), a.Balance.String(), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Account 依 ID 讀取帳戶；ID 不是合法 UUID 時視同不存在。
func (p *Postgres) Account(ctx context.Context, id string) (bank.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return bank.Account{}, bank.ErrAccountNotFound
	}
	row := p.pool.QueryRow(ctx,
		`SELECT id::text, owner, currency, balance::text, created_at
		 FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return bank.Account{}, bank.ErrAccountNotFound
	}
	if err != nil {
		return bank.Account{}, fmt.Errorf("select account: %w", err)
	}
	return a, nil
}

// Accounts 依建立時間回傳 owner 的帳戶。
func (p *Postgres) Accounts(ctx context.Context, owner string) ([]bank.Account, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id::text, owner, currency, balance::text, created_at
		 FROM accounts WHERE owner = $1 ORDER BY created_at, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	out := make([]bank.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

// Transactions 依帳本順序（created_at, seq）回傳帳戶的交易紀錄。
func (p *Postgres) Transactions(ctx context.Context, accountID string) ([]bank.Transaction, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id::text, account_id::text, type, amount::text, created_at
		 FROM transactions WHERE account_id = $1 ORDER BY created_at, seq`, accountID)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	out := make([]bank.Transaction, 0)
	for rows.Next() {
		var (
			t          bank.Transaction
			typ, amount string
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &typ, &amount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse transaction amount: %w", err)
		}
		t.Type = bank.TxType(typ)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Commit 在單一資料庫交易內條件式更新餘額並新增交易紀錄。
func (p *Postgres) Commit(ctx context.Context, c bank.Commit) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Commit 成功後 Rollback 為 no-op

	id := c.Entry.AccountID
	tag, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = $1::numeric
		 WHERE id = $2 AND balance = $3::numeric`,
		c.Balance.String(), id, c.Expected.String(),
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check account: %w", err)
		}
		if !exists {
			return bank.ErrAccountNotFound
		}
		return bank.ErrStaleBalance
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, type, amount, created_at)
		 VALUES ($1, $2, $3, $4::numeric, $5)`,
		c.Entry.ID, id, string(c.Entry.Type), c.Entry.Amount.String(), c.Entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (bank.Account, error) {
	var (
		a                 bank.Account
		currency, balance string
	)
	if err := row.Scan(&a.ID, &a.Owner, &currency, &balance, &a.CreatedAt); err != nil {
		return bank.Account{}, err
	}
	bal, err := decimal.NewFromString(balance)
	if err != nil {
		return bank.Account{}, fmt.Errorf("parse balance: %w", err)
	}
	a.Currency = bank.Currency(currency)
	a.Balance = bal
	return a, nil
}
