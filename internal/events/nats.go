// internal/events/nats.go
//
// Package events 在交易提交後發布帳本事件（ledger.entry）到 NATS。
// 發布屬於盡力而為：失敗只由呼叫端記錄，已提交的交易不受影響。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"ledger/internal/bank"
)

// EntryType 為帳本事件的類型名稱。
const EntryType = "ledger.entry"

// Entry is the wire format of a committed ledger entry.
type Entry struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	AccountID     string    `json:"account_id"`
	TransactionID string    `json:"transaction_id"`
	TxType        string    `json:"tx_type"`
	Amount        string    `json:"amount"`
	Balance       string    `json:"balance"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEntry 由提交結果建立事件；金額固定兩位小數。
func NewEntry(r bank.Receipt) Entry {
	return Entry{
		ID:            uuid.NewString(),
		Type:          EntryType,
		AccountID:     r.Transaction.AccountID,
		TransactionID: r.Transaction.ID,
		TxType:        string(r.Transaction.Type),
		Amount:        r.Transaction.Amount.StringFixed(bank.Scale),
		Balance:       r.Balance.StringFixed(bank.Scale),
		Currency:      string(r.Currency),
		Timestamp:     r.Transaction.CreatedAt,
	}
}

// Conn 為 Publisher 需要的 NATS 連線能力，*nats.Conn 即符合。
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher 實作 bank.Publisher。
type Publisher struct {
	conn    Conn
	subject string
}

// NewPublisher 建立發布者；subject 為空時使用 EntryType。
func NewPublisher(conn Conn, subject string) *Publisher {
	if subject == "" {
		subject = EntryType
	}
	return &Publisher{conn: conn, subject: subject}
}

// Connect 連線到 NATS，斷線時自動重連。
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("ledger"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Publish 將提交結果編碼為 JSON 並發布。
func (p *Publisher) Publish(ctx context.Context, r bank.Receipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(NewEntry(r))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}
