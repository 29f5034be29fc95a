// internal/storage/model.go
//
// 定義 JSON 快照的序列化格式。
// 此層只描述資料形狀，不涉入商業邏輯；金額一律以字串保存，避免浮點誤差。
package storage

import "time"

// Meta 為快照的中繼資料：儲存方式、結構版本與建立時間。
type Meta struct {
	Storage   string    `json:"storage"`        // 儲存類型，例如 "json_snapshot"
	Version   int       `json:"version"`        // 結構版本號
	Timestamp time.Time `json:"timestamp"`      // 快照建立時間
	Note      string    `json:"note,omitempty"` // 備註
}

// PersistAccount 為帳戶在快照中的格式。
type PersistAccount struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Currency  string    `json:"currency"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// PersistTransaction 為交易紀錄在快照中的格式，依帳本順序排列。
type PersistTransaction struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot 為整個帳本的完整快照。
type Snapshot struct {
	Meta         Meta                 `json:"_meta"`
	Accounts     []PersistAccount     `json:"accounts"`
	Transactions []PersistTransaction `json:"transactions"`
}

// snapshotVersion 為目前的快照結構版本。
const snapshotVersion = 2
