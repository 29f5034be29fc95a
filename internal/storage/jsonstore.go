// internal/storage/jsonstore.go
//
// 提供 JSON 快照的讀寫。
// 採「原子寫入」：先寫入 .tmp 檔並 fsync，再以 rename() 取代原檔，
// 寫入中途失敗時原檔不會損壞。
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// LoadSnapshot 讀取指定路徑的 JSON 快照。檔案不存在時回傳 os.ErrNotExist 包裝的錯誤。
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if snap.Meta.Version > snapshotVersion {
		return snap, fmt.Errorf("snapshot %s: unsupported version %d", path, snap.Meta.Version)
	}
	return snap, nil
}

// SaveSnapshot 以原子方式寫入快照：
//  1. 設定 Meta.Storage、版本與時間戳
//  2. 寫入 path+".tmp" 並 fsync
//  3. os.Rename() 取代正式檔案
func SaveSnapshot(path string, snap Snapshot) error {
	snap.Meta.Storage = "json_snapshot"
	snap.Meta.Version = snapshotVersion
	snap.Meta.Timestamp = time.Now().UTC()
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
