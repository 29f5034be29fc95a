// internal/bank/locks.go

package bank

import "sync"

// accountLocks 為每個帳戶提供獨立的互斥鎖，不同帳戶的提交互不阻塞。
// 帳戶不會被刪除，因此鎖建立後不回收；數量上限即帳戶數。
type accountLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{m: make(map[string]*sync.Mutex)}
}

// lock 取得 id 對應的鎖並回傳解鎖函式。
func (l *accountLocks) lock(id string) func() {
	l.mu.Lock()
	m, ok := l.m[id]
	if !ok {
		m = &sync.Mutex{}
		l.m[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
