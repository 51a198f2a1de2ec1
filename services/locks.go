package services

import "sync"

// matchLocks сериализует submit/advance/complete по одному матчу внутри
// процесса (single-writer). Конкурентный доступ между процессами добирает
// SELECT ... FOR UPDATE в репозиториях.
type matchLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newMatchLocks() *matchLocks {
	return &matchLocks{locks: make(map[int]*sync.Mutex)}
}

// lock захватывает мьютекс матча и возвращает функцию освобождения.
// Мьютексы не удаляются: их число ограничено числом матчей.
func (l *matchLocks) lock(matchID int) func() {
	l.mu.Lock()
	m, ok := l.locks[matchID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[matchID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
