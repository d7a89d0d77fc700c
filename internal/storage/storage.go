// Package storage предоставляет долговременное строковое key-value хранилище
// для полей сеанса клиента.
package storage

import "sync"

// Store описывает контракт долговременного key-value хранилища.
// Атомарность пакетного удаления не гарантируется: RemoveMany может
// удалить часть ключей и вернуть ошибку.
type Store interface {
	Set(key, value string) error
	Get(key string) (string, bool, error)
	Remove(key string) error
	RemoveMany(keys []string) error
}

// MemStore хранит значения в памяти. Используется в тестах и как
// эфемерное хранилище без сохранения между запусками.
type MemStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemStore создаёт пустое хранилище в памяти.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string]string)}
}

// Set сохраняет значение по ключу.
func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Get возвращает значение по ключу и признак его наличия.
func (s *MemStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Remove удаляет значение по ключу. Удаление отсутствующего ключа не является ошибкой.
func (s *MemStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// RemoveMany удаляет значения по всем перечисленным ключам.
func (s *MemStore) RemoveMany(keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}
