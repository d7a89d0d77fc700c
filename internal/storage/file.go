package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore хранит значения в одном JSON-файле и записывает каждое
// изменение сразу на диск. Чтение после записи возвращает записанное
// значение без промежуточной буферизации.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// NewFileStore открывает хранилище по указанному пути. Если файл
// существует, его содержимое загружается; повреждённый файл считается
// пустым хранилищем.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read storage file: %w", err)
	}

	if err := json.Unmarshal(data, &s.values); err != nil {
		s.values = make(map[string]string)
	}

	return s, nil
}

// Set сохраняет значение по ключу и записывает файл на диск.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.flush()
}

// Get возвращает значение по ключу и признак его наличия.
func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	return v, ok, nil
}

// Remove удаляет значение по ключу и записывает файл на диск.
func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return s.flush()
}

// RemoveMany удаляет значения по всем перечисленным ключам одной записью на диск.
func (s *FileStore) RemoveMany(keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.values, k)
	}
	return s.flush()
}

func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal storage: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write storage file: %w", err)
	}
	return nil
}
