// Package notice реализует файловое хранилище объявления.
package notice

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mealkyway/milkyway-server/internal/model"
)

const defaultContent = "Welcome to Milky Way! 🥛 Fresh milk delivery available daily to all RU and RMC halls!"

// Store хранит единственное объявление в JSON-файле. Записи не сериализуются:
// при конкурентной записи побеждает последняя.
type Store struct {
	path string
}

// NewStore создаёт хранилище и записывает объявление по умолчанию, если файла ещё нет.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create notice dir: %w", err)
	}

	s := &Store{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.Set(defaultContent); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Get возвращает текущий текст объявления.
func (s *Store) Get() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read notice: %w", err)
	}

	var n model.Notice
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("parse notice: %w", err)
	}

	return n.Content, nil
}

// Set перезаписывает объявление указанным текстом.
func (s *Store) Set(content string) error {
	n := model.Notice{
		Content:   content,
		UpdatedAt: time.Now(),
	}

	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write notice: %w", err)
	}

	return nil
}
