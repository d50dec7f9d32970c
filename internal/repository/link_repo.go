package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"invite-link-bot/internal/models"
	"os"
	"path/filepath"

	"github.com/iancoleman/orderedmap"
)

var ErrMalformedStore = errors.New("malformed links file")

// LinkFileRepository хранит ссылки в JSON файле вида {"имя": "ссылка"}.
// Порядок ключей в файле совпадает с порядком ссылок в меню.
type LinkFileRepository struct {
	path string
}

func NewLinkFileRepository(path string) *LinkFileRepository {
	return &LinkFileRepository{path: path}
}

func (r *LinkFileRepository) Path() string {
	return r.path
}

// Load читает файл. Если файла нет, ошибка оборачивает os.ErrNotExist,
// если содержимое не разбирается - ErrMalformedStore.
func (r *LinkFileRepository) Load() ([]models.Link, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read links file: %w", err)
	}

	links, err := decodeLinks(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedStore, err)
	}

	return links, nil
}

// Save перезаписывает файл целиком. Запись идет через временный файл,
// чтобы упавший процесс не оставил файл наполовину записанным.
func (r *LinkFileRepository) Save(links []models.Link) error {
	data, err := encodeLinks(links)
	if err != nil {
		return fmt.Errorf("failed to encode links: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create links dir: %w", err)
		}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write links file: %w", err)
	}

	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace links file: %w", err)
	}

	return nil
}

// encodeLinks пишет ссылки JSON объектом с отступом в два пробела.
// HTML и не-ASCII символы остаются как есть, чтобы файл было удобно править руками.
func encodeLinks(links []models.Link) ([]byte, error) {
	doc := orderedmap.New()
	doc.SetEscapeHTML(false)
	for _, link := range links {
		doc.Set(link.Name, link.URL)
	}

	compact, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// decodeLinks разбирает JSON объект с сохранением порядка ключей.
// При повторном ключе побеждает последнее вхождение, и по значению, и по месту.
func decodeLinks(data []byte) ([]models.Link, error) {
	doc := orderedmap.New()
	if err := doc.UnmarshalJSON(data); err != nil {
		return nil, err
	}

	links := make([]models.Link, 0, len(doc.Keys()))
	for _, name := range doc.Keys() {
		value, _ := doc.Get(name)
		url, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("value for %q is not a string", name)
		}
		links = append(links, models.Link{Name: name, URL: url})
	}

	return links, nil
}
