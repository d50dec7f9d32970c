package service

import (
	"errors"
	"fmt"
	"invite-link-bot/internal/metrics"
	"invite-link-bot/internal/models"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Telegram ограничивает callback_data 64 байтами, а кнопка ссылки шлет "link_<имя>"
const (
	LinkCallbackPrefix = "link_"
	maxCallbackData    = 64
)

// LinkStore - хранилище, из которого загружается и куда сохраняется реестр
type LinkStore interface {
	Load() ([]models.Link, error)
	Save(links []models.Link) error
}

// LinkService - реестр ссылок в памяти, синхронизированный с файлом.
// Каждое изменение сразу сохраняется; ошибка сохранения только логируется,
// и до следующей удачной записи источником правды остается память.
type LinkService struct {
	store LinkStore

	mu    sync.RWMutex
	links []models.Link
	index map[string]int
}

// NewLinkService создает реестр и сразу загружает ссылки из хранилища
func NewLinkService(store LinkStore) *LinkService {
	s := &LinkService{store: store}
	s.setLinks(s.load())
	return s
}

// load читает хранилище. Если файла нет - записывает и возвращает набор по умолчанию,
// если файл битый - возвращает набор по умолчанию, не трогая файл.
func (s *LinkService) load() []models.Link {
	links, err := s.store.Load()
	if err == nil {
		logrus.WithField("count", len(links)).Info("Links loaded")
		return links
	}

	defaults := models.DefaultLinks()

	if errors.Is(err, os.ErrNotExist) {
		logrus.Info("Links file not found, creating it with default links")
		if err := s.store.Save(defaults); err != nil {
			logrus.WithError(err).Error("Failed to save default links")
		}
		return defaults
	}

	logrus.WithError(err).Error("Failed to load links, falling back to default links")
	return defaults
}

func (s *LinkService) setLinks(links []models.Link) {
	s.links = links
	s.index = make(map[string]int, len(links))
	for i, link := range links {
		s.index[link.Name] = i
	}
	metrics.SetRegistryLinks(len(links))
}

// persist должен вызываться под блокировкой на запись
func (s *LinkService) persist() {
	metrics.SetRegistryLinks(len(s.links))

	if err := s.store.Save(s.snapshot()); err != nil {
		logrus.WithError(err).Error("Failed to persist links, in-memory state kept")
	}
}

func (s *LinkService) snapshot() []models.Link {
	out := make([]models.Link, len(s.links))
	copy(out, s.links)
	return out
}

// ValidateName проверяет имя ссылки: непустое и влезает в callback_data кнопки
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", models.ErrInvalidName)
	}
	if len(LinkCallbackPrefix)+len(name) > maxCallbackData {
		return fmt.Errorf("%w: name is longer than %d bytes", models.ErrInvalidName, maxCallbackData-len(LinkCallbackPrefix))
	}
	return nil
}

// Add добавляет новую ссылку. Существующее имя не перезаписывается,
// для этого есть Update.
func (s *LinkService) Add(name, url string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if !models.ValidURL(url) {
		return models.ErrInvalidURL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[name]; exists {
		return models.ErrLinkExists
	}

	s.index[name] = len(s.links)
	s.links = append(s.links, models.Link{Name: name, URL: url})
	s.persist()

	return nil
}

// Update меняет ссылку у существующего имени, позиция в меню сохраняется
func (s *LinkService) Update(name, url string) error {
	if !models.ValidURL(url) {
		return models.ErrInvalidURL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, exists := s.index[name]
	if !exists {
		return models.ErrLinkNotFound
	}

	s.links[i].URL = url
	s.persist()

	return nil
}

// Remove удаляет ссылку и возвращает удаленную запись
func (s *LinkService) Remove(name string) (models.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, exists := s.index[name]
	if !exists {
		return models.Link{}, models.ErrLinkNotFound
	}

	removed := s.links[i]
	links := make([]models.Link, 0, len(s.links)-1)
	links = append(links, s.links[:i]...)
	links = append(links, s.links[i+1:]...)
	s.setLinks(links)
	s.persist()

	return removed, nil
}

// Get ищет ссылку по имени
func (s *LinkService) Get(name string) (models.Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, exists := s.index[name]
	if !exists {
		return models.Link{}, false
	}
	return s.links[i], true
}

// List возвращает копию всех ссылок в порядке добавления
func (s *LinkService) List() []models.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot()
}

func (s *LinkService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.links)
}

// Reload выбрасывает состояние из памяти и заново читает хранилище
func (s *LinkService) Reload() (oldCount, newCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldCount = len(s.links)
	s.setLinks(s.load())
	newCount = len(s.links)

	logrus.WithFields(logrus.Fields{
		"old_count": oldCount,
		"new_count": newCount,
	}).Info("Links reloaded")

	return oldCount, newCount
}
