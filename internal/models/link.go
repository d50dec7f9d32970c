package models

import (
	"errors"
	"strings"
)

// Префиксы, с которых может начинаться ссылка
var AllowedURLPrefixes = []string{"http://", "https://", "t.me/"}

var (
	ErrLinkExists   = errors.New("link already exists")
	ErrLinkNotFound = errors.New("link not found")
	ErrInvalidURL   = errors.New("invalid link url")
	ErrInvalidName  = errors.New("invalid link name")
)

// Link - одна запись меню: имя кнопки и ссылка
type Link struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ValidURL проверяет, что ссылка начинается с одного из разрешенных префиксов
func ValidURL(url string) bool {
	for _, prefix := range AllowedURLPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// DefaultLinks возвращает набор ссылок, которым заполняется пустое хранилище
func DefaultLinks() []Link {
	return []Link{
		{Name: "Link 1", URL: "https://t.me/addlist/k_I9pFnlDkEyYjVl"},
		{Name: "Link 2", URL: "https://t.me/pinaywalkgirls"},
		{Name: "Link 3", URL: "https://t.me/+9XenMPwkQAQ2Nzll"},
		{Name: "Link 4", URL: "https://t.me/+LA6xn67ruvViN2Y1"},
		{Name: "Link 5", URL: "https://t.me/+c08qfoR41GY0YTU9"},
		{Name: "Link 6", URL: "https://t.me/downpinay"},
		{Name: "Link 7", URL: "https://t.me/+CrP4i74WskwxMjdl"},
		{Name: "Link 8", URL: "https://t.me/+na36O3XeatpmZDc1"},
		{Name: "Link 9", URL: "https://t.me/+I691GXtd7U44MTdl"},
		{Name: "Link 10", URL: "https://t.me/+J55Fxj2Ew6xkMWY1"},
		{Name: "Link 11", URL: "https://t.me/+ziG83SRhsp9iNjM1"},
		{Name: "Link 12", URL: "http://t.me/katorsxbot/atabs"},
		{Name: "Link 13", URL: "https://t.me/+MTyth4gVAXxmNDJl"},
		{Name: "Link 14", URL: "http://t.me/pinayatabs18bot/librenood"},
		{Name: "Link 15", URL: "https://t.me/batangmalandibot?startapp=WatchNow"},
		{Name: "Link 16", URL: "https://t.me/pnytbsvideosbot?startapp=watchnow"},
		{Name: "Link 17", URL: "https://t.me/+qzH8LRQwLYhjYjA1"},
	}
}
