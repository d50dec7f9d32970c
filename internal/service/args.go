package service

import (
	"errors"
	"fmt"
	"html"
	"invite-link-bot/internal/models"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength - предел длины одного сообщения со списком ссылок
const MaxMessageLength = 4000

var ErrUsage = errors.New("invalid command arguments")

var quotedArgsRe = regexp.MustCompile(`^"([^"]+)"\s+(\S+)$`)

// ParseLinkArgs разбирает аргументы /addlink и /updatelink.
// Поддерживаются две формы:
//
//	"Имя с пробелами" https://...
//	Имя https://...
func ParseLinkArgs(args string) (name, url string, err error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return "", "", ErrUsage
	}

	if strings.HasPrefix(args, `"`) {
		m := quotedArgsRe.FindStringSubmatch(args)
		if m == nil {
			return "", "", ErrUsage
		}
		return m[1], m[2], nil
	}

	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "", "", ErrUsage
	}

	return parts[0], parts[1], nil
}

// ParseRemoveArg возвращает имя ссылки для /removelink, снимая кавычки вокруг него
func ParseRemoveArg(args string) (string, error) {
	name := strings.TrimSpace(args)
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		name = strings.TrimSpace(name[1 : len(name)-1])
	}

	if name == "" {
		return "", ErrUsage
	}

	return name, nil
}

// ChunkText режет текст на куски не длиннее limit символов, сохраняя порядок.
// Резать старается по переводам строк, а слишком длинные строки режет по символам,
// не разрывая HTML сущности и теги: куски уходят с разметкой HTML.
func ChunkText(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		lineLen := utf8.RuneCountInString(line)

		// Строка не влезает даже в пустой кусок - режем ее на части
		if lineLen > limit {
			flush()
			runes := []rune(line)
			for len(runes) > limit {
				cut := htmlSafeCut(runes, limit)
				chunks = append(chunks, string(runes[:cut]))
				runes = runes[cut:]
			}
			current.WriteString(string(runes))
			currentLen = len(runes)
			continue
		}

		sep := 0
		if currentLen > 0 {
			sep = 1
		}
		if currentLen+sep+lineLen > limit {
			flush()
			sep = 0
		}

		if sep == 1 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
		currentLen += sep + lineLen
	}
	flush()

	return chunks
}

// Дальше этого назад не ищем: сущности и наши теги короче
const maxMarkupLookback = 64

// htmlSafeCut возвращает место разреза не дальше limit, которое не попадает
// внутрь сущности вроде &amp; или тега вроде <b>
func htmlSafeCut(runes []rune, limit int) int {
	for i := limit - 1; i > 0 && i >= limit-maxMarkupLookback; i-- {
		switch runes[i] {
		case ';', '>':
			return limit
		case '&', '<':
			return i
		}
	}
	return limit
}

// FormatLinkList форматирует список ссылок для /listlinks (HTML разметка)
func FormatLinkList(links []models.Link) string {
	if len(links) == 0 {
		return "No links available"
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("📋 <b>Links (%d)</b>", len(links)))
	lines = append(lines, "")

	for i, link := range links {
		lines = append(lines, fmt.Sprintf("%d. <b>%s</b>", i+1, html.EscapeString(link.Name)))
		lines = append(lines, "   "+html.EscapeString(link.URL))
	}

	return strings.Join(lines, "\n")
}
