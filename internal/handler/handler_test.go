package handler

import (
	"context"
	"fmt"
	"invite-link-bot/internal/config"
	"invite-link-bot/internal/repository"
	"invite-link-bot/internal/scheduler"
	"invite-link-bot/internal/service"
	"invite-link-bot/pkg/telegram"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
)

const (
	adminID int64 = 42
	userID  int64 = 7
)

// fakeBot записывает все вызовы Bot API
type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sent = append(b.sent, c)
	b.nextID++

	var chatID int64
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		chatID = m.ChatID
	case tgbotapi.EditMessageTextConfig:
		chatID = m.ChatID
	}

	return tgbotapi.Message{MessageID: 1000 + b.nextID, Chat: &tgbotapi.Chat{ID: chatID}}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) messages() []tgbotapi.MessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []tgbotapi.MessageConfig
	for _, c := range b.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (b *fakeBot) edits() []tgbotapi.EditMessageTextConfig {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []tgbotapi.EditMessageTextConfig
	for _, c := range b.sent {
		if m, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (b *fakeBot) toasts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for _, c := range b.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

func (b *fakeBot) deletes() []tgbotapi.DeleteMessageConfig {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []tgbotapi.DeleteMessageConfig
	for _, c := range b.requests {
		if d, ok := c.(tgbotapi.DeleteMessageConfig); ok {
			out = append(out, d)
		}
	}
	return out
}

type scheduledDeletion struct {
	chatID    int64
	messageID int
	delay     time.Duration
}

type fakeScheduler struct {
	scheduled []scheduledDeletion
}

func (s *fakeScheduler) Schedule(chatID int64, messageID int, delay time.Duration) (string, error) {
	s.scheduled = append(s.scheduled, scheduledDeletion{chatID, messageID, delay})
	return fmt.Sprintf("task-%d", len(s.scheduled)), nil
}

func (s *fakeScheduler) Pending() int {
	return len(s.scheduled)
}

type testEnv struct {
	handler   *Handler
	bot       *fakeBot
	scheduler *fakeScheduler
	links     *service.LinkService
	path      string
}

// newTestEnv поднимает обработчик поверх файла ссылок; пустой content - файла нет
func newTestEnv(t *testing.T, content string) *testEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "links.json")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	bot := &fakeBot{}
	sched := &fakeScheduler{}
	links := service.NewLinkService(repository.NewLinkFileRepository(path))
	cfg := &config.BotConfig{AdminID: adminID, AutoDeleteDelay: 15 * time.Second}

	return &testEnv{
		handler:   NewHandler(bot, links, sched, cfg),
		bot:       bot,
		scheduler: sched,
		links:     links,
		path:      path,
	}
}

func commandUpdate(from int64, text string) tgbotapi.Update {
	cmdLen := strings.IndexByte(text, ' ')
	if cmdLen < 0 {
		cmdLen = len(text)
	}

	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: from, FirstName: "Ann", UserName: "ann"},
			Chat:      &tgbotapi.Chat{ID: from},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
		},
	}
}

func callbackUpdate(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-" + data,
			From: &tgbotapi.User{ID: from, FirstName: "Ann"},
			Message: &tgbotapi.Message{
				MessageID: 500,
				Chat:      &tgbotapi.Chat{ID: from},
			},
			Data: data,
		},
	}
}

func (e *testEnv) run(updates ...tgbotapi.Update) {
	for _, u := range updates {
		e.handler.HandleUpdate(context.Background(), u)
	}
}

func (e *testEnv) lastText(t *testing.T) string {
	t.Helper()
	msgs := e.bot.messages()
	if len(msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return msgs[len(msgs)-1].Text
}

func TestStartShowsLinkMenu(t *testing.T) {
	env := newTestEnv(t, "")

	env.run(commandUpdate(userID, "/start"))

	msgs := env.bot.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	markup, ok := msgs[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline keyboard, got %T", msgs[0].ReplyMarkup)
	}

	// 17 ссылок по две в ряд + ряд со справкой
	if len(markup.InlineKeyboard) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(markup.InlineKeyboard))
	}

	first := markup.InlineKeyboard[0][0]
	if first.Text != "Link 1" || first.CallbackData == nil || *first.CallbackData != "link_Link 1" {
		t.Fatalf("unexpected first button %+v", first)
	}

	bottom := markup.InlineKeyboard[len(markup.InlineKeyboard)-1]
	if len(bottom) != 1 || *bottom[0].CallbackData != cbHelp {
		t.Fatalf("non-admin bottom row should only have help, got %+v", bottom)
	}
}

func TestStartShowsAdminButtonToAdmin(t *testing.T) {
	env := newTestEnv(t, "")

	env.run(commandUpdate(adminID, "/start"))

	markup := env.bot.messages()[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	bottom := markup.InlineKeyboard[len(markup.InlineKeyboard)-1]
	if len(bottom) != 2 || *bottom[0].CallbackData != cbAdminMenu || *bottom[1].CallbackData != cbHelp {
		t.Fatalf("unexpected admin bottom row %+v", bottom)
	}
}

func TestHelpMentionsDelay(t *testing.T) {
	env := newTestEnv(t, "")

	env.run(commandUpdate(userID, "/help"))
	text := env.lastText(t)
	if !strings.Contains(text, "15 seconds") {
		t.Fatalf("help text does not mention delay: %q", text)
	}
	if strings.Contains(text, "/addlink") {
		t.Fatalf("admin commands shown to regular user")
	}

	env.run(commandUpdate(adminID, "/help"))
	if !strings.Contains(env.lastText(t), "/addlink") {
		t.Fatalf("admin commands missing for admin")
	}
}

func TestAdminCommandsDeniedForRegularUser(t *testing.T) {
	env := newTestEnv(t, "")
	before, err := os.ReadFile(env.path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	commands := []string{
		"/stats",
		`/addlink "New" https://t.me/new`,
		`/updatelink "Link 1" https://t.me/changed`,
		`/removelink "Link 1"`,
		"/listlinks",
		"/reloadlinks",
	}

	for _, cmd := range commands {
		env.run(commandUpdate(userID, cmd))
		if got := env.lastText(t); got != accessDeniedText {
			t.Errorf("%s: expected access denied, got %q", cmd, got)
		}
	}

	after, err := os.ReadFile(env.path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("backing file changed after denied commands")
	}
	if env.links.Count() != 17 {
		t.Fatalf("registry changed: %d links", env.links.Count())
	}
}

func TestAddAndRemoveLinkScenario(t *testing.T) {
	env := newTestEnv(t, "")
	size := env.links.Count()

	env.run(commandUpdate(adminID, `/addlink "Test" https://t.me/test`))
	if !strings.Contains(env.lastText(t), "added") {
		t.Fatalf("unexpected reply %q", env.lastText(t))
	}
	if env.links.Count() != size+1 {
		t.Fatalf("expected %d links, got %d", size+1, env.links.Count())
	}
	if link, ok := env.links.Get("Test"); !ok || link.URL != "https://t.me/test" {
		t.Fatalf("Test link missing: %+v", link)
	}

	env.run(commandUpdate(adminID, `/removelink "Test"`))
	if !strings.Contains(env.lastText(t), "removed") {
		t.Fatalf("unexpected reply %q", env.lastText(t))
	}
	if !strings.Contains(env.lastText(t), "https://t.me/test") {
		t.Fatalf("removed url not confirmed: %q", env.lastText(t))
	}
	if env.links.Count() != size {
		t.Fatalf("expected %d links, got %d", size, env.links.Count())
	}
}

func TestAddLinkErrors(t *testing.T) {
	env := newTestEnv(t, `{"Test": "https://t.me/test"}`)

	cases := map[string]string{
		"/addlink":                             "Usage",
		`/addlink "Unclosed https://t.me/x`:    "Usage",
		`/addlink Two Words https://t.me/x`:    "Usage",
		`/addlink "Test" https://t.me/other`:   "already exists",
		`/addlink "Bad" ftp://example.com`:     "Invalid URL",
		`/updatelink "Missing" https://t.me/x`: "not found",
		`/updatelink "Test" example.com`:       "Invalid URL",
		"/updatelink":                          "Usage",
		"/removelink":                          "Usage",
		`/removelink "Missing"`:                "not found",
	}

	for cmd, want := range cases {
		env.run(commandUpdate(adminID, cmd))
		if got := env.lastText(t); !strings.Contains(got, want) {
			t.Errorf("%s: expected reply containing %q, got %q", cmd, want, got)
		}
	}

	if link, _ := env.links.Get("Test"); link.URL != "https://t.me/test" || env.links.Count() != 1 {
		t.Fatalf("registry changed by failing commands: %+v", env.links.List())
	}
}

func TestUpdateLinkUnquoted(t *testing.T) {
	env := newTestEnv(t, `{"Test": "https://t.me/test"}`)

	env.run(commandUpdate(adminID, "/updatelink Test t.me/changed"))

	if link, _ := env.links.Get("Test"); link.URL != "t.me/changed" {
		t.Fatalf("url not updated: %+v", link)
	}
}

func TestListLinksEmpty(t *testing.T) {
	env := newTestEnv(t, "{}")

	env.run(commandUpdate(adminID, "/listlinks"))

	msgs := env.bot.messages()
	if len(msgs) != 1 || msgs[0].Text != "No links available" {
		t.Fatalf("expected single 'No links available' reply, got %+v", msgs)
	}
}

func TestListLinksIsChunked(t *testing.T) {
	env := newTestEnv(t, "{}")

	for i := 0; i < 40; i++ {
		url := "https://t.me/" + strings.Repeat("x", 150) + fmt.Sprint(i)
		if err := env.links.Add(fmt.Sprintf("Link %d", i), url); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	env.run(commandUpdate(adminID, "/listlinks"))

	msgs := env.bot.messages()
	if len(msgs) < 2 {
		t.Fatalf("expected several chunks, got %d", len(msgs))
	}
	for i, m := range msgs {
		if n := utf8.RuneCountInString(m.Text); n > service.MaxMessageLength {
			t.Fatalf("chunk %d is %d characters long", i, n)
		}
	}
	if !strings.Contains(msgs[0].Text, "Link 0") || !strings.Contains(msgs[len(msgs)-1].Text, "Link 39") {
		t.Fatal("chunks are out of order")
	}
}

func TestReloadLinksCommand(t *testing.T) {
	env := newTestEnv(t, "")

	if err := os.WriteFile(env.path, []byte(`{"Only": "https://t.me/only"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	env.run(commandUpdate(adminID, "/reloadlinks"))

	text := env.lastText(t)
	if !strings.Contains(text, "Before: 17") || !strings.Contains(text, "Now: 1") {
		t.Fatalf("unexpected reply %q", text)
	}
	if _, ok := env.links.Get("Only"); !ok {
		t.Fatal("reloaded link missing")
	}
}

func TestStatsForAdmin(t *testing.T) {
	env := newTestEnv(t, "")

	env.run(commandUpdate(adminID, "/stats"))

	text := env.lastText(t)
	for _, want := range []string{"Total links: 17", "Auto-delete delay: 15 seconds", "• Link 17"} {
		if !strings.Contains(text, want) {
			t.Errorf("stats %q missing %q", text, want)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	env := newTestEnv(t, "")

	env.run(commandUpdate(userID, "/nope"))

	if !strings.Contains(env.lastText(t), "Unknown command") {
		t.Fatalf("unexpected reply %q", env.lastText(t))
	}
}

func TestPlainTextIgnored(t *testing.T) {
	env := newTestEnv(t, "")

	env.run(tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: "hello",
	}})

	if len(env.bot.sent) != 0 {
		t.Fatalf("expected no reply, got %d", len(env.bot.sent))
	}
}

func TestLinkCallbackSchedulesDeletion(t *testing.T) {
	env := newTestEnv(t, "")

	env.run(callbackUpdate(userID, "link_Link 1"))

	msgs := env.bot.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "https://t.me/addlist/k_I9pFnlDkEyYjVl") {
		t.Fatalf("url missing from message %q", msgs[0].Text)
	}

	if len(env.scheduler.scheduled) != 1 {
		t.Fatalf("expected 1 scheduled deletion, got %d", len(env.scheduler.scheduled))
	}
	got := env.scheduler.scheduled[0]
	if got.chatID != userID || got.messageID != 1001 || got.delay != 15*time.Second {
		t.Fatalf("unexpected scheduled deletion %+v", got)
	}

	toasts := env.bot.toasts()
	if len(toasts) != 1 || toasts[0] != "✅ Link 1 sent! Check your chat." {
		t.Fatalf("unexpected toasts %q", toasts)
	}
}

func TestLinkCallbackUnknownLink(t *testing.T) {
	env := newTestEnv(t, "")

	env.run(callbackUpdate(userID, "link_Nope"))

	if len(env.bot.messages()) != 0 {
		t.Fatal("no message expected for unknown link")
	}
	if toasts := env.bot.toasts(); len(toasts) != 1 || toasts[0] != "❌ Link not found!" {
		t.Fatalf("unexpected toasts %q", toasts)
	}
}

func TestUnknownCallback(t *testing.T) {
	env := newTestEnv(t, "")

	env.run(callbackUpdate(userID, "something_else"))

	if toasts := env.bot.toasts(); len(toasts) != 1 || toasts[0] != "❌ Unknown command!" {
		t.Fatalf("unexpected toasts %q", toasts)
	}
}

func TestHelpCallback(t *testing.T) {
	env := newTestEnv(t, "")

	env.run(callbackUpdate(userID, cbHelp))

	if !strings.Contains(env.lastText(t), "Bot Help") {
		t.Fatalf("help not sent: %q", env.lastText(t))
	}
	if toasts := env.bot.toasts(); len(toasts) != 1 || toasts[0] != "Help information sent!" {
		t.Fatalf("unexpected toasts %q", toasts)
	}
}

func TestAdminCallbacksDeniedForRegularUser(t *testing.T) {
	env := newTestEnv(t, "")
	if err := os.WriteFile(env.path, []byte(`{"Only": "https://t.me/only"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, data := range []string{cbAdminMenu, cbAdminStats, cbAdminReload} {
		env.run(callbackUpdate(userID, data))
	}

	if len(env.bot.edits()) != 0 || len(env.bot.messages()) != 0 {
		t.Fatal("denied callbacks must not change messages")
	}
	for _, toast := range env.bot.toasts() {
		if toast != accessDeniedText {
			t.Fatalf("unexpected toast %q", toast)
		}
	}
	// admin_reload не должен был перечитать файл
	if env.links.Count() != 17 {
		t.Fatalf("registry reloaded by non-admin: %d links", env.links.Count())
	}
}

func TestAdminPanelNavigation(t *testing.T) {
	env := newTestEnv(t, "")

	env.run(callbackUpdate(adminID, cbAdminMenu))
	edits := env.bot.edits()
	if len(edits) != 1 || !strings.Contains(edits[0].Text, "Admin panel") {
		t.Fatalf("admin panel not shown: %+v", edits)
	}
	if edits[0].MessageID != 500 {
		t.Fatalf("edited wrong message %d", edits[0].MessageID)
	}

	env.run(callbackUpdate(adminID, cbAdminStats))
	edits = env.bot.edits()
	if !strings.Contains(edits[len(edits)-1].Text, "Total links: 17") {
		t.Fatalf("stats not shown: %q", edits[len(edits)-1].Text)
	}

	env.run(callbackUpdate(userID, cbBackToMenu))
	edits = env.bot.edits()
	last := edits[len(edits)-1]
	if !strings.Contains(last.Text, "Welcome") || last.ReplyMarkup == nil || len(last.ReplyMarkup.InlineKeyboard) != 10 {
		t.Fatalf("menu not restored: %+v", last)
	}
}

func TestAdminReloadCallback(t *testing.T) {
	env := newTestEnv(t, "")
	if err := os.WriteFile(env.path, []byte(`{"Only": "https://t.me/only"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	env.run(callbackUpdate(adminID, cbAdminReload))

	toasts := env.bot.toasts()
	if len(toasts) != 1 || toasts[0] != "🔄 Links reloaded: 17 → 1" {
		t.Fatalf("unexpected toasts %q", toasts)
	}
}

func TestHandleUpdatesStopsWhenChannelClosed(t *testing.T) {
	env := newTestEnv(t, "")

	updates := make(chan tgbotapi.Update, 1)
	updates <- commandUpdate(userID, "/help")
	close(updates)

	if err := env.handler.HandleUpdates(context.Background(), updates); err != ErrUpdatesClosed {
		t.Fatalf("expected ErrUpdatesClosed, got %v", err)
	}
	if len(env.bot.messages()) != 1 {
		t.Fatal("queued update was not handled")
	}
}

func TestHandleUpdatesStopsOnContextCancel(t *testing.T) {
	env := newTestEnv(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := env.handler.HandleUpdates(ctx, make(chan tgbotapi.Update)); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// Полный путь: кнопка ссылки -> сообщение -> удаление через настоящий планировщик
// после задержки из конфига, время управляется фейковыми часами.
func TestLinkMessageDeletedAfterDelay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.json")
	bot := &fakeBot{}
	clock := clockwork.NewFakeClock()

	sched := scheduler.NewDeleteScheduler(telegram.NewMessageDeleter(bot), scheduler.Config{
		DefaultDelay: 15 * time.Second,
		Clock:        clock,
	})
	sched.Start(context.Background())
	defer sched.Stop(context.Background())

	cfg := &config.BotConfig{AdminID: adminID, AutoDeleteDelay: 15 * time.Second}
	h := NewHandler(bot, service.NewLinkService(repository.NewLinkFileRepository(path)), sched, cfg)

	h.HandleUpdate(context.Background(), callbackUpdate(userID, "link_Link 1"))

	msgs := bot.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "https://t.me/addlist/k_I9pFnlDkEyYjVl") {
		t.Fatalf("link message not sent: %+v", msgs)
	}

	clock.BlockUntil(1)
	clock.Advance(14 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if len(bot.deletes()) != 0 {
		t.Fatal("message deleted before the delay elapsed")
	}

	clock.Advance(time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for len(bot.deletes()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	deletes := bot.deletes()
	if len(deletes) != 1 {
		t.Fatalf("expected 1 deletion, got %d", len(deletes))
	}
	if deletes[0].ChatID != userID || deletes[0].MessageID != 1001 {
		t.Fatalf("deleted wrong message %+v", deletes[0])
	}
}

type chanSource struct {
	updates chan tgbotapi.Update
}

func (s *chanSource) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return s.updates
}

func (s *chanSource) StopReceivingUpdates() {}

// После закрытия канала обновлений следующая попытка получает новый канал
// и продолжает отвечать на команды.
func TestPollingRestartsWithFreshUpdates(t *testing.T) {
	env := newTestEnv(t, "")

	closed := &chanSource{updates: make(chan tgbotapi.Update)}
	close(closed.updates)
	working := &chanSource{updates: make(chan tgbotapi.Update, 1)}
	working.updates <- commandUpdate(userID, "/help")

	sources := []*chanSource{closed, working}
	var opened int
	poller := telegram.NewPoller(func() (telegram.UpdateSource, error) {
		s := sources[opened]
		opened++
		return s, nil
	}, tgbotapi.NewUpdate(0))

	policy := telegram.RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 5}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- telegram.Supervise(ctx, policy, "bot polling", func(ctx context.Context) error {
			return poller.Run(ctx, env.handler.HandleUpdates)
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(env.bot.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-result; err != nil {
		t.Fatalf("polling should stop cleanly, got %v", err)
	}
	if opened != 2 {
		t.Fatalf("expected a fresh source on the second attempt, got %d opens", opened)
	}
	msgs := env.bot.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "Bot Help") {
		t.Fatalf("update from the new channel was not handled: %+v", msgs)
	}
}
