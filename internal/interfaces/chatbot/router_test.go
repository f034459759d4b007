package chatbot

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/evvec/ps-tracker/external/telegram"
	"github.com/evvec/ps-tracker/internal/infrastructure/repository/memory"
	"github.com/evvec/ps-tracker/internal/platform/logging"
	"github.com/evvec/ps-tracker/internal/usecase"
)

type sentMessage struct {
	chatID int64
	text   string
	opts   telegram.SendMessageOptions
}

type botFake struct {
	mu       sync.Mutex
	nextID   int64
	sent     []sentMessage
	answered []string
}

func (b *botFake) SendMessage(_ context.Context, chatID int64, text string, opts telegram.SendMessageOptions) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.sent = append(b.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return b.nextID, nil
}

func (b *botFake) RemoveReplyMarkup(context.Context, int64, int64) error {
	return nil
}

func (b *botFake) AnswerCallbackQuery(_ context.Context, callbackQueryID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answered = append(b.answered, callbackQueryID)
	return nil
}

func (b *botFake) GetUpdates(context.Context, int64) ([]telegram.Update, error) {
	return nil, nil
}

func (b *botFake) lastSent(t *testing.T) sentMessage {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		t.Fatalf("no messages sent")
	}
	return b.sent[len(b.sent)-1]
}

type statsStub struct {
	avg float64
}

func (s *statsStub) AverageScore(context.Context, string) (float64, error) { return s.avg, nil }
func (s *statsStub) LastMatchScore(context.Context, string) (float64, error) {
	return s.avg, nil
}
func (s *statsStub) ValidateID(context.Context, string) error { return nil }

func newRouterHarness(t *testing.T) (*Router, *botFake, *usecase.RosterService) {
	t.Helper()

	bot := &botFake{}
	logger := logging.NewNop()

	rosterSvc := usecase.NewRosterService(memory.NewRosterRepository(), logger)
	provider := &statsStub{avg: 42}
	scoreSvc := usecase.NewScoreService(provider, 2, logger)
	deltaSvc := usecase.NewDeltaService(logger)
	reportSvc := usecase.NewReportService(rosterSvc, scoreSvc, deltaSvc, logger)
	registrationSvc := usecase.NewRegistrationService(rosterSvc, provider, NewTelegramMessenger(bot), logger)

	return NewRouter(bot, registrationSvc, reportSvc, logger), bot, rosterSvc
}

func textUpdate(chatID, actorID int64, text string) telegram.Update {
	return telegram.Update{
		Message: &telegram.Message{
			Chat: telegram.Chat{ID: chatID},
			From: &telegram.User{ID: actorID},
			Text: text,
		},
	}
}

func TestRouterStartCommand(t *testing.T) {
	t.Parallel()

	router, bot, _ := newRouterHarness(t)

	router.dispatch(context.Background(), textUpdate(1, 2, "/start"))

	sent := bot.lastSent(t)
	if !strings.Contains(sent.text, "/add_player") {
		t.Fatalf("help text missing commands: %q", sent.text)
	}
}

func TestRouterAddPlayerConversation(t *testing.T) {
	t.Parallel()

	router, bot, rosterSvc := newRouterHarness(t)
	ctx := context.Background()

	router.dispatch(ctx, textUpdate(1, 2, "/add_player"))
	if sent := bot.lastSent(t); !sent.opts.WithCancelButton {
		t.Fatalf("name prompt missing cancel button: %+v", sent)
	}

	router.dispatch(ctx, textUpdate(1, 2, "Crunch Main"))
	router.dispatch(ctx, textUpdate(1, 2, "ext-crunch"))

	if sent := bot.lastSent(t); !strings.Contains(sent.text, "Player registered") {
		t.Fatalf("confirmation missing: %q", sent.text)
	}

	chatID := int64(1)
	players, err := rosterSvc.ListPlayers(ctx, &chatID)
	if err != nil {
		t.Fatalf("ListPlayers failed: %v", err)
	}
	if len(players) != 1 || players[0].DisplayName != "Crunch Main" {
		t.Fatalf("roster after conversation = %+v", players)
	}
}

func TestRouterCommandWithBotSuffix(t *testing.T) {
	t.Parallel()

	router, bot, _ := newRouterHarness(t)

	router.dispatch(context.Background(), textUpdate(1, 2, "/start@ps_tracker_bot"))

	if sent := bot.lastSent(t); !strings.Contains(sent.text, "/delta") {
		t.Fatalf("suffixed command not routed: %q", sent.text)
	}
}

func TestRouterDeltaCommandSendsHTMLReport(t *testing.T) {
	t.Parallel()

	router, bot, rosterSvc := newRouterHarness(t)
	ctx := context.Background()

	if _, err := rosterSvc.AddPlayer(ctx, usecase.AddPlayerInput{
		ChatID: 1, DisplayName: "Feng Mao", ExternalID: "ext-fm", BaselineScore: 40,
	}); err != nil {
		t.Fatalf("seed player: %v", err)
	}

	router.dispatch(ctx, textUpdate(1, 2, "/delta"))

	sent := bot.lastSent(t)
	if sent.opts.ParseMode != "HTML" || !sent.opts.DisablePreview {
		t.Fatalf("report send options = %+v", sent.opts)
	}
	if !strings.Contains(sent.text, "Feng Mao") {
		t.Fatalf("report missing player:\n%s", sent.text)
	}
}

func TestRouterCancelCallback(t *testing.T) {
	t.Parallel()

	router, bot, _ := newRouterHarness(t)
	ctx := context.Background()

	router.dispatch(ctx, textUpdate(1, 2, "/add_player"))
	router.dispatch(ctx, telegram.Update{
		CallbackQuery: &telegram.CallbackQuery{
			ID:   "cb-1",
			From: telegram.User{ID: 2},
			Data: telegram.CallbackCancel,
			Message: &telegram.Message{
				MessageID: 1,
				Chat:      telegram.Chat{ID: 1},
			},
		},
	})

	if len(bot.answered) != 1 || bot.answered[0] != "cb-1" {
		t.Fatalf("callback not acknowledged: %v", bot.answered)
	}
	if sent := bot.lastSent(t); sent.text != "Cancelled." {
		t.Fatalf("cancel reply = %q", sent.text)
	}
}

func TestRouterIgnoresBotMessages(t *testing.T) {
	t.Parallel()

	router, bot, _ := newRouterHarness(t)

	router.dispatch(context.Background(), telegram.Update{
		Message: &telegram.Message{
			Chat: telegram.Chat{ID: 1},
			From: &telegram.User{ID: 3, IsBot: true},
			Text: "/start",
		},
	})

	bot.mu.Lock()
	defer bot.mu.Unlock()
	if len(bot.sent) != 0 {
		t.Fatalf("bot-authored message should be ignored, sent %v", bot.sent)
	}
}

func TestNormalizeCommand(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/delta":                "/delta",
		"/delta@SomeBot":        "/delta",
		"/PS extra args":        "/ps",
		"/add_player@bot extra": "/add_player",
	}
	for input, want := range cases {
		if got := normalizeCommand(input); got != want {
			t.Fatalf("normalizeCommand(%q) = %q, want %q", input, got, want)
		}
	}
}
