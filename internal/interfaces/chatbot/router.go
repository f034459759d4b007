package chatbot

import (
	"context"
	"strings"
	"time"

	"github.com/evvec/ps-tracker/external/telegram"
	"github.com/evvec/ps-tracker/internal/platform/logging"
	"github.com/evvec/ps-tracker/internal/usecase"
	"github.com/go-playground/validator/v10"
)

const (
	cmdStart        = "/start"
	cmdAddPlayer    = "/add_player"
	cmdDeletePlayer = "/del_player"
	cmdDelta        = "/delta"
	cmdScores       = "/ps"

	pollRetryDelay = 3 * time.Second
)

const helpText = `Performance score tracker.

/add_player - register a player in this chat
/del_player - remove a tracked player
/delta - score movement since the last snapshot
/ps - current standings with last match scores`

const msgReportFailed = "Could not build the report right now, try again later."

// inboundMessage is the sanitized shape of a Telegram text message
// before it reaches the workflow. Updates missing a chat or sender are
// dropped at the door.
type inboundMessage struct {
	ChatID  int64  `validate:"required"`
	ActorID int64  `validate:"required"`
	Text    string `validate:"required,max=4096"`
}

// Router long-polls Telegram and dispatches commands, workflow text and
// cancel callbacks to the use case layer.
type Router struct {
	bot          BotAPI
	registration *usecase.RegistrationService
	reports      *usecase.ReportService
	validate     *validator.Validate
	logger       *logging.Logger

	offset int64
}

func NewRouter(
	bot BotAPI,
	registration *usecase.RegistrationService,
	reports *usecase.ReportService,
	logger *logging.Logger,
) *Router {
	if logger == nil {
		logger = logging.Default()
	}

	return &Router{
		bot:          bot,
		registration: registration,
		reports:      reports,
		validate:     validator.New(),
		logger:       logger,
	}
}

// Run polls for updates until the context is cancelled. Poll failures
// are logged and retried, a broken network must not kill the bot.
func (r *Router) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "chatbot router started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := r.bot.GetUpdates(ctx, r.offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.WarnContext(ctx, "poll updates failed", "error", err)
			if !sleepCtx(ctx, pollRetryDelay) {
				return ctx.Err()
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= r.offset {
				r.offset = update.UpdateID + 1
			}
			r.dispatch(ctx, update)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, update telegram.Update) {
	switch {
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, *update.CallbackQuery)
	case update.Message != nil:
		r.handleMessage(ctx, *update.Message)
	}
}

func (r *Router) handleMessage(ctx context.Context, message telegram.Message) {
	if message.From == nil || message.From.IsBot {
		return
	}

	inbound := inboundMessage{
		ChatID:  message.Chat.ID,
		ActorID: message.From.ID,
		Text:    strings.TrimSpace(message.Text),
	}
	if err := r.validate.Struct(inbound); err != nil {
		r.logger.DebugContext(ctx, "dropping malformed message", "error", err)
		return
	}

	if strings.HasPrefix(inbound.Text, "/") {
		r.handleCommand(ctx, inbound)
		return
	}

	handled, err := r.registration.HandleMessage(ctx, inbound.ChatID, inbound.ActorID, inbound.Text)
	if err != nil {
		r.logger.ErrorContext(ctx, "workflow input failed",
			"chat_id", inbound.ChatID,
			"actor_id", inbound.ActorID,
			"error", err,
		)
		return
	}
	if !handled {
		r.logger.DebugContext(ctx, "ignoring non-workflow message", "chat_id", inbound.ChatID)
	}
}

func (r *Router) handleCommand(ctx context.Context, inbound inboundMessage) {
	command := normalizeCommand(inbound.Text)

	var err error
	switch command {
	case cmdStart:
		_, err = r.bot.SendMessage(ctx, inbound.ChatID, helpText, telegram.SendMessageOptions{})
	case cmdAddPlayer:
		err = r.registration.StartRegistration(ctx, inbound.ChatID, inbound.ActorID)
	case cmdDeletePlayer:
		err = r.registration.StartDeletion(ctx, inbound.ChatID, inbound.ActorID)
	case cmdDelta:
		err = r.sendReport(ctx, inbound.ChatID, r.reports.DeltaReport)
	case cmdScores:
		err = r.sendReport(ctx, inbound.ChatID, r.reports.ScoreReport)
	default:
		return
	}

	if err != nil {
		r.logger.ErrorContext(ctx, "command failed",
			"command", command,
			"chat_id", inbound.ChatID,
			"error", err,
		)
	}
}

func (r *Router) sendReport(ctx context.Context, chatID int64, build func(context.Context, int64) (string, error)) error {
	report, err := build(ctx, chatID)
	if err != nil {
		if _, sendErr := r.bot.SendMessage(ctx, chatID, msgReportFailed, telegram.SendMessageOptions{}); sendErr != nil {
			r.logger.WarnContext(ctx, "failure notice undelivered", "chat_id", chatID, "error", sendErr)
		}
		return err
	}

	_, err = r.bot.SendMessage(ctx, chatID, report, telegram.SendMessageOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	return err
}

func (r *Router) handleCallback(ctx context.Context, callback telegram.CallbackQuery) {
	// Acknowledge first so the button stops spinning even when the
	// cancel itself fails.
	if err := r.bot.AnswerCallbackQuery(ctx, callback.ID); err != nil {
		r.logger.DebugContext(ctx, "callback ack failed", "callback_id", callback.ID, "error", err)
	}

	if callback.Data != telegram.CallbackCancel || callback.Message == nil {
		return
	}

	if err := r.registration.Cancel(ctx, callback.Message.Chat.ID, callback.From.ID); err != nil {
		r.logger.ErrorContext(ctx, "workflow cancel failed",
			"chat_id", callback.Message.Chat.ID,
			"actor_id", callback.From.ID,
			"error", err,
		)
	}
}

// normalizeCommand lowercases a command and strips the @botname suffix
// Telegram appends in group chats.
func normalizeCommand(text string) string {
	command, _, _ := strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
