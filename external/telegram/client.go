package telegram

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/evvec/ps-tracker/internal/platform/logging"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
)

const (
	defaultBaseURL     = "https://api.telegram.org"
	defaultTimeout     = 10 * time.Second
	defaultPollTimeout = 30 * time.Second
)

type ClientConfig struct {
	Token       string
	BaseURL     string
	Timeout     time.Duration
	PollTimeout time.Duration
}

// Client is a minimal Telegram Bot API client covering exactly the
// surface the workflow and reports need.
type Client struct {
	http        *fasthttp.Client
	apiBase     string
	timeout     time.Duration
	pollTimeout time.Duration
	logger      *logging.Logger
}

func NewClient(cfg ClientConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, crerr.New("telegram token is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	return &Client{
		http: &fasthttp.Client{
			ReadTimeout:     pollTimeout + 5*time.Second,
			WriteTimeout:    timeout,
			MaxConnsPerHost: 16,
		},
		apiBase:     baseURL + "/bot" + token,
		timeout:     timeout,
		pollTimeout: pollTimeout,
		logger:      logger,
	}, nil
}

type SendMessageOptions struct {
	ParseMode        string
	DisablePreview   bool
	WithCancelButton bool
}

// SendMessage delivers text to a chat and returns the created message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts SendMessageOptions) (int64, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if opts.ParseMode != "" {
		payload["parse_mode"] = opts.ParseMode
	}
	if opts.DisablePreview {
		payload["disable_web_page_preview"] = true
	}
	if opts.WithCancelButton {
		payload["reply_markup"] = inlineKeyboard{
			InlineKeyboard: [][]inlineButton{{
				{Text: "Cancel", CallbackData: CallbackCancel},
			}},
		}
	}

	var sent struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call(ctx, "sendMessage", payload, c.timeout, &sent); err != nil {
		return 0, err
	}

	return sent.MessageID, nil
}

// RemoveReplyMarkup strips the inline keyboard from a previously sent
// message. Telegram rejects edits on untouched or old messages; callers
// treat that as non-fatal.
func (c *Client) RemoveReplyMarkup(ctx context.Context, chatID, messageID int64) error {
	payload := map[string]any{
		"chat_id":      chatID,
		"message_id":   messageID,
		"reply_markup": inlineKeyboard{InlineKeyboard: [][]inlineButton{}},
	}
	return c.call(ctx, "editMessageReplyMarkup", payload, c.timeout, nil)
}

// AnswerCallbackQuery acknowledges a pressed inline button.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
	payload := map[string]any{"callback_query_id": callbackQueryID}
	return c.call(ctx, "answerCallbackQuery", payload, c.timeout, nil)
}

// GetUpdates long-polls for inbound updates past the given offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(c.pollTimeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, c.pollTimeout+c.timeout, &updates); err != nil {
		return nil, err
	}

	return updates, nil
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

func (c *Client) call(ctx context.Context, method string, payload any, timeout time.Duration, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body := bytebufferpool.Get()
	defer bytebufferpool.Put(body)

	encoded, err := sonic.Marshal(payload)
	if err != nil {
		return crerr.Wrapf(err, "marshal %s payload", method)
	}
	_, _ = body.Write(encoded)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetRequestURI(c.apiBase + "/" + method)
	req.SetBody(body.B)

	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return crerr.Wrapf(err, "telegram %s request", method)
	}

	var decoded struct {
		apiResponse
		Result json.RawMessage `json:"result"`
	}
	if err := sonic.Unmarshal(resp.Body(), &decoded); err != nil {
		return crerr.Wrapf(err, "decode telegram %s response", method)
	}
	if !decoded.OK {
		c.logger.WarnContext(ctx, "telegram api call rejected",
			"method", method,
			"code", decoded.ErrorCode,
			"description", decoded.Description,
		)
		return crerr.Newf("telegram %s failed: code=%d %s", method, decoded.ErrorCode, decoded.Description)
	}

	if out != nil && len(decoded.Result) > 0 {
		if err := sonic.Unmarshal(decoded.Result, out); err != nil {
			return crerr.Wrapf(err, "decode telegram %s result", method)
		}
	}

	return nil
}
