package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/types"
)

// Bot delivers to a Telegram-style bot API. Only the handful of methods the
// engine needs are wrapped.
type Bot struct {
	apiBase string
	token   string
	chatID  int64
	httpc   *http.Client
	log     *zap.SugaredLogger
}

func NewBot(cfg *config.Config, log *zap.SugaredLogger) *Bot {
	return &Bot{
		apiBase: strings.TrimRight(cfg.Channel.APIBaseURL, "/"),
		token:   cfg.Channel.BotToken,
		chatID:  cfg.Channel.ChatID,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

var _ Deliverer = (*Bot)(nil)

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

func toMarkup(controls [][]types.SlotControl) *replyMarkup {
	if len(controls) == 0 {
		return nil
	}
	m := &replyMarkup{InlineKeyboard: make([][]inlineButton, 0, len(controls))}
	for _, row := range controls {
		line := make([]inlineButton, 0, len(row))
		for _, c := range row {
			line = append(line, inlineButton{Text: c.Label, URL: c.URL})
		}
		if len(line) > 0 {
			m.InlineKeyboard = append(m.InlineKeyboard, line)
		}
	}
	if len(m.InlineKeyboard) == 0 {
		return nil
	}
	return m
}

func (b *Bot) Deliver(ctx context.Context, text string, controls [][]types.SlotControl) (MessageRef, error) {
	body := map[string]any{
		"chat_id":                  b.chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if m := toMarkup(controls); m != nil {
		body["reply_markup"] = m
	}
	var result struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		MessageID int64 `json:"message_id"`
	}
	if err := b.call(ctx, "sendMessage", body, &result); err != nil {
		return MessageRef{}, err
	}
	chatID := result.Chat.ID
	if chatID == 0 {
		chatID = b.chatID
	}
	return MessageRef{ChatID: chatID, MessageID: result.MessageID}, nil
}

func (b *Bot) PatchControls(ctx context.Context, ref MessageRef, controls [][]types.SlotControl) error {
	body := map[string]any{
		"chat_id":    ref.ChatID,
		"message_id": ref.MessageID,
	}
	m := toMarkup(controls)
	if m == nil {
		m = &replyMarkup{InlineKeyboard: [][]inlineButton{}}
	}
	body["reply_markup"] = m
	return b.call(ctx, "editMessageReplyMarkup", body, nil)
}

func (b *Bot) Pin(ctx context.Context, ref MessageRef) error {
	return b.call(ctx, "pinChatMessage", map[string]any{
		"chat_id":              ref.ChatID,
		"message_id":           ref.MessageID,
		"disable_notification": true,
	}, nil)
}

func (b *Bot) Delete(ctx context.Context, ref MessageRef) error {
	return b.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    ref.ChatID,
		"message_id": ref.MessageID,
	}, nil)
}

func (b *Bot) Notify(ctx context.Context, userID string, text string, controls [][]types.SlotControl) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("user id %q is not a chat id: %w", userID, err)
	}
	body := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if m := toMarkup(controls); m != nil {
		body["reply_markup"] = m
	}
	return b.call(ctx, "sendMessage", body, nil)
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func (b *Bot) call(ctx context.Context, method string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/%s", b.apiBase, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("channel %s failed: %w", method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("channel %s: non-JSON response: %s", method, string(raw[:min(len(raw), 200)]))
	}
	if !env.OK {
		return mapAPIError(method, env)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("channel %s: bad result payload: %w", method, err)
		}
	}
	return nil
}

func mapAPIError(method string, env apiEnvelope) error {
	desc := strings.ToLower(env.Description)
	switch {
	case strings.Contains(desc, "message to edit not found"),
		strings.Contains(desc, "message to delete not found"):
		return ErrNotFound
	case strings.Contains(desc, "message can't be edited"),
		strings.Contains(desc, "too old"):
		return ErrTooOld
	}
	return fmt.Errorf("channel %s: api error %d: %s", method, env.ErrorCode, env.Description)
}

var Module = fx.Options(
	fx.Provide(
		NewBot,
		func(b *Bot) Deliverer { return b },
	),
)
