package bot

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/m3rciful/mensabot/core/telegram/keyboard"
	tgsender "github.com/m3rciful/mensabot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Messenger is the chat transport the Machine drives. Send and Delete are
// effects a transition depends on; Notify is fire-and-forget.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, buttons []keyboard.InlineBtn) (int, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
	Notify(ctx context.Context, chatID int64, text string) error
}

// ErrNotAttached is returned by TeleMessenger before Attach.
var ErrNotAttached = errors.New("bot: messenger not attached")

// TeleMessenger sends through telebot. Notify goes through the retrying
// outbound dispatcher.
type TeleMessenger struct {
	mu         sync.RWMutex
	bot        *tele.Bot
	dispatcher *tgsender.Dispatcher
}

// Attach binds the running bot. It is called from the runtime's OnStart hook.
func (m *TeleMessenger) Attach(b *tele.Bot, d *tgsender.Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bot, m.dispatcher = b, d
}

func (m *TeleMessenger) get() (*tele.Bot, *tgsender.Dispatcher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bot == nil {
		return nil, nil, ErrNotAttached
	}
	return m.bot, m.dispatcher, nil
}

func (m *TeleMessenger) Send(_ context.Context, chatID int64, text string, buttons []keyboard.InlineBtn) (int, error) {
	b, _, err := m.get()
	if err != nil {
		return 0, err
	}
	var opts []any
	if markup := keyboard.InlineButtons(buttons); markup != nil {
		opts = append(opts, markup)
	}
	msg, err := b.Send(tele.ChatID(chatID), text, opts...)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (m *TeleMessenger) Delete(_ context.Context, chatID int64, messageID int) error {
	b, _, err := m.get()
	if err != nil {
		return err
	}
	return b.Delete(tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID})
}

func (m *TeleMessenger) Notify(ctx context.Context, chatID int64, text string) error {
	b, d, err := m.get()
	if err != nil {
		return err
	}
	send := func() error {
		_, err := b.Send(tele.ChatID(chatID), text)
		return err
	}
	if d == nil {
		return send()
	}
	return d.Enqueue(ctx, "notify", chatID, send)
}
