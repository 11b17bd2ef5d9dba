// Package bot implements the ordering conversation: profile collection,
// meal and slot selection, and order submission.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/mensabot/core/logger"
	tghelpers "github.com/m3rciful/mensabot/core/telegram/helpers"
	"github.com/m3rciful/mensabot/core/telegram/keyboard"
	"github.com/m3rciful/mensabot/core/telegram/state"
	"github.com/m3rciful/mensabot/mensa"
)

// Ordering is the part of the canteen client the Machine needs.
type Ordering interface {
	FetchMenu(ctx context.Context) (*mensa.Session, *mensa.Menu, error)
	FetchFreeSlots(ctx context.Context, email, isoDate string) (mensa.Slots, error)
	SubmitOrder(ctx context.Context, isoDate, mealHash string, profile mensa.Profile, slotLabel string) (*mensa.Confirmation, error)
}

// EventKind distinguishes the inputs a conversation receives.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventCommand
	EventCallback
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventCommand:
		return "command"
	case EventCallback:
		return "callback"
	}
	return "unknown"
}

const (
	CommandHelp  = "/help"
	CommandStart = "/start"
	CommandMenu  = "/menu"
	CommandOrder = "/order"

	CallbackMeal = "meal"
	CallbackSlot = "slot"
)

// Event is one user input for one conversation. MessageID is the message
// carrying the pressed button for callbacks.
type Event struct {
	ChatID int64
	Kind   EventKind

	Command string
	Args    string
	Text    string

	CallbackKey string
	Payload     string
	MessageID   int
}

// Outcome reports what Handle did. Notice is the short answer for a
// callback query, empty when nothing needs to be shown.
type Outcome struct {
	From   State
	To     State
	Notice string
}

// Options configure a Machine.
type Options struct {
	Store     state.Store[State]
	Ordering  Ordering
	Messenger Messenger

	HelpText func() string
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger

	// CommitAttempts and CommitDelay bound the retries of a failed state
	// save. Defaults: 3 attempts, 100ms.
	CommitAttempts uint
	CommitDelay    time.Duration
}

// Machine runs one transition per event. Events for the same chat are
// serialized; different chats proceed in parallel.
type Machine struct {
	store    state.Store[State]
	ordering Ordering
	msg      Messenger
	help     func() string
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger

	commitAttempts uint
	commitDelay    time.Duration

	locks state.KeyedMutex

	// consumed holds the slot prompt per chat whose order already ran. A
	// press on it is stale even while the stored state still points to it.
	consumedMu sync.Mutex
	consumed   map[int64]int
}

// NewMachine validates opts and returns a Machine.
func NewMachine(opts Options) (*Machine, error) {
	if opts.Store == nil || opts.Ordering == nil || opts.Messenger == nil {
		return nil, errors.New("bot: store, ordering and messenger are required")
	}
	m := &Machine{
		store:    opts.Store,
		ordering: opts.Ordering,
		msg:      opts.Messenger,
		help:     opts.HelpText,
		loc:      opts.Location,
		now:      opts.Now,
		log:      logger.Or(opts.Logger),

		commitAttempts: opts.CommitAttempts,
		commitDelay:    opts.CommitDelay,
		consumed:       make(map[int64]int),
	}
	if m.commitAttempts == 0 {
		m.commitAttempts = 3
	}
	if m.commitDelay <= 0 {
		m.commitDelay = 100 * time.Millisecond
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.help == nil {
		m.help = func() string { return "These commands are supported:\n/help\n/start\n/menu\n/order [date]" }
	}
	return m, nil
}

// Handle applies ev to the chat's conversation. The new state is stored
// only after every effect of the transition succeeded; on error the
// previous state stays in place.
func (m *Machine) Handle(ctx context.Context, ev Event) (Outcome, error) {
	unlock := m.locks.Lock(ev.ChatID)
	defer unlock()

	start := time.Now()
	cur, found, err := m.store.Get(ctx, ev.ChatID)
	if err != nil {
		return Outcome{}, fmt.Errorf("bot: load state: %w", err)
	}

	var (
		next   State
		notice string
	)
	if !found || cur == nil {
		cur = AwaitingFirstName{}
		next, notice, err = m.firstContact(ctx, ev)
	} else {
		next, notice, err = m.transition(ctx, cur, ev)
	}
	out := Outcome{From: cur, To: cur, Notice: notice}

	attrs := []slog.Attr{
		slog.String("state", StateName(cur)),
		slog.String("kind", ev.Kind.String()),
	}
	if err != nil {
		m.log.LogAttrs(ctx, slog.LevelWarn, "transition aborted", append(attrs,
			slog.String("event", "bot.transition"),
			slog.String("outcome", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.Duration("duration", logger.Took(start)),
		)...)
		return out, err
	}
	if next != nil {
		if err := m.commit(ctx, ev.ChatID, next); err != nil {
			m.log.LogAttrs(ctx, slog.LevelError, "state not saved", append(attrs,
				slog.String("event", "bot.commit"),
				slog.String("next_state", StateName(next)),
				slog.String("outcome", "fail"),
				slog.Bool("alert", true),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)...)
			return out, fmt.Errorf("bot: save state: %w", err)
		}
		m.release(ev.ChatID)
		out.To = next
	}
	m.log.LogAttrs(ctx, slog.LevelInfo, "transition", append(attrs,
		slog.String("event", "bot.transition"),
		slog.String("next_state", StateName(out.To)),
		slog.String("outcome", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)...)
	return out, nil
}

// commit stores next, retrying failed saves a few times.
func (m *Machine) commit(ctx context.Context, chat int64, next State) error {
	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = m.store.Set(ctx, chat, next)
			return lastErr
		},
		retry.Attempts(m.commitAttempts),
		retry.Delay(m.commitDelay),
		retry.MaxDelay(4*m.commitDelay),
		retry.MaxJitter(max(m.commitDelay/2, time.Millisecond)),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			m.log.LogAttrs(ctx, slog.LevelWarn, "state save retry",
				slog.String("event", "bot.commit"),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}),
	)
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

// consume marks the slot prompt of chat as used by an order.
func (m *Machine) consume(chat int64, promptID int) {
	m.consumedMu.Lock()
	defer m.consumedMu.Unlock()
	m.consumed[chat] = promptID
}

// release forgets the consumed prompt once a newer state is stored.
func (m *Machine) release(chat int64) {
	m.consumedMu.Lock()
	defer m.consumedMu.Unlock()
	delete(m.consumed, chat)
}

func (m *Machine) isConsumed(chat int64, promptID int) bool {
	m.consumedMu.Lock()
	defer m.consumedMu.Unlock()
	id, ok := m.consumed[chat]
	return ok && id == promptID
}

// firstContact greets a chat that has no stored state yet. A /help or
// /menu reply goes out before the greeting.
func (m *Machine) firstContact(ctx context.Context, ev Event) (State, string, error) {
	if ev.Kind == EventCommand {
		var err error
		switch ev.Command {
		case CommandHelp:
			_, err = m.msg.Send(ctx, ev.ChatID, m.help(), nil)
		case CommandMenu:
			err = m.showMenu(ctx, ev.ChatID)
		}
		if err != nil {
			return nil, "", err
		}
	}
	notice := ""
	if ev.Kind == EventCallback {
		notice = textExpired
	}
	next, _, err := m.reply(ctx, ev.ChatID, textStart, AwaitingFirstName{})
	return next, notice, err
}

// transition returns the next state, or nil to keep the current one.
func (m *Machine) transition(ctx context.Context, cur State, ev Event) (State, string, error) {
	chat := ev.ChatID

	switch ev.Kind {
	case EventCommand:
		switch ev.Command {
		case CommandHelp:
			return nil, "", m.msg.Notify(ctx, chat, m.help())
		case CommandMenu:
			return nil, "", m.showMenu(ctx, chat)
		case CommandStart:
			return m.reply(ctx, chat, textStart, AwaitingFirstName{})
		}
	case EventCallback:
		if id, ok := activePrompt(cur); !ok || id != ev.MessageID || m.isConsumed(chat, id) {
			return nil, textExpired, nil
		}
	}

	switch st := cur.(type) {
	case AwaitingFirstName:
		if ev.Kind == EventText {
			return m.reply(ctx, chat, textAskLastName(ev.Text), AwaitingLastName{FirstName: ev.Text})
		}
	case AwaitingLastName:
		if ev.Kind == EventText {
			return m.reply(ctx, chat, textAskEmail(st.FirstName, ev.Text),
				AwaitingEmail{FirstName: st.FirstName, LastName: ev.Text})
		}
	case AwaitingEmail:
		if ev.Kind == EventText {
			user := mensa.Profile{FirstName: st.FirstName, LastName: st.LastName, Email: ev.Text}
			return m.reply(ctx, chat, textSetupDone(user), Idle{User: user})
		}
	case Idle:
		if ev.Kind == EventCommand && ev.Command == CommandOrder {
			return m.startOrder(ctx, chat, st, ev.Args)
		}
	case AwaitingMealSelection:
		if ev.Kind == EventCallback && ev.CallbackKey == CallbackMeal {
			return m.chooseMeal(ctx, chat, st, ev.Payload)
		}
	case AwaitingSlotSelection:
		if ev.Kind == EventCallback && ev.CallbackKey == CallbackSlot {
			return m.chooseSlot(ctx, chat, st, ev.Payload)
		}
	default:
		return nil, "", fmt.Errorf("%w: %T", ErrUnknownState, cur)
	}
	return m.invalid(ctx, chat, cur, ev)
}

func (m *Machine) reply(ctx context.Context, chat int64, text string, next State) (State, string, error) {
	if _, err := m.msg.Send(ctx, chat, text, nil); err != nil {
		return nil, "", err
	}
	return next, "", nil
}

// invalid resets the conversation to the beginning. Collected profile data
// is dropped.
func (m *Machine) invalid(ctx context.Context, chat int64, cur State, ev Event) (State, string, error) {
	m.log.LogAttrs(ctx, slog.LevelWarn, "invalid state",
		slog.String("event", "bot.invalid_state"),
		slog.String("state", StateName(cur)),
		slog.String("kind", ev.Kind.String()),
		slog.String("cmd", ev.Command),
		slog.String("cb_key", ev.CallbackKey),
	)
	if _, err := m.msg.Send(ctx, chat, textInvalidState, nil); err != nil {
		return nil, "", err
	}
	return m.reply(ctx, chat, textStart, AwaitingFirstName{})
}

// fail reports a failed remote call to the user and moves to next.
func (m *Machine) fail(ctx context.Context, chat int64, op string, err error, next State) (State, string, error) {
	m.logRemoteError(ctx, op, err)
	return m.reply(ctx, chat, errorText(err), next)
}

func (m *Machine) logRemoteError(ctx context.Context, op string, err error) {
	level := slog.LevelWarn
	attrs := []slog.Attr{
		slog.String("event", "bot.remote_error"),
		slog.String("op", op),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	}
	kind, ok := mensa.KindOf(err)
	if ok {
		attrs = append(attrs, slog.String("err_code", kind.Code()))
	}
	if kind == mensa.KindRemoteFormat {
		level = slog.LevelError
		attrs = append(attrs, slog.Bool("alert", true))
	}
	m.log.LogAttrs(ctx, level, "remote call failed", attrs...)
}

func (m *Machine) showMenu(ctx context.Context, chat int64) error {
	_, menu, err := m.ordering.FetchMenu(ctx)
	if err != nil {
		m.logRemoteError(ctx, "menu", err)
		_, err = m.msg.Send(ctx, chat, errorText(err), nil)
		return err
	}
	for _, part := range menuListing(menu) {
		if _, err := m.msg.Send(ctx, chat, part, nil); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) startOrder(ctx context.Context, chat int64, st Idle, args string) (State, string, error) {
	explicit := strings.TrimSpace(args)
	if explicit != "" {
		explicit, _ = tghelpers.NormalizeISODate(explicit, m.loc)
	}

	_, menu, err := m.ordering.FetchMenu(ctx)
	if err != nil {
		return m.fail(ctx, chat, "menu", err, st)
	}
	date, ok := mensa.SelectDate(menu.Dates(), explicit, m.now().In(m.loc))
	if !ok {
		return m.reply(ctx, chat, textNoDate, st)
	}
	day, _ := menu.Day(date)
	if len(day.Meals) == 0 {
		return m.reply(ctx, chat, textNoMeals(date), st)
	}

	buttons := make([]keyboard.InlineBtn, 0, len(day.Meals))
	for _, meal := range day.Meals {
		buttons = append(buttons, keyboard.InlineBtn{Text: meal.CombinedName(), Unique: CallbackMeal, Data: meal.Hash})
	}
	id, err := m.msg.Send(ctx, chat, textChooseMeal(date), buttons)
	if err != nil {
		return nil, "", err
	}
	return AwaitingMealSelection{User: st.User, IsoDate: date, PromptMessageID: id}, "", nil
}

func (m *Machine) chooseMeal(ctx context.Context, chat int64, st AwaitingMealSelection, hash string) (State, string, error) {
	idle := Idle{User: st.User}
	slots, err := m.ordering.FetchFreeSlots(ctx, st.User.Email, st.IsoDate)
	if err != nil {
		return m.fail(ctx, chat, "slots", err, idle)
	}
	free := slots.Available()
	if len(free) == 0 {
		return m.reply(ctx, chat, textNoSlots, idle)
	}

	buttons := make([]keyboard.InlineBtn, 0, len(free))
	for _, s := range free {
		buttons = append(buttons, keyboard.InlineBtn{Text: slotButtonText(s), Unique: CallbackSlot, Data: s.Label})
	}

	var promptID int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.msg.Delete(gctx, chat, st.PromptMessageID)
	})
	g.Go(func() error {
		var err error
		promptID, err = m.msg.Send(gctx, chat, textSelectSlot, buttons)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, "", err
	}
	return AwaitingSlotSelection{User: st.User, IsoDate: st.IsoDate, MealHash: hash, PromptMessageID: promptID}, "", nil
}

func (m *Machine) chooseSlot(ctx context.Context, chat int64, st AwaitingSlotSelection, label string) (State, string, error) {
	if _, err := m.msg.Send(ctx, chat, textOrdering(label), nil); err != nil {
		return nil, "", err
	}

	m.consume(chat, st.PromptMessageID)
	result := textOrdered
	conf, err := m.ordering.SubmitOrder(ctx, st.IsoDate, st.MealHash, st.User, label)
	switch {
	case err != nil:
		m.logRemoteError(ctx, "order", err)
		result = errorText(err)
	case conf.DryRun:
		result = textOrderedDryRun
	}
	if err == nil {
		m.log.LogAttrs(ctx, slog.LevelInfo, "order submitted",
			slog.String("event", "bot.order"),
			slog.String("iso_date", st.IsoDate),
			slog.String("meal", st.MealHash),
			slog.String("slot", conf.Slot.Label),
			slog.String("attempt_id", conf.Attempt),
			slog.Bool("dry_run", conf.DryRun),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.msg.Delete(gctx, chat, st.PromptMessageID)
	})
	g.Go(func() error {
		_, err := m.msg.Send(gctx, chat, result, nil)
		return err
	})
	// the order may already be placed, so the conversation leaves the slot
	// prompt even when the follow-up messages fail
	if err := g.Wait(); err != nil {
		m.log.LogAttrs(ctx, slog.LevelWarn, "order follow-up failed",
			slog.String("event", "bot.effect_failed"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
	return Idle{User: st.User}, "", nil
}
