package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaswdr/faker"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/mensabot/core/telegram/keyboard"
	"github.com/m3rciful/mensabot/core/telegram/state"
	"github.com/m3rciful/mensabot/mensa"
)

type sentMessage struct {
	chatID  int64
	id      int
	text    string
	buttons []keyboard.InlineBtn
}

type fakeMessenger struct {
	mu       sync.Mutex
	nextID   int
	sent     []sentMessage
	notified []string
	deleted  []int
	sendErr  error
	delay    time.Duration
}

func (f *fakeMessenger) Send(_ context.Context, chatID int64, text string, buttons []keyboard.InlineBtn) (int, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	id := 100 + f.nextID
	f.sent = append(f.sent, sentMessage{chatID: chatID, id: id, text: text, buttons: buttons})
	return id, nil
}

func (f *fakeMessenger) Delete(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) Notify(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, text)
	return nil
}

func (f *fakeMessenger) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMessenger) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.text)
	}
	return out
}

type submitCall struct {
	isoDate, hash, slot string
	profile             mensa.Profile
}

type fakeOrdering struct {
	mu        sync.Mutex
	menu      *mensa.Menu
	menuErr   error
	slots     mensa.Slots
	slotsErr  error
	submitErr error
	dryRun    bool
	submits   []submitCall
	menuCalls atomic.Int32
}

func (f *fakeOrdering) FetchMenu(context.Context) (*mensa.Session, *mensa.Menu, error) {
	f.menuCalls.Add(1)
	if f.menuErr != nil {
		return nil, nil, f.menuErr
	}
	return &mensa.Session{}, f.menu, nil
}

func (f *fakeOrdering) FetchFreeSlots(context.Context, string, string) (mensa.Slots, error) {
	return f.slots, f.slotsErr
}

func (f *fakeOrdering) SubmitOrder(_ context.Context, isoDate, mealHash string, p mensa.Profile, slot string) (*mensa.Confirmation, error) {
	f.mu.Lock()
	f.submits = append(f.submits, submitCall{isoDate: isoDate, hash: mealHash, slot: slot, profile: p})
	f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	match, _ := f.slots.Match(slot)
	return &mensa.Confirmation{DryRun: f.dryRun, Attempt: "c1", Slot: match}, nil
}

func (f *fakeOrdering) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

var ada = mensa.Profile{FirstName: "Ada", LastName: "Lovelace", Email: "ada@x.test"}

const chat = int64(42)

func testMenu() *mensa.Menu {
	return &mensa.Menu{
		Name: "Mensa Süd",
		Days: []mensa.MenuDay{
			{IsoDate: "2024-03-04", DisplayDate: "Montag, 04.03.", Meals: []mensa.MenuItem{
				{Category: "Hauptgericht", Title: "Linsen", Description: " mit Spätzle", Hash: "abc123"},
				{Category: "Beilage", Title: "Pommes", Hash: "side1"},
			}},
			{IsoDate: "2024-03-05", DisplayDate: "Dienstag, 05.03.", Meals: []mensa.MenuItem{
				{Category: "Dessert", Title: "Pudding", Hash: "sweet1"},
				{Category: "Vegan", Title: "Curry", Hash: "curry9"},
			}},
		},
	}
}

type harness struct {
	m     *Machine
	store *state.Memory[State]
	msg   *fakeMessenger
	ord   *fakeOrdering
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		store: state.NewMemory[State](),
		msg:   &fakeMessenger{},
		ord: &fakeOrdering{
			menu:  testMenu(),
			slots: mensa.Slots{{Label: "11:30:00", Free: 0}, {Label: "12:00:00", Free: 3}},
		},
	}
	opts := Options{
		Store:       h.store,
		Ordering:    h.ord,
		Messenger:   h.msg,
		HelpText:    func() string { return "help!" },
		Location:    time.UTC,
		Now:         func() time.Time { return time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) },
		CommitDelay: time.Millisecond,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	m, err := NewMachine(opts)
	require.NoError(t, err)
	h.m = m
	return h
}

func (h *harness) seed(t *testing.T, s State) {
	t.Helper()
	require.NoError(t, h.store.Set(context.Background(), chat, s))
}

func (h *harness) current(t *testing.T) State {
	t.Helper()
	s, ok, err := h.store.Get(context.Background(), chat)
	require.NoError(t, err)
	require.True(t, ok)
	return s
}

func (h *harness) text(t *testing.T, text string) Outcome {
	t.Helper()
	out, err := h.m.Handle(context.Background(), Event{ChatID: chat, Kind: EventText, Text: text})
	require.NoError(t, err)
	return out
}

func (h *harness) command(t *testing.T, name, args string) Outcome {
	t.Helper()
	out, err := h.m.Handle(context.Background(), Event{ChatID: chat, Kind: EventCommand, Command: name, Args: args})
	require.NoError(t, err)
	return out
}

func (h *harness) press(t *testing.T, key, payload string, messageID int) Outcome {
	t.Helper()
	out, err := h.m.Handle(context.Background(), Event{
		ChatID: chat, Kind: EventCallback, CallbackKey: key, Payload: payload, MessageID: messageID,
	})
	require.NoError(t, err)
	return out
}

func TestNewMachineRequiresCollaborators(t *testing.T) {
	_, err := NewMachine(Options{})
	require.Error(t, err)
}

func TestOnboarding(t *testing.T) {
	fake := faker.New()
	for i := 0; i < 5; i++ {
		h := newHarness(t)
		first, last, email := fake.Person().FirstName(), fake.Person().LastName(), fake.Internet().Email()

		out := h.text(t, "hello")
		require.Equal(t, AwaitingFirstName{}, out.To)
		require.Equal(t, textStart, h.msg.last().text)

		h.text(t, first)
		require.Equal(t, AwaitingLastName{FirstName: first}, h.current(t))
		require.Equal(t, textAskLastName(first), h.msg.last().text)

		h.text(t, last)
		require.Equal(t, AwaitingEmail{FirstName: first, LastName: last}, h.current(t))
		require.Equal(t, textAskEmail(first, last), h.msg.last().text)

		out = h.text(t, email)
		want := mensa.Profile{FirstName: first, LastName: last, Email: email}
		require.Equal(t, AwaitingEmail{FirstName: first, LastName: last}, out.From)
		require.Equal(t, Idle{User: want}, out.To)
		require.Equal(t, Idle{User: want}, h.current(t))
		require.Equal(t, textSetupDone(want), h.msg.last().text)
	}
}

func TestOrderEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.seed(t, Idle{User: ada})

	out := h.command(t, CommandOrder, "")
	meal, ok := out.To.(AwaitingMealSelection)
	require.True(t, ok, "got %T", out.To)
	require.Equal(t, "2024-03-04", meal.IsoDate)
	prompt := h.msg.last()
	require.Equal(t, textChooseMeal("2024-03-04"), prompt.text)
	require.Equal(t, prompt.id, meal.PromptMessageID)
	require.Equal(t, []keyboard.InlineBtn{
		{Text: "Hauptgericht: Linsen mit Spätzle", Unique: CallbackMeal, Data: "abc123"},
		{Text: "Beilage: Pommes", Unique: CallbackMeal, Data: "side1"},
	}, prompt.buttons)

	out = h.press(t, CallbackMeal, "abc123", meal.PromptMessageID)
	slot, ok := out.To.(AwaitingSlotSelection)
	require.True(t, ok, "got %T", out.To)
	require.Equal(t, "abc123", slot.MealHash)
	slotPrompt := h.msg.last()
	require.Equal(t, textSelectSlot, slotPrompt.text)
	require.Equal(t, slotPrompt.id, slot.PromptMessageID)
	require.Equal(t, []keyboard.InlineBtn{{Text: "12:00:00 (3 free)", Unique: CallbackSlot, Data: "12:00:00"}}, slotPrompt.buttons)
	require.Equal(t, []int{meal.PromptMessageID}, h.msg.deleted)

	out = h.press(t, CallbackSlot, "12:00:00", slot.PromptMessageID)
	require.Equal(t, Idle{User: ada}, out.To)
	require.Equal(t, Idle{User: ada}, h.current(t))
	require.Equal(t, textOrdered, h.msg.last().text)
	require.Contains(t, h.msg.texts(), textOrdering("12:00:00"))
	require.Equal(t, []int{meal.PromptMessageID, slot.PromptMessageID}, h.msg.deleted)
	require.Equal(t, []submitCall{{isoDate: "2024-03-04", hash: "abc123", slot: "12:00:00", profile: ada}}, h.ord.submits)
}

func TestOrderDryRunMessage(t *testing.T) {
	h := newHarness(t)
	h.ord.dryRun = true
	h.seed(t, AwaitingSlotSelection{User: ada, IsoDate: "2024-03-04", MealHash: "abc123", PromptMessageID: 7})

	h.press(t, CallbackSlot, "12:00:00", 7)
	require.Equal(t, textOrderedDryRun, h.msg.last().text)
}

func TestOrderDateSelection(t *testing.T) {
	t.Run("explicit local format", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, Idle{User: ada})
		out := h.command(t, CommandOrder, "05.03.2024")
		require.Equal(t, "2024-03-05", out.To.(AwaitingMealSelection).IsoDate)
	})
	t.Run("explicit date not on menu", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, Idle{User: ada})
		out := h.command(t, CommandOrder, "2024-03-09")
		require.Equal(t, Idle{User: ada}, out.To)
		require.Equal(t, textNoDate, h.msg.last().text)
	})
	t.Run("garbage argument", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, Idle{User: ada})
		h.command(t, CommandOrder, "tomorrow")
		require.Equal(t, Idle{User: ada}, h.current(t))
		require.Equal(t, textNoDate, h.msg.last().text)
	})
	t.Run("nothing left this week", func(t *testing.T) {
		h := newHarness(t)
		h.m.now = func() time.Time { return time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC) }
		h.seed(t, Idle{User: ada})
		h.command(t, CommandOrder, "")
		require.Equal(t, Idle{User: ada}, h.current(t))
		require.Equal(t, textNoDate, h.msg.last().text)
	})
	t.Run("day without meals", func(t *testing.T) {
		h := newHarness(t)
		h.ord.menu.Days[0].Meals = nil
		h.seed(t, Idle{User: ada})
		out := h.command(t, CommandOrder, "2024-03-04")
		require.Equal(t, Idle{User: ada}, out.To)
		require.Equal(t, textNoMeals("2024-03-04"), h.msg.last().text)
	})
}

func TestRemoteFailuresReturnToIdle(t *testing.T) {
	unavailable := &mensa.Error{Kind: mensa.KindRemoteUnavailable, Op: "menu"}

	t.Run("menu", func(t *testing.T) {
		h := newHarness(t)
		h.ord.menuErr = unavailable
		h.seed(t, Idle{User: ada})
		out := h.command(t, CommandOrder, "")
		require.Equal(t, Idle{User: ada}, out.To)
		require.Equal(t, textUnavailable, h.msg.last().text)
	})
	t.Run("slots", func(t *testing.T) {
		h := newHarness(t)
		h.ord.slotsErr = &mensa.Error{Kind: mensa.KindRemoteFormat, Op: "slots"}
		h.seed(t, AwaitingMealSelection{User: ada, IsoDate: "2024-03-04", PromptMessageID: 5})
		out := h.press(t, CallbackMeal, "abc123", 5)
		require.Equal(t, Idle{User: ada}, out.To)
		require.Equal(t, textUnavailable, h.msg.last().text)
	})
	t.Run("no free slot", func(t *testing.T) {
		h := newHarness(t)
		h.ord.slots = mensa.Slots{{Label: "12:00:00", Free: 0}}
		h.seed(t, AwaitingMealSelection{User: ada, IsoDate: "2024-03-04", PromptMessageID: 5})
		out := h.press(t, CallbackMeal, "abc123", 5)
		require.Equal(t, Idle{User: ada}, out.To)
		require.Equal(t, textNoSlots, h.msg.last().text)
	})
	for _, tc := range []struct {
		kind mensa.Kind
		text string
	}{
		{mensa.KindSlotFull, textSlotFull},
		{mensa.KindSlotNotFound, textSlotGone},
		{mensa.KindMealNotFound, textMealGone},
		{mensa.KindDayNotFound, textNoDate},
		{mensa.KindRemoteUnavailable, textUnavailable},
	} {
		t.Run("order "+string(tc.kind), func(t *testing.T) {
			h := newHarness(t)
			h.ord.submitErr = &mensa.Error{Kind: tc.kind, Op: "order"}
			h.seed(t, AwaitingSlotSelection{User: ada, IsoDate: "2024-03-04", MealHash: "abc123", PromptMessageID: 9})
			out := h.press(t, CallbackSlot, "12:00:00", 9)
			require.Equal(t, Idle{User: ada}, out.To)
			require.Equal(t, tc.text, h.msg.last().text)
			require.Equal(t, []int{9}, h.msg.deleted)
		})
	}
}

func TestStaleCallbacksKeepState(t *testing.T) {
	h := newHarness(t)
	slotState := AwaitingSlotSelection{User: ada, IsoDate: "2024-03-04", MealHash: "abc123", PromptMessageID: 9}
	h.seed(t, slotState)

	out := h.press(t, CallbackMeal, "abc123", 5)
	require.Equal(t, textExpired, out.Notice)
	require.Equal(t, slotState, h.current(t))

	h.seed(t, Idle{User: ada})
	out = h.press(t, CallbackSlot, "12:00:00", 9)
	require.Equal(t, textExpired, out.Notice)
	require.Equal(t, Idle{User: ada}, h.current(t))
	require.Zero(t, h.ord.submitCount())
	require.Empty(t, h.msg.sent)
}

func TestInvalidStateResets(t *testing.T) {
	cases := []struct {
		name  string
		state State
		ev    Event
	}{
		{"text while idle", Idle{User: ada}, Event{Kind: EventText, Text: "pizza"}},
		{"order during onboarding", AwaitingLastName{FirstName: "Ada"}, Event{Kind: EventCommand, Command: CommandOrder}},
		{"unknown command", AwaitingFirstName{}, Event{Kind: EventCommand, Command: "/foo"}},
		{"text at meal prompt", AwaitingMealSelection{User: ada, IsoDate: "2024-03-04", PromptMessageID: 3}, Event{Kind: EventText, Text: "Linsen"}},
		{"wrong button on prompt", AwaitingMealSelection{User: ada, IsoDate: "2024-03-04", PromptMessageID: 3}, Event{Kind: EventCallback, CallbackKey: CallbackSlot, MessageID: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, tc.state)
			tc.ev.ChatID = chat
			out, err := h.m.Handle(context.Background(), tc.ev)
			require.NoError(t, err)
			require.Equal(t, AwaitingFirstName{}, out.To)
			require.Equal(t, []string{textInvalidState, textStart}, h.msg.texts())
		})
	}
}

func TestStateIndependentCommands(t *testing.T) {
	states := []State{
		AwaitingFirstName{},
		AwaitingEmail{FirstName: "Ada", LastName: "Lovelace"},
		Idle{User: ada},
		AwaitingSlotSelection{User: ada, IsoDate: "2024-03-04", MealHash: "abc123", PromptMessageID: 9},
	}
	for _, s := range states {
		t.Run(StateName(s), func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, s)

			h.command(t, CommandHelp, "")
			require.Equal(t, []string{"help!"}, h.msg.notified)
			require.Equal(t, s, h.current(t))

			out := h.command(t, CommandMenu, "")
			require.Equal(t, s, out.To)
			require.Equal(t, s, h.current(t))
			require.Equal(t, []string{"2024-03-04:\n  Hauptgericht: Linsen mit Spätzle\n2024-03-05:\n  Vegan: Curry"}, h.msg.texts())

			out = h.command(t, CommandStart, "")
			require.Equal(t, AwaitingFirstName{}, out.To)
			require.Equal(t, textStart, h.msg.last().text)
		})
	}
}

func TestFirstContactGreets(t *testing.T) {
	t.Run("callback", func(t *testing.T) {
		h := newHarness(t)
		out := h.press(t, CallbackMeal, "abc123", 1)
		require.Equal(t, textExpired, out.Notice)
		require.Equal(t, AwaitingFirstName{}, h.current(t))
		require.Equal(t, []string{textStart}, h.msg.texts())
	})
	t.Run("help before greeting", func(t *testing.T) {
		h := newHarness(t)
		h.command(t, CommandHelp, "")
		require.Equal(t, AwaitingFirstName{}, h.current(t))
		require.Equal(t, []string{"help!", textStart}, h.msg.texts())
		require.Empty(t, h.msg.notified)
	})
	t.Run("menu before greeting", func(t *testing.T) {
		h := newHarness(t)
		h.command(t, CommandMenu, "")
		require.Equal(t, int32(1), h.ord.menuCalls.Load())
		require.Equal(t, AwaitingFirstName{}, h.current(t))
		require.Equal(t, []string{
			"2024-03-04:\n  Hauptgericht: Linsen mit Spätzle\n2024-03-05:\n  Vegan: Curry",
			textStart,
		}, h.msg.texts())
	})
}

// flakyStore fails the first failures calls to Set.
type flakyStore struct {
	state.Store[State]

	mu       sync.Mutex
	failures int
	sets     int
}

func (f *flakyStore) Set(ctx context.Context, key int64, s State) error {
	f.mu.Lock()
	f.sets++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("db down")
	}
	return f.Store.Set(ctx, key, s)
}

func TestOrderCommitRetried(t *testing.T) {
	var flaky *flakyStore
	h := newHarness(t, func(o *Options) {
		flaky = &flakyStore{Store: o.Store, failures: 1}
		o.Store = flaky
	})
	h.seed(t, AwaitingSlotSelection{User: ada, IsoDate: "2024-03-04", MealHash: "abc123", PromptMessageID: 9})

	out := h.press(t, CallbackSlot, "12:00:00", 9)
	require.Equal(t, Idle{User: ada}, out.To)
	require.Equal(t, Idle{User: ada}, h.current(t))
	require.Equal(t, 2, flaky.sets)

	out = h.press(t, CallbackSlot, "12:00:00", 9)
	require.Equal(t, textExpired, out.Notice)
	require.Equal(t, 1, h.ord.submitCount())
}

func TestOrderNotRepeatedWhenCommitFails(t *testing.T) {
	var flaky *flakyStore
	h := newHarness(t, func(o *Options) {
		flaky = &flakyStore{Store: o.Store, failures: 100}
		o.Store = flaky
		o.CommitAttempts = 2
	})
	slotState := AwaitingSlotSelection{User: ada, IsoDate: "2024-03-04", MealHash: "abc123", PromptMessageID: 9}
	h.seed(t, slotState)

	ev := Event{ChatID: chat, Kind: EventCallback, CallbackKey: CallbackSlot, Payload: "12:00:00", MessageID: 9}
	_, err := h.m.Handle(context.Background(), ev)
	require.ErrorContains(t, err, "db down")
	require.Equal(t, slotState, h.current(t))
	require.Equal(t, 2, flaky.sets)

	out, err := h.m.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, textExpired, out.Notice)
	require.Equal(t, 1, h.ord.submitCount())

	// once a save goes through, the chat starts from the stored state again
	flaky.mu.Lock()
	flaky.failures = 0
	flaky.mu.Unlock()
	h.text(t, "hello")
	require.Equal(t, AwaitingFirstName{}, h.current(t))
}

func TestEffectFailureKeepsPreviousState(t *testing.T) {
	h := newHarness(t)
	prev := AwaitingMealSelection{User: ada, IsoDate: "2024-03-04", PromptMessageID: 5}
	h.seed(t, prev)
	h.msg.sendErr = errors.New("telegram: bad gateway")

	_, err := h.m.Handle(context.Background(), Event{ChatID: chat, Kind: EventCallback, CallbackKey: CallbackMeal, Payload: "abc123", MessageID: 5})
	require.Error(t, err)
	require.Equal(t, prev, h.current(t))
}

func TestSameChatEventsAreSerialized(t *testing.T) {
	h := newHarness(t)
	h.msg.delay = 2 * time.Millisecond
	h.seed(t, AwaitingFirstName{})

	var wg sync.WaitGroup
	for _, in := range []string{"Ada", "Lovelace", "ada@x.test"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := h.m.Handle(context.Background(), Event{ChatID: chat, Kind: EventText, Text: text})
			require.NoError(t, err)
		}(in)
	}
	wg.Wait()

	idle, ok := h.current(t).(Idle)
	require.True(t, ok, "got %T", h.current(t))
	require.ElementsMatch(t,
		[]string{"Ada", "Lovelace", "ada@x.test"},
		[]string{idle.User.FirstName, idle.User.LastName, idle.User.Email})
}

func TestDoublePressOrdersOnce(t *testing.T) {
	h := newHarness(t)
	h.seed(t, AwaitingSlotSelection{User: ada, IsoDate: "2024-03-04", MealHash: "abc123", PromptMessageID: 9})

	var (
		wg      sync.WaitGroup
		expired atomic.Int32
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.m.Handle(context.Background(), Event{ChatID: chat, Kind: EventCallback, CallbackKey: CallbackSlot, Payload: "12:00:00", MessageID: 9})
			require.NoError(t, err)
			if out.Notice == textExpired {
				expired.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, h.ord.submitCount())
	require.Equal(t, int32(3), expired.Load())
	require.Equal(t, Idle{User: ada}, h.current(t))
}
