package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/mensabot/core/logger"
	coretelegram "github.com/m3rciful/mensabot/core/telegram"
	"github.com/m3rciful/mensabot/core/telegram/callbacks"
	"github.com/m3rciful/mensabot/core/telegram/commands"
	tghelpers "github.com/m3rciful/mensabot/core/telegram/helpers"
	"github.com/m3rciful/mensabot/core/telegram/router"
	"github.com/m3rciful/mensabot/core/telegram/state"
	"github.com/m3rciful/mensabot/mensa"

	tele "gopkg.in/telebot.v4"
)

// App wires the conversation Machine into the Telegram runtime.
type App struct {
	cfg       *Config
	registry  *coretelegram.Registry
	machine   *Machine
	messenger *TeleMessenger
}

// NewApp builds the registry and the Machine. store keeps the dialogues;
// ordering is usually a *mensa.Client.
func NewApp(cfg *Config, store state.Store[State], ordering Ordering) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bot: nil config")
	}
	a := &App{
		cfg:       cfg,
		registry:  coretelegram.NewRegistry(),
		messenger: &TeleMessenger{},
	}
	machine, err := NewMachine(Options{
		Store:     store,
		Ordering:  ordering,
		Messenger: a.messenger,
		HelpText:  a.helpText,
		Location:  cfg.Location(),
		Logger:    logger.Bot,
	})
	if err != nil {
		return nil, err
	}
	a.machine = machine
	a.register()
	return a, nil
}

// NewMensaClient builds the ordering client from cfg.
func NewMensaClient(cfg *Config) (*mensa.Client, error) {
	opts := cfg.MensaOptions()
	opts.Logger = logger.Mensa
	return mensa.New(opts)
}

// Registry returns the command and callback registry.
func (a *App) Registry() *coretelegram.Registry { return a.registry }

func (a *App) register() {
	reg := a.registry
	reg.RegisterCommand(CommandHelp, commands.Command{Handler: a.onCommand(CommandHelp), Description: "Display this help text"})
	reg.RegisterCommand(CommandStart, commands.Command{Handler: a.onCommand(CommandStart), Description: "Restart the welcome dialog"})
	reg.RegisterCommand(CommandMenu, commands.Command{Handler: a.onCommand(CommandMenu), Description: "Show menu for the next days"})
	reg.RegisterCommand(CommandOrder, commands.Command{Handler: a.onCommand(CommandOrder), Description: "Display order form, optionally for a date"})

	_ = reg.RegisterCallback(CallbackMeal, a.onCallback)
	_ = reg.RegisterCallback(CallbackSlot, a.onCallback)
	reg.SetTextFallback(a.onText)
}

func (a *App) helpText() string {
	var b strings.Builder
	b.WriteString("These commands are supported:\n")
	for _, cmd := range a.registry.ListCommands(true) {
		b.WriteString("\n" + cmd.Text + " - " + cmd.Description)
	}
	return b.String()
}

func (a *App) handle(c tele.Context, ev Event) (Outcome, error) {
	ctx := tghelpers.BuildContext(c)
	ev.ChatID = tghelpers.ChatID(c)
	return a.machine.Handle(ctx, ev)
}

func (a *App) onCommand(name string) tele.HandlerFunc {
	return func(c tele.Context) error {
		var args string
		if msg := c.Message(); msg != nil {
			args = msg.Payload
		}
		_, err := a.handle(c, Event{Kind: EventCommand, Command: name, Args: args})
		return err
	}
}

// onText feeds free text to the conversation. Unregistered slash commands
// arrive here too and are passed on as commands.
func (a *App) onText(c tele.Context) error {
	text := c.Text()
	if strings.HasPrefix(text, "/") {
		name, args, _ := strings.Cut(text, " ")
		name, _, _ = strings.Cut(name, "@")
		_, err := a.handle(c, Event{Kind: EventCommand, Command: strings.ToLower(name), Args: strings.TrimSpace(args)})
		return err
	}
	_, err := a.handle(c, Event{Kind: EventText, Text: text})
	return err
}

func (a *App) onCallback(c tele.Context) error {
	key, payload := callbacks.ParseCallbackData(c.Callback())
	out, err := a.handle(c, Event{
		Kind:        EventCallback,
		CallbackKey: key,
		Payload:     payload,
		MessageID:   callbacks.MessageID(c),
	})
	if rerr := callbacks.Respond(c, out.Notice); rerr != nil && err == nil {
		logger.Debug(tghelpers.BuildContext(c), "bot", "callback.respond_failed", slog.String("err", rerr.Error()))
	}
	return err
}

// TelegramRunOptions assembles routes, middlewares and lifecycle hooks.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()

	var routes []coretelegram.Route
	routes = append(routes, router.CommandRoutes(a.registry)...)
	routes = append(routes, router.TextRoutes(a.registry, router.TextOptions{})...)
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Middlewares: coretelegram.DefaultMiddlewares(core, a.onLimited),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.messenger.Attach(rt.Bot, rt.Dispatcher)
			if err := rt.Bot.SetCommands(a.registry.ListCommands(true)); err != nil {
				logger.Warn(ctx, "bot", "set_commands",
					slog.String("outcome", "fail"),
					slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
				)
			}
			logger.Info(ctx, "bot", "attached",
				slog.Int("mensa_id", a.cfg.Mensa.ID),
				slog.Bool("dry_run", !a.cfg.Mensa.Production),
				slog.String("driver", a.cfg.Storage.Driver),
			)
			return nil
		},
	}, nil
}

func (a *App) onLimited(c tele.Context) error {
	if c.Callback() != nil {
		return callbacks.Respond(c, "Too many requests, please wait a moment.")
	}
	return nil
}
