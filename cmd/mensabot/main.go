// Command mensabot runs the Telegram bot that orders to-go meals from the
// canteen.
package main

import (
	"log"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/m3rciful/mensabot/bot"
	"github.com/m3rciful/mensabot/core/bootstrap"
	corecmd "github.com/m3rciful/mensabot/core/cmd"
	"github.com/m3rciful/mensabot/core/telegram/state"
)

func main() {
	// .env is optional; variables already in the environment win.
	_ = godotenv.Load()

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return bot.LoadConfig(path)
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return setup(carrier.(*bot.Config))
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}

func setup(cfg *bot.Config) (*bot.App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Storage,
	})
	if err != nil {
		return nil, err
	}

	var store state.Store[bot.State] = state.NewMemory[bot.State]()
	if res.DB != nil {
		store = state.NewSQL[bot.State](res.DB, bot.Codec{})
	}

	client, err := bot.NewMensaClient(cfg)
	if err != nil {
		return nil, err
	}
	return bot.NewApp(cfg, store, client)
}
