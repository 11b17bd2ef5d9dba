package router

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/mensabot/core/telegram"
	"github.com/m3rciful/mensabot/core/telegram/commands"
)

type codedErr struct{}

func (codedErr) Error() string { return "slot full" }
func (codedErr) Code() string  { return "slot full" }

func TestDeriveErrorCode(t *testing.T) {
	require.Equal(t, "", deriveErrorCode(nil))
	require.Equal(t, "SLOT_FULL", deriveErrorCode(fmt.Errorf("order: %w", codedErr{})))
	require.Equal(t, "ERRORSTRING", deriveErrorCode(errors.New("x")))
}

func TestNormalizeHandlerName(t *testing.T) {
	require.Equal(t, "order", normalizeHandlerName("/Order"))
	require.Equal(t, "unknown", normalizeHandlerName(" "))
	require.Equal(t, "meal_choice", normalizeHandlerName("meal choice"))
}

func offlineContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return bot.NewContext(upd)
}

func TestTextRoutesPrefersConversationForBareWords(t *testing.T) {
	reg := tg.NewRegistry()
	var hit string
	reg.RegisterCommand("/menu", commands.Command{
		Handler:     func(tele.Context) error { hit = "menu"; return nil },
		Description: "Show the menu",
		Aliases:     []string{"speiseplan"},
	})
	reg.SetTextFallback(func(tele.Context) error { hit = "conversation"; return nil })
	route := TextRoutes(reg, TextOptions{})[0]
	require.Equal(t, tele.OnText, route.Endpoint)

	msg := func(text string) tele.Update {
		return tele.Update{ID: 1, Message: &tele.Message{Sender: &tele.User{ID: 5}, Chat: &tele.Chat{ID: 5}, Text: text}}
	}

	require.NoError(t, route.Handler(offlineContext(t, msg("menu"))))
	require.Equal(t, "conversation", hit)

	require.NoError(t, route.Handler(offlineContext(t, msg("/speiseplan"))))
	require.Equal(t, "menu", hit)
}
