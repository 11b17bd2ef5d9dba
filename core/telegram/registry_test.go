package telegram

import (
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/mensabot/core/telegram/commands"
)

func noop(tele.Context) error { return nil }

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/order", commands.Command{Handler: noop, Description: "Order a meal", Aliases: []string{"bestellen"}})
	reg.RegisterCommand("/help", commands.Command{Handler: noop, Description: "Show help"})
	reg.RegisterCommand("/debug", commands.Command{Handler: noop, Description: "Internal", Hidden: true})
	reg.RegisterCommand("menu", commands.Command{Handler: noop, Description: "no slash"})
	reg.RegisterCommand("/help", commands.Command{Handler: noop, Description: "duplicate"})

	visible := reg.ListCommands(true)
	require.Equal(t, []tele.Command{
		{Text: "/help", Description: "Show help"},
		{Text: "/order", Description: "Order a meal"},
	}, visible)
	require.Len(t, reg.ListCommands(false), 3)

	key, _, ok := reg.LookupCommand("/order 2024-03-04")
	require.True(t, ok)
	require.Equal(t, "/order", key)

	key, _, ok = reg.LookupCommand("/bestellen")
	require.True(t, ok)
	require.Equal(t, "/order", key)

	_, _, ok = reg.LookupCommand("Ada")
	require.False(t, ok)
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCallback("meal", noop))
	require.NoError(t, reg.RegisterCallback("slot", noop))
	require.Error(t, reg.RegisterCallback("meal", noop))
	require.Error(t, reg.RegisterCallback("", noop))

	_, ok := reg.GetCallback("slot")
	require.True(t, ok)
	require.Equal(t, []string{"meal", "slot"}, reg.ListCallbacks())
	require.NotNil(t, reg.CallbackNotFound())
}
