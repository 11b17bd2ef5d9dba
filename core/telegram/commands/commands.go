package commands

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command is a registered slash command. Hidden commands are routed but
// left out of the Telegram command menu and the /help listing.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	Hidden      bool
	Aliases     []string
}

// HasAlias reports whether name, with or without the leading slash, is one
// of the command's aliases.
func (c Command) HasAlias(name string) bool {
	name = strings.TrimPrefix(name, "/")
	for _, alias := range c.Aliases {
		if strings.TrimPrefix(alias, "/") == name {
			return true
		}
	}
	return false
}
