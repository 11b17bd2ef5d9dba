package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/mensabot/mensa"
)

const (
	textStart         = "Hello! Please enter your first name."
	textInvalidState  = "Sorry, an error has ocurred in the bot! Restarting dialogue."
	textNoDate        = "Error finding correct order date..."
	textNoSlots       = "No free slots are available!"
	textSelectSlot    = "Select Time Slot"
	textOrdered       = "Ordered!"
	textOrderedDryRun = "Ordered! (test mode, nothing was sent to the canteen)"
	textExpired       = "This selection has expired."
	textUnavailable   = "The canteen service is not reachable right now. Please try again later."
	textMealGone      = "This meal is no longer on the menu. Please start again with /order."
	textSlotGone      = "This time slot does not exist anymore. Please start again with /order."
	textSlotFull      = "Time slot full! Please start again with /order."
	textFailed        = "Something went wrong. Please try again later."

	maxMessageLen = 4000
)

func textAskLastName(first string) string {
	return fmt.Sprintf("Thanks, %s! Please enter your last name.", first)
}

func textAskEmail(first, last string) string {
	return fmt.Sprintf("Thank you, %s %s! Please enter your email address.", first, last)
}

func textSetupDone(p mensa.Profile) string {
	return fmt.Sprintf("This completes the setup! If the following is incorrect, please restart the setup using /start.\n"+
		"First name: \"%s\"\nLast name: \"%s\"\nEmail: \"%s\"", p.FirstName, p.LastName, p.Email)
}

func textChooseMeal(isoDate string) string {
	return "Choose Meal for " + isoDate
}

func textNoMeals(isoDate string) string {
	return "There are no meals to order on " + isoDate + "."
}

func textOrdering(slot string) string {
	return "Ordering for " + slot + "..."
}

func slotButtonText(s mensa.Slot) string {
	return fmt.Sprintf("%s (%d free)", s.Label, s.Free)
}

// errorText maps a failed remote call to the message shown to the user.
func errorText(err error) string {
	switch {
	case errors.Is(err, mensa.ErrDayNotFound):
		return textNoDate
	case errors.Is(err, mensa.ErrMealNotFound):
		return textMealGone
	case errors.Is(err, mensa.ErrSlotNotFound):
		return textSlotGone
	case errors.Is(err, mensa.ErrSlotFull):
		return textSlotFull
	case errors.Is(err, mensa.ErrRemoteUnavailable), errors.Is(err, mensa.ErrRemoteFormat):
		return textUnavailable
	}
	return textFailed
}

// hiddenFromMenu reports categories left out of the /menu listing.
func hiddenFromMenu(item mensa.MenuItem) bool {
	name := item.CombinedName()
	return strings.Contains(name, "Dessert") || strings.Contains(name, "Beilage")
}

// menuListing renders the menu as one or more messages. Days are never
// split across messages.
func menuListing(menu *mensa.Menu) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, day := range menu.Days {
		var b strings.Builder
		b.WriteString(day.IsoDate + ":\n")
		for _, meal := range day.Meals {
			if hiddenFromMenu(meal) {
				continue
			}
			b.WriteString("  " + meal.CombinedName() + "\n")
		}
		if cur.Len() > 0 && cur.Len()+b.Len() > maxMessageLen {
			out = append(out, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
		}
		cur.WriteString(b.String())
	}
	if cur.Len() > 0 {
		out = append(out, strings.TrimRight(cur.String(), "\n"))
	}
	if len(out) == 0 {
		out = append(out, "The menu is empty.")
	}
	return out
}
