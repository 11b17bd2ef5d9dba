package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/m3rciful/mensabot/core/buildinfo"
	"github.com/m3rciful/mensabot/mensa"
)

type clientFlags struct {
	mensaID    int
	baseURL    string
	slotsURL   string
	language   string
	production bool
	timeout    time.Duration
}

func (f *clientFlags) client() (*mensa.Client, error) {
	return mensa.New(mensa.Options{
		MensaID:  f.mensaID,
		BaseURL:  f.baseURL,
		SlotsURL: f.slotsURL,
		Language: f.language,
		DryRun:   !f.production,
		Timeout:  f.timeout,
	})
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &clientFlags{}
	root := &cobra.Command{
		Use:           "mensactl",
		Short:         "Query the canteen to-go backend",
		Long:          `mensactl prints the canteen menu and free pickup slots and places to-go orders. Orders are simulated unless --production is given.`,
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.IntVar(&flags.mensaID, "mensa-id", mensa.DefaultMensaID, "Canteen id")
	pf.StringVar(&flags.baseURL, "base-url", mensa.DefaultBaseURL, "Menu and order backend")
	pf.StringVar(&flags.slotsURL, "slots-url", mensa.DefaultSlotsURL, "Free slots endpoint")
	pf.StringVar(&flags.language, "language", mensa.DefaultLanguage, "Menu language")
	pf.BoolVar(&flags.production, "production", false, "Really submit orders")
	pf.DurationVar(&flags.timeout, "timeout", 15*time.Second, "Per request timeout")

	root.AddCommand(newMenuCmd(flags), newSlotsCmd(flags), newOrderCmd(flags))
	return root
}

func newMenuCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Print the menu of the coming days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			_, menu, err := c.FetchMenu(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, menu.Name)
			for _, day := range menu.Days {
				fmt.Fprintf(w, "%s (%s)\n", day.IsoDate, day.DisplayDate)
				for _, meal := range day.Meals {
					fmt.Fprintf(w, "  %s  %s\n", meal.Hash, meal.CombinedName())
				}
			}
			return nil
		},
	}
}

func newSlotsCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "slots <email> <date>",
		Short: "Print the pickup slots of a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			slots, err := c.FetchFreeSlots(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(slots) == 0 {
				fmt.Fprintln(w, "no slots")
			}
			for _, s := range slots {
				fmt.Fprintln(w, s.String())
			}
			return nil
		},
	}
}

func newOrderCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "order <date> <meal-hash> <time> <first-name> <last-name> <email>",
		Short: "Order one meal for a pickup slot",
		Args:  cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			profile := mensa.Profile{FirstName: args[3], LastName: args[4], Email: args[5]}
			conf, err := c.SubmitOrder(cmd.Context(), args[0], args[1], profile, args[2])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if conf.DryRun {
				fmt.Fprintf(w, "dry run %s: %s at %s, nothing sent\n", conf.Attempt, conf.Meal.CombinedName(), conf.Slot.Label)
				return nil
			}
			fmt.Fprintf(w, "ordered %s: %s at %s\n", conf.Attempt, conf.Meal.CombinedName(), conf.Slot.Label)
			if s := strings.TrimSpace(conf.Summary()); s != "" {
				fmt.Fprintln(w, s)
			}
			return nil
		},
	}
}
