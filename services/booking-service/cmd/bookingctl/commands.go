package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(cmd.Context()); err != nil {
			return err
		}
		color.Green("migrations applied (%s)", driver)
		return nil
	},
}

var (
	demoProvider string
	demoTimezone string
)

var seedDemoCmd = &cobra.Command{
	Use:   "seed-demo",
	Short: "Create a demo provider with weekday hours and two offerings",
	Long: `Create a demo provider open Monday to Friday 09:00-17:00 with:
  <provider>-consult  30 minute one-on-one in the shared pool
  <provider>-class    60 minute group class (capacity 5, weekly recurrence up to 8)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}

		if err := store.UpsertProvider(ctx, model.Provider{ID: demoProvider, Timezone: demoTimezone, MaxConcurrentClients: 1}); err != nil {
			return err
		}
		rules := make([]model.WeeklyRule, 0, 5)
		for dow := 1; dow <= 5; dow++ {
			rules = append(rules, model.WeeklyRule{DayOfWeek: dow, StartTime: "09:00", EndTime: "17:00"})
		}
		if err := store.ReplaceWeeklyRules(ctx, demoProvider, rules); err != nil {
			return err
		}
		offerings := []model.Offering{
			{ID: demoProvider + "-consult", ProviderID: demoProvider, Name: "Consultation", DurationMinutes: 30, Capacity: 1, MinNoticeMinutes: 60},
			{
				ID: demoProvider + "-class", ProviderID: demoProvider, Name: "Group class", DurationMinutes: 60,
				BufferMinutes: 15, Capacity: 5, RecurrenceEnabled: true, MaxRecurrence: 8,
				ConcurrencyEnabled: true, MaxConcurrency: 5,
			},
		}
		for _, o := range offerings {
			if err := store.UpsertOffering(ctx, o); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", color.CyanString("offering"), o.ID)
		}
		color.Green("seeded provider %s (%s)", demoProvider, demoTimezone)
		return nil
	},
}

var (
	slotsDate string
	slotsTZ   string
)

var slotsCmd = &cobra.Command{
	Use:   "slots <offering-id>",
	Short: "Print bookable slots for an offering",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		engine := booking.New(store, booking.Deps{Logger: logger, SyncSideEffects: true})
		slots, err := engine.ListSlots(ctx, args[0], slotsDate, slotsTZ)
		if err != nil {
			return fmt.Errorf("%s: %w", booking.Reason(err), err)
		}
		if len(slots) == 0 {
			color.Yellow("no slots on %s (%s)", slotsDate, slotsTZ)
			return nil
		}
		for _, s := range slots {
			remaining := color.GreenString("%d left", s.Remaining)
			if s.Remaining == 1 {
				remaining = color.YellowString("1 left")
			}
			fmt.Printf("%s  %s\n", s.Start.Format("15:04 MST"), remaining)
		}
		return nil
	},
}

func init() {
	seedDemoCmd.Flags().StringVar(&demoProvider, "provider", "demo", "provider id")
	seedDemoCmd.Flags().StringVar(&demoTimezone, "timezone", "America/New_York", "provider IANA zone")

	slotsCmd.Flags().StringVar(&slotsDate, "date", time.Now().Format("2006-01-02"), "date (YYYY-MM-DD)")
	slotsCmd.Flags().StringVar(&slotsTZ, "tz", "UTC", "requested IANA zone")
}
