package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"formpilot/pkg/chat"
	"formpilot/pkg/scheduler"
	"formpilot/pkg/session"
)

var (
	fillUser int64
	fillLink string
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Submit a user's form once, answering from their saved preferences",
	Long: `Runs the same unattended traversal a scheduled job runs, for a user who already has a
session. Questions without a usable saved answer are skipped when optional and abort the run
when required.`,
	RunE: runFill,
}

func init() {
	fillCmd.Flags().Int64Var(&fillUser, "user", 0, "chat user ID whose session is used")
	fillCmd.Flags().StringVar(&fillLink, "link", "", "form link to use instead of the stored one")
	_ = fillCmd.MarkFlagRequired("user")
}

func runFill(cmd *cobra.Command, _ []string) error {
	cfg, flush, err := loadConfig()
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Error("shutdown: %v", cerr)
		}
	}()

	if fillLink != "" {
		if err := setLink(ctx, a, fillLink); err != nil {
			return err
		}
	}

	outcome := a.bridge.Fire(ctx, scheduler.Job{ID: "cli", UserID: fillUser, Name: "Manual fill"})
	fmt.Fprintf(cmd.OutOrStdout(), "user %d: %s\n", fillUser, outcome)
	switch outcome {
	case scheduler.FireDone:
		return nil
	case scheduler.FireNoSession:
		return fmt.Errorf("user %d has no stored session, start the bot with /start first", fillUser)
	case scheduler.FireBusy:
		return errors.New("a submission is already in progress for this user")
	default:
		return errors.New("the form could not be submitted, see the log for details")
	}
}

func setLink(ctx context.Context, a *app, link string) error {
	link, err := chat.ValidateLink(link)
	if err != nil {
		return err
	}
	s, err := a.sessions.Lookup(ctx, fillUser)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return fmt.Errorf("user %d has no stored session, start the bot with /start first", fillUser)
		}
		return err
	}
	if err := s.SetLink(link); err != nil {
		return err
	}
	return a.sessions.Persist(ctx, s)
}
