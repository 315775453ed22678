package cli

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/palaverhq/palaver/internal/backend"
	"github.com/palaverhq/palaver/internal/chattui"
	"github.com/palaverhq/palaver/internal/config"
	"github.com/palaverhq/palaver/internal/engine"
	"github.com/palaverhq/palaver/internal/logging"
	"github.com/palaverhq/palaver/internal/models"
)

func newChatCmd() *cobra.Command {
	var (
		channel string
		name    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a conversation against the in-process demo backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := mustConfig()
			if err != nil {
				return err
			}
			if name != "" {
				cfg.User.Name = name
			}
			return runChat(cfg, channel)
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "general", "channel to join")
	cmd.Flags().StringVar(&name, "name", "", "display name override")
	return cmd
}

func runChat(cfg *config.Config, channel string) error {
	userID, err := config.LoadOrCreateUserID(config.DefaultConfigDir())
	if err != nil {
		return fmt.Errorf("resolve user id: %w", err)
	}
	self := models.Sender{
		ID:     userID,
		Name:   cfg.User.Name,
		Avatar: cfg.User.Avatar,
		Color:  cfg.User.Color,
	}

	mem := backend.NewMemory(userID)
	seedDemoChannel(mem, channel)

	eng := engine.New(engine.Config{
		PageSize:               cfg.Engine.PageSize,
		PresencePollInterval:   cfg.Engine.PresencePollInterval,
		TypingIdleTimeout:      cfg.Engine.TypingIdleTimeout,
		ReadSettleDelay:        cfg.Engine.ReadSettleDelay,
		PresenceStateRetryBase: cfg.Engine.PresenceStateRetryBase,
		PresenceStateRetryMax:  cfg.Engine.PresenceStateRetryMax,
	}, mem, self)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(ctx)
	}()

	if err := eng.Activate(channel); err != nil {
		return fmt.Errorf("activate channel: %w", err)
	}

	app, err := chattui.New(eng)
	if err != nil {
		return err
	}
	defer app.Close()

	program := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}

	cancel()
	if err := <-runErr; err != nil && err != context.Canceled {
		logging.Logger.Warn().Err(err).Msg("engine loop exited with error")
	}
	return nil
}

// seedDemoChannel fills the loopback backend with enough history to exercise
// pagination and a second occupant for the roster.
func seedDemoChannel(mem *backend.Memory, channel string) {
	guide := models.Sender{ID: "guide", Name: "Guide", Color: "#7c9bd9"}
	payloads := make([]models.MessagePayload, 0, 25)
	for i := 1; i <= 24; i++ {
		payloads = append(payloads, models.MessagePayload{
			Text:      fmt.Sprintf("Archived note %d", i),
			Sender:    guide,
			Type:      "text",
			CreatedAt: time.Now().Add(-time.Duration(25-i) * time.Minute).UTC().Format(time.RFC3339),
		})
	}
	payloads = append(payloads, models.MessagePayload{
		Text:      "Welcome! This channel runs against the in-process demo backend.",
		Sender:    guide,
		Type:      "text",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	mem.SeedHistory(channel, guide.ID, payloads...)
	mem.InjectPresence(channel, backend.PresenceJoin, guide.ID, &models.PresenceState{
		ID:   guide.ID,
		Name: guide.Name,
	})
}
