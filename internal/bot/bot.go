package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Module interface {
	Name() string
	Register(s *discordgo.Session) error
	Start(ctx context.Context, s *discordgo.Session) error
}

type Runner struct {
	Session *discordgo.Session
	Modules []Module

	log     *zap.Logger
	guildID string

	cleanupOnce sync.Once
}

func NewRunner(token, guildID string, log *zap.Logger, modules []Module) (*Runner, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	// Guilds for command registration, members + bans for moderation,
	// messages so reminder deliveries can reach their origin channels.
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsGuildMessages

	return &Runner{
		Session: s,
		Modules: modules,
		log:     log,
		guildID: guildID,
	}, nil
}

// Run registers and starts every module, opens the gateway session, and
// blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	// Old GLOBAL slash commands can hang around and show as duplicates
	// alongside GUILD commands when running single-guild. Wipe them once
	// on Ready when a guild ID is configured.
	r.Session.AddHandler(r.onReadyGlobalCommandCleanup)

	for _, m := range r.Modules {
		if err := m.Register(r.Session); err != nil {
			return fmt.Errorf("register %s: %w", m.Name(), err)
		}
		r.log.Info("registered module", zap.String("module", m.Name()))
	}

	if err := r.Session.Open(); err != nil {
		return err
	}
	defer r.Session.Close()

	for _, m := range r.Modules {
		if err := m.Start(ctx, r.Session); err != nil {
			return fmt.Errorf("start %s: %w", m.Name(), err)
		}
		r.log.Info("started module", zap.String("module", m.Name()))
	}

	r.log.Info("bot is running")
	<-ctx.Done()
	return nil
}

func (r *Runner) onReadyGlobalCommandCleanup(s *discordgo.Session, _ *discordgo.Ready) {
	r.cleanupOnce.Do(func() {
		if r.guildID == "" {
			// Not in single-guild mode. Do nothing.
			return
		}

		appID := ""
		if s.State != nil && s.State.User != nil {
			appID = s.State.User.ID
		}
		if appID == "" {
			r.log.Warn("global command cleanup skipped: missing application ID")
			return
		}

		// Bulk overwrite GLOBAL commands with an empty list = delete all globals.
		if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
			r.log.Warn("global command cleanup failed", zap.Error(err))
			return
		}

		r.log.Info("cleared all global slash commands", zap.String("guild", r.guildID))
	})
}
