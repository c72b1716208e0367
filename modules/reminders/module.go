package reminders

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/sho0pi/naturaltime"
	"go.uber.org/zap"

	"github.com/stellaria/remy/internal/timers"
)

// event name reminders are scheduled under; subscribers listen on its
// completion topic.
const eventName = "reminder"

type Module struct {
	db        *sql.DB
	store     *timers.SQLiteStore
	scheduler *timers.Scheduler
	bus       *timers.Bus
	log       *zap.Logger
	guildID   string // if set, commands register instantly for that guild
	parser    *naturaltime.Parser
}

func New(db *sql.DB, store *timers.SQLiteStore, scheduler *timers.Scheduler, bus *timers.Bus, log *zap.Logger, guildID string) (*Module, error) {
	parser, err := naturaltime.New()
	if err != nil {
		return nil, fmt.Errorf("naturaltime parser: %w", err)
	}
	return &Module{
		db:        db,
		store:     store,
		scheduler: scheduler,
		bus:       bus,
		log:       log,
		guildID:   guildID,
		parser:    parser,
	}, nil
}

func (m *Module) Name() string { return "reminders" }

func (m *Module) Register(s *discordgo.Session) error {
	s.AddHandler(m.onReady)
	s.AddHandler(m.onInteractionCreate)
	return nil
}

func (m *Module) Start(ctx context.Context, s *discordgo.Session) error {
	m.bus.Subscribe(timers.CompletionTopic(eventName), func(t *timers.Timer) {
		m.onReminderComplete(s, t)
	})
	return nil
}

// ---- command registration ----

func (m *Module) onReady(s *discordgo.Session, r *discordgo.Ready) {
	appID := ""
	if s.State != nil && s.State.User != nil {
		appID = s.State.User.ID
	}
	if appID == "" {
		m.log.Warn("cannot register commands: missing application ID")
		return
	}

	// Always delete old versions by name to avoid duplicates.
	_ = deleteCommandsByName(s, appID, m.guildID, "remind")
	_ = deleteCommandsByName(s, appID, m.guildID, "timezone")
	if m.guildID != "" {
		_ = deleteCommandsByName(s, appID, "", "remind")
		_ = deleteCommandsByName(s, appID, "", "timezone")
	}

	remindCmd := &discordgo.ApplicationCommand{
		Name:        "remind",
		Description: "Reminders to do something",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set",
				Description: "Set a reminder for later",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "when", Description: "When to be reminded (e.g. 'in 3 hours', 'next friday at 3pm')", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "text", Description: "What to be reminded of", Required: false},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "list",
				Description: "Show your 10 soonest reminders",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "delete",
				Description: "Delete one of your reminders by ID",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "id", Description: "Reminder ID (see /remind list)", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "clear",
				Description: "Delete all of your reminders",
			},
		},
	}
	if _, err := s.ApplicationCommandCreate(appID, m.guildID, remindCmd); err != nil {
		m.log.Error("command create failed", zap.String("command", "remind"), zap.Error(err))
	} else {
		m.log.Info("registered command", zap.String("command", "remind"))
	}

	timezoneCmd := &discordgo.ApplicationCommand{
		Name:        "timezone",
		Description: "Manage the timezone used for your reminders",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "set",
				Description: "Set your timezone",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "tz", Description: "IANA timezone name (e.g. Europe/London)", Required: true},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "get",
				Description: "Show the timezone of a user",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Defaults to yourself", Required: false},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "clear",
				Description: "Clear your timezone",
			},
		},
	}
	if _, err := s.ApplicationCommandCreate(appID, m.guildID, timezoneCmd); err != nil {
		m.log.Error("command create failed", zap.String("command", "timezone"), zap.Error(err))
	} else {
		m.log.Info("registered command", zap.String("command", "timezone"))
	}
}

func deleteCommandsByName(s *discordgo.Session, appID, guildID, name string) error {
	cmds, err := s.ApplicationCommands(appID, guildID)
	if err != nil {
		return err
	}
	for _, c := range cmds {
		if c != nil && c.Name == name {
			_ = s.ApplicationCommandDelete(appID, guildID, c.ID)
		}
	}
	return nil
}
