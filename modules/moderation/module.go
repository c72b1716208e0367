package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"github.com/sho0pi/naturaltime"
	"go.uber.org/zap"

	"github.com/stellaria/remy/internal/timers"
)

// tempbanEvent timers carry args = [modID, guildID, userID] and an
// optional "reason" kwarg. The ban is applied immediately; the timer's
// completion lifts it, surviving restarts through the durable store.
const tempbanEvent = "tempban"

type Module struct {
	scheduler *timers.Scheduler
	bus       *timers.Bus
	log       *zap.Logger
	guildID   string
	parser    *naturaltime.Parser
}

func New(scheduler *timers.Scheduler, bus *timers.Bus, log *zap.Logger, guildID string) (*Module, error) {
	parser, err := naturaltime.New()
	if err != nil {
		return nil, fmt.Errorf("naturaltime parser: %w", err)
	}
	return &Module{
		scheduler: scheduler,
		bus:       bus,
		log:       log,
		guildID:   guildID,
		parser:    parser,
	}, nil
}

func (m *Module) Name() string { return "moderation" }

func (m *Module) Register(s *discordgo.Session) error {
	s.AddHandler(m.onReady)
	s.AddHandler(m.onInteractionCreate)
	return nil
}

func (m *Module) Start(ctx context.Context, s *discordgo.Session) error {
	m.bus.Subscribe(timers.CompletionTopic(tempbanEvent), func(t *timers.Timer) {
		m.onTempbanComplete(s, t)
	})
	return nil
}

func (m *Module) onReady(s *discordgo.Session, r *discordgo.Ready) {
	appID := ""
	if s.State != nil && s.State.User != nil {
		appID = s.State.User.ID
	}
	if appID == "" {
		m.log.Warn("cannot register commands: missing application ID")
		return
	}

	_ = deleteCommandsByName(s, appID, m.guildID, "tempban")
	if m.guildID != "" {
		_ = deleteCommandsByName(s, appID, "", "tempban")
	}

	banMembers := int64(discordgo.PermissionBanMembers)
	cmd := &discordgo.ApplicationCommand{
		Name:                     "tempban",
		Description:              "Ban a member until a given time",
		DefaultMemberPermissions: &banMembers,
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to ban", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "until", Description: "When to unban (e.g. 'in 3 days', 'next monday')", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for the ban", Required: false},
		},
	}
	if _, err := s.ApplicationCommandCreate(appID, m.guildID, cmd); err != nil {
		m.log.Error("command create failed", zap.String("command", "tempban"), zap.Error(err))
	} else {
		m.log.Info("registered command", zap.String("command", "tempban"))
	}
}

func (m *Module) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "tempban" {
		return
	}
	m.handleTempban(s, i, data)
}

func (m *Module) handleTempban(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	ctx := context.Background()
	if i.GuildID == "" {
		respond(s, i, "This command only works in a server.")
		return
	}

	var (
		target *discordgo.User
		until  string
		reason string
	)
	for _, o := range data.Options {
		switch o.Name {
		case "user":
			target = o.UserValue(s)
		case "until":
			until = o.StringValue()
		case "reason":
			reason = o.StringValue()
		}
	}
	if target == nil || until == "" {
		return
	}

	when, err := m.parseWhen(until, time.Now())
	if err != nil {
		respond(s, i, `I couldn't parse that time, sorry. Try something like "in 3 days".`)
		return
	}
	if !when.After(time.Now()) {
		respond(s, i, "That time is in the past.")
		return
	}

	mod := interactionUser(i)
	if mod == nil {
		return
	}

	if err := s.GuildBanCreateWithReason(i.GuildID, target.ID, reason, 0); err != nil {
		m.log.Error("ban failed", zap.Error(err), zap.String("user", target.ID))
		respond(s, i, "Banning that member failed. Check role hierarchy and permissions.")
		return
	}

	created := time.Now().UTC()
	if ts, err := discordgo.SnowflakeTimestamp(i.ID); err == nil {
		created = ts.UTC()
	}

	_, err = m.scheduler.Create(ctx, when, tempbanEvent,
		[]any{mod.ID, i.GuildID, target.ID},
		timers.WithCreated(created),
		timers.WithKwargs(map[string]any{"reason": reason}),
	)
	if err != nil {
		m.log.Error("schedule unban failed", zap.Error(err), zap.String("user", target.ID))
		respond(s, i, "Member banned, but scheduling the unban failed. You will have to unban manually.")
		return
	}

	respond(s, i, fmt.Sprintf("Banned %s, lifting %s.", target.Username, humanize.Time(when)))
}

func (m *Module) onTempbanComplete(s *discordgo.Session, t *timers.Timer) {
	if len(t.Args) < 3 {
		m.log.Warn("tempban timer with malformed payload", zap.Int64("id", t.ID))
		return
	}
	guildID, _ := t.Args[1].(string)
	userID, _ := t.Args[2].(string)
	if guildID == "" || userID == "" {
		m.log.Warn("tempban timer with missing IDs", zap.Int64("id", t.ID))
		return
	}

	if err := s.GuildBanDelete(guildID, userID); err != nil {
		m.log.Warn("unban failed",
			zap.Int64("id", t.ID),
			zap.String("guild", guildID),
			zap.String("user", userID),
			zap.Error(err))
		return
	}
	m.log.Info("tempban lifted", zap.String("guild", guildID), zap.String("user", userID))
}

func (m *Module) parseWhen(input string, now time.Time) (time.Time, error) {
	if res, err := m.parser.ParseDate(input, now); err == nil && res != nil {
		return *res, nil
	}
	if d, err := time.ParseDuration(input); err == nil {
		return now.Add(d), nil
	}
	return time.Time{}, fmt.Errorf("could not parse time %q", input)
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
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
