package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/stellaria/remy/internal/timers"
)

func (m *Module) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	switch data.Name {
	case "remind":
		m.routeRemind(s, i, data)
	case "timezone":
		m.routeTimezone(s, i, data)
	}
}

func (m *Module) routeRemind(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	opts := optionMap(sub.Options)

	switch sub.Name {
	case "set":
		m.handleRemindSet(s, i, opts)
	case "list":
		m.handleRemindList(s, i)
	case "delete":
		m.handleRemindDelete(s, i, opts)
	case "clear":
		m.handleRemindClear(s, i)
	}
}

func (m *Module) handleRemindSet(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	user := interactionUser(i)
	if user == nil {
		return
	}

	whenArg := opts["when"].StringValue()
	text := "…"
	if o, ok := opts["text"]; ok && o.StringValue() != "" {
		text = o.StringValue()
	}

	loc := m.userLocation(ctx, user.ID)
	when, err := m.parseWhen(whenArg, time.Now().In(loc))
	if err != nil {
		respond(s, i, `I couldn't parse that time, sorry. Try something like "in 2 hours" or "next friday at 3pm".`, true)
		return
	}
	if !when.After(time.Now()) {
		respond(s, i, "That time is in the past.", true)
		return
	}

	// Backdate creation to the interaction's timestamp so the "set X ago"
	// delta on delivery matches what the user saw.
	created := time.Now().UTC()
	if ts, err := discordgo.SnowflakeTimestamp(i.ID); err == nil {
		created = ts.UTC()
	}

	timer, err := m.scheduler.Create(ctx, when, eventName,
		[]any{user.ID, i.ChannelID, text},
		timers.WithCreated(created),
		timers.WithKwargs(map[string]any{"interaction_id": i.ID}),
	)
	if err != nil {
		m.log.Error("create reminder failed", zap.Error(err), zap.String("user", user.ID))
		respond(s, i, "Something went wrong saving that reminder.", true)
		return
	}

	respond(s, i, fmt.Sprintf("Alright %s, %s: %s", user.Mention(), humanize.Time(timer.Expires), text), false)
}

func (m *Module) handleRemindList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	user := interactionUser(i)
	if user == nil {
		return
	}

	list, err := m.store.ListOwned(ctx, eventName, user.ID, 10)
	if err != nil {
		m.log.Error("list reminders failed", zap.Error(err), zap.String("user", user.ID))
		respond(s, i, "Something went wrong fetching your reminders.", true)
		return
	}
	if len(list) == 0 {
		respond(s, i, "No currently running reminders.", true)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Reminders",
		Color: 0x5865F2,
	}
	for _, t := range list {
		text := "…"
		if len(t.Args) > 2 {
			if v, ok := t.Args[2].(string); ok {
				text = v
			}
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%d: %s", t.ID, humanize.Time(t.Expires)),
			Value: truncate(text, 512),
		})
	}
	if len(list) == 10 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Only showing up to 10 reminders."}
	} else {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d %s.", len(list), plural(len(list), "reminder"))}
	}

	respondEmbed(s, i, embed)
}

func (m *Module) handleRemindDelete(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	user := interactionUser(i)
	if user == nil {
		return
	}

	id := opts["id"].IntValue()
	ok, err := m.store.DeleteOwned(ctx, id, eventName, user.ID)
	if err != nil {
		m.log.Error("delete reminder failed", zap.Error(err), zap.Int64("id", id))
		respond(s, i, "Something went wrong deleting that reminder.", true)
		return
	}
	if !ok {
		respond(s, i, "Could not delete any reminders with that ID.", true)
		return
	}

	// If the loop was sleeping on this one it must re-query.
	m.scheduler.InvalidateID(id)

	respond(s, i, "Successfully deleted reminder.", true)
}

func (m *Module) handleRemindClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	user := interactionUser(i)
	if user == nil {
		return
	}

	n, err := m.store.ClearOwned(ctx, eventName, user.ID)
	if err != nil {
		m.log.Error("clear reminders failed", zap.Error(err), zap.String("user", user.ID))
		respond(s, i, "Something went wrong clearing your reminders.", true)
		return
	}
	if n == 0 {
		respond(s, i, "You do not have any reminders to delete.", true)
		return
	}

	m.scheduler.Invalidate(func(t *timers.Timer) bool {
		author, ok := t.AuthorID()
		return ok && author == user.ID && t.Event == eventName
	})

	respond(s, i, fmt.Sprintf("Successfully deleted %d %s.", n, plural(int(n), "reminder")), true)
}

// parseWhen resolves natural-language input like "tomorrow at 9am" in the
// user's local time, falling back to Go duration syntax ("90m").
func (m *Module) parseWhen(input string, now time.Time) (time.Time, error) {
	if res, err := m.parser.ParseDate(input, now); err == nil && res != nil {
		return *res, nil
	}
	if d, err := time.ParseDuration(input); err == nil {
		return now.Add(d), nil
	}
	return time.Time{}, fmt.Errorf("could not parse time %q", input)
}

// ---- shared helpers ----

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		out[o.Name] = o
	}
	return out
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
