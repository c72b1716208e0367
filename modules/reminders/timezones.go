package reminders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Per-user IANA timezones, used when parsing "when" input and for the
// /timezone get display. Users without a row get UTC.

func (m *Module) routeTimezone(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	opts := optionMap(sub.Options)

	switch sub.Name {
	case "set":
		m.handleTimezoneSet(s, i, opts)
	case "get":
		m.handleTimezoneGet(s, i, opts)
	case "clear":
		m.handleTimezoneClear(s, i)
	}
}

func (m *Module) handleTimezoneSet(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	user := interactionUser(i)
	if user == nil {
		return
	}

	name := opts["tz"].StringValue()
	if _, err := time.LoadLocation(name); err != nil {
		respond(s, i, fmt.Sprintf("Could not find timezone %q. Use an IANA name like Europe/London.", name), true)
		return
	}

	if err := m.storeSetTimezone(ctx, user.ID, name); err != nil {
		m.log.Error("set timezone failed", zap.Error(err), zap.String("user", user.ID))
		respond(s, i, "Something went wrong saving your timezone.", true)
		return
	}

	respond(s, i, fmt.Sprintf("Your timezone has been set to %s.", name), true)
}

func (m *Module) handleTimezoneGet(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()
	caller := interactionUser(i)
	if caller == nil {
		return
	}

	target := caller
	if o, ok := opts["user"]; ok {
		target = o.UserValue(s)
	}
	selfQuery := target.ID == caller.ID

	name, err := m.storeGetTimezone(ctx, target.ID)
	if err != nil {
		m.log.Error("get timezone failed", zap.Error(err), zap.String("user", target.ID))
		respond(s, i, "Something went wrong looking that up.", true)
		return
	}
	if name == "" {
		if selfQuery {
			respond(s, i, "You have not set your timezone.", true)
		} else {
			respond(s, i, fmt.Sprintf("%s has not set their timezone.", target.Username), true)
		}
		return
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc).Format("2006-01-02 03:04 PM")
	if selfQuery {
		respond(s, i, fmt.Sprintf("Your timezone is %q. The current time is %s.", name, now), true)
	} else {
		respond(s, i, fmt.Sprintf("The current time for %s is %s.", target.Username, now), true)
	}
}

func (m *Module) handleTimezoneClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	user := interactionUser(i)
	if user == nil {
		return
	}

	if err := m.storeClearTimezone(ctx, user.ID); err != nil {
		m.log.Error("clear timezone failed", zap.Error(err), zap.String("user", user.ID))
		respond(s, i, "Something went wrong clearing your timezone.", true)
		return
	}
	respond(s, i, "Your timezone has been cleared.", true)
}

// userLocation loads the user's configured location, defaulting to UTC.
func (m *Module) userLocation(ctx context.Context, userID string) *time.Location {
	name, err := m.storeGetTimezone(ctx, userID)
	if err != nil || name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ---- store ----

func (m *Module) storeSetTimezone(ctx context.Context, userID, name string) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO user_timezones (user_id, timezone)
		 VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET timezone = excluded.timezone`,
		userID, name,
	)
	return err
}

func (m *Module) storeGetTimezone(ctx context.Context, userID string) (string, error) {
	var name string
	err := m.db.QueryRowContext(ctx,
		`SELECT timezone FROM user_timezones WHERE user_id = ?`,
		userID,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

func (m *Module) storeClearTimezone(ctx context.Context, userID string) error {
	_, err := m.db.ExecContext(ctx,
		`DELETE FROM user_timezones WHERE user_id = ?`,
		userID,
	)
	return err
}
