package reminders

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/stellaria/remy/internal/timers"
)

// onReminderComplete delivers a fired reminder to its origin channel,
// falling back to a DM if the channel is gone or unwritable. Delivery is
// best-effort: the timer is spent either way.
func (m *Module) onReminderComplete(s *discordgo.Session, t *timers.Timer) {
	if len(t.Args) < 3 {
		m.log.Warn("reminder timer with malformed payload", zap.Int64("id", t.ID))
		return
	}

	authorID, ok := t.AuthorID()
	if !ok {
		m.log.Warn("reminder timer without author", zap.Int64("id", t.ID))
		return
	}
	channelID, _ := t.Args[1].(string)
	text, _ := t.Args[2].(string)

	msg := fmt.Sprintf("⏰ <@%s>, %s: %s", authorID, t.HumanDelta(), text)

	if channelID != "" {
		if _, err := s.ChannelMessageSend(channelID, msg); err == nil {
			return
		}
	}

	dm, err := s.UserChannelCreate(authorID)
	if err != nil {
		m.log.Warn("reminder delivery failed",
			zap.Int64("id", t.ID),
			zap.String("user", authorID),
			zap.Error(err))
		return
	}
	if _, err := s.ChannelMessageSend(dm.ID, msg); err != nil {
		m.log.Warn("reminder DM delivery failed",
			zap.Int64("id", t.ID),
			zap.String("user", authorID),
			zap.Error(err))
	}
}
