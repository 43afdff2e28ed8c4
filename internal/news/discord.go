package news

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// DiscordAnnouncer mirrors system news lines into a Discord channel.
// Strictly best-effort: construction and sends log failures and move on.
type DiscordAnnouncer struct {
	session *discordgo.Session
	channel string
	log     *slog.Logger
}

func NewDiscordAnnouncer(botToken, channelID string, logger *slog.Logger) (*DiscordAnnouncer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordAnnouncer{session: session, channel: channelID, log: logger}, nil
}

// Announce posts a line to the configured channel. Errors are logged, never
// returned; a dead webhook must not affect the game.
func (a *DiscordAnnouncer) Announce(line string) {
	if a == nil {
		return
	}
	if _, err := a.session.ChannelMessageSend(a.channel, line); err != nil {
		a.log.Warn("discord announce failed", "err", err)
	}
}
