// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package discord connects herald to Discord: it delivers announcements,
// answers chat commands and lists channels the bot can post to.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.astrophena.name/herald/internal/logger"

	"github.com/bwmarrin/discordgo"
)

// Intents are the gateway intents herald needs: guild and channel metadata
// for finding a destination, and message contents for commands.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

// sendPermissions are required on a channel to post announcements there.
const sendPermissions = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages

// api is the part of Discord herald talks to.
type api interface {
	// cachedChannel returns a channel from the gateway state.
	cachedChannel(id string) (*discordgo.Channel, error)
	// channel fetches a channel over REST.
	channel(ctx context.Context, id string) (*discordgo.Channel, error)
	// cachedGuilds returns guilds from the gateway state.
	cachedGuilds() []*discordgo.Guild
	// cachedPermissions returns the bot permissions in a channel computed from
	// the gateway state.
	cachedPermissions(channelID string) (int64, error)
	// guild, guildChannels and permissions use REST.
	guild(ctx context.Context, id string) (*discordgo.Guild, error)
	guildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	permissions(ctx context.Context, channelID string) (int64, error)
	send(ctx context.Context, channelID, text string) error
}

// Session is a connection to the Discord gateway.
type Session struct {
	dg  *discordgo.Session
	api api

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSession returns a Session authenticated with the bot token. It doesn't
// connect until [Session.Open] is called.
func NewSession(ctx context.Context, token string) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = Intents
	dg.LogLevel = discordgo.LogWarning
	discordgo.Logger = slogLogger(logger.Get(ctx).Logger)

	s := &Session{
		dg:    dg,
		api:   &sessionAPI{dg},
		ready: make(chan struct{}),
	}
	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		logger.Get(ctx).Info("connected to Discord", "user", r.User.String(), "guilds", len(r.Guilds))
		s.readyOnce.Do(func() { close(s.ready) })
	})
	return s, nil
}

// Open connects to the gateway.
func (s *Session) Open() error {
	if err := s.dg.Open(); err != nil {
		return fmt.Errorf("connecting to Discord: %w", err)
	}
	return nil
}

// Ready is closed once the gateway reports the session as ready.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Close disconnects from the gateway.
func (s *Session) Close() error { return s.dg.Close() }

// Notifier returns a Notifier delivering to channelID.
func (s *Session) Notifier(channelID string) *Notifier {
	return &Notifier{api: s.api, channelID: channelID}
}

// HandleCommands starts answering chat commands with c.
func (s *Session) HandleCommands(ctx context.Context, c *Commands) {
	s.dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		c.handle(ctx, s.api, m.Message)
	})
}

// Channels lists the channels of every guild the bot is in.
func (s *Session) Channels(ctx context.Context) ([]ChannelInfo, error) {
	return listChannels(ctx, s.api)
}

type sessionAPI struct{ s *discordgo.Session }

func (a *sessionAPI) cachedChannel(id string) (*discordgo.Channel, error) {
	return a.s.State.Channel(id)
}

func (a *sessionAPI) channel(ctx context.Context, id string) (*discordgo.Channel, error) {
	return a.s.Channel(id, discordgo.WithContext(ctx))
}

func (a *sessionAPI) cachedGuilds() []*discordgo.Guild {
	a.s.State.RLock()
	defer a.s.State.RUnlock()
	return append([]*discordgo.Guild(nil), a.s.State.Guilds...)
}

func (a *sessionAPI) cachedPermissions(channelID string) (int64, error) {
	return a.s.State.UserChannelPermissions(a.s.State.User.ID, channelID)
}

func (a *sessionAPI) guild(ctx context.Context, id string) (*discordgo.Guild, error) {
	return a.s.Guild(id, discordgo.WithContext(ctx))
}

func (a *sessionAPI) guildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	return a.s.GuildChannels(guildID, discordgo.WithContext(ctx))
}

func (a *sessionAPI) permissions(ctx context.Context, channelID string) (int64, error) {
	return a.s.UserChannelPermissions(a.s.State.User.ID, channelID, discordgo.WithContext(ctx))
}

func (a *sessionAPI) send(ctx context.Context, channelID, text string) error {
	_, err := a.s.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}

// slogLogger routes discordgo log messages to l.
func slogLogger(l *slog.Logger) func(msgL, caller int, format string, a ...any) {
	return func(msgL, _ int, format string, a ...any) {
		level := slog.LevelDebug
		switch msgL {
		case discordgo.LogError:
			level = slog.LevelError
		case discordgo.LogWarning:
			level = slog.LevelWarn
		case discordgo.LogInformational:
			level = slog.LevelInfo
		}
		l.Log(context.Background(), level, fmt.Sprintf(format, a...), "component", "discordgo")
	}
}
