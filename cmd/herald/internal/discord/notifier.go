// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package discord

import (
	"context"
	"fmt"

	"go.astrophena.name/herald/cmd/herald/internal/engine"
	"go.astrophena.name/herald/internal/logger"

	"github.com/bwmarrin/discordgo"
)

// Notifier delivers messages to a Discord channel.
type Notifier struct {
	api       api
	channelID string
}

var _ engine.Notifier = (*Notifier)(nil)

// ResolveDestination finds the channel to post to. It tries the configured
// channel from the gateway cache, then over REST, and finally falls back to
// the first text channel in any guild where the bot can view the channel and
// send messages.
func (n *Notifier) ResolveDestination(ctx context.Context) (engine.Destination, error) {
	log := logger.Get(ctx)

	if n.channelID != "" {
		if c, err := n.api.cachedChannel(n.channelID); err == nil {
			return destination(c, ""), nil
		}
		c, err := n.api.channel(ctx, n.channelID)
		if err == nil {
			return destination(c, ""), nil
		}
		log.Warn("configured channel unavailable, looking for another", "channel_id", n.channelID, "error", err)
	}

	for _, g := range n.api.cachedGuilds() {
		for _, c := range g.Channels {
			if c.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			perms, err := n.api.cachedPermissions(c.ID)
			if err != nil || perms&sendPermissions != sendPermissions {
				continue
			}
			return destination(c, g.Name), nil
		}
	}
	return engine.Destination{}, engine.ErrNoDestination
}

func destination(c *discordgo.Channel, guild string) engine.Destination {
	name := "#" + c.Name
	if guild != "" {
		name += " (" + guild + ")"
	}
	return engine.Destination{ID: c.ID, Name: name}
}

// Send posts text to dest.
func (n *Notifier) Send(ctx context.Context, dest engine.Destination, text string) error {
	if err := n.api.send(ctx, dest.ID, truncate(text, maxMessageLen)); err != nil {
		return fmt.Errorf("sending to %s: %w", dest, err)
	}
	return nil
}

// maxMessageLen is the longest message Discord accepts, in characters.
const maxMessageLen = 2000

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
