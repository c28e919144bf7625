// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// ChannelInfo describes a text channel the bot can see.
type ChannelInfo struct {
	GuildID   string `json:"guild_id"`
	GuildName string `json:"guild_name"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	// Writable means the bot can view the channel and send messages to it.
	Writable bool `json:"writable"`
}

func (c ChannelInfo) String() string {
	mode := "read-only"
	if c.Writable {
		mode = "writable"
	}
	return fmt.Sprintf("%s\t%s\t#%s (%s)\t%s", c.GuildName, c.ID, c.Name, c.GuildID, mode)
}

func listChannels(ctx context.Context, api api) ([]ChannelInfo, error) {
	var out []ChannelInfo
	for _, cg := range api.cachedGuilds() {
		g, err := api.guild(ctx, cg.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching guild %s: %w", cg.ID, err)
		}
		channels, err := api.guildChannels(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("fetching channels of guild %q: %w", g.Name, err)
		}
		for _, c := range channels {
			if c.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			perms, err := api.permissions(ctx, c.ID)
			if err != nil {
				return nil, fmt.Errorf("fetching permissions in #%s: %w", c.Name, err)
			}
			out = append(out, ChannelInfo{
				GuildID:   g.ID,
				GuildName: g.Name,
				ID:        c.ID,
				Name:      c.Name,
				Writable:  perms&sendPermissions == sendPermissions,
			})
		}
	}
	return out, nil
}
