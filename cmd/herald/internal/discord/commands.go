// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package discord

import (
	"context"
	"strings"

	"go.astrophena.name/herald/cmd/herald/internal/content"
	"go.astrophena.name/herald/cmd/herald/internal/message"
	"go.astrophena.name/herald/internal/logger"

	"github.com/bwmarrin/discordgo"
)

// Commands answers chat commands asking for the last announced item:
// !last_<source> for every source, plus !last_video and !latest for the
// first feed source.
type Commands struct {
	sources []*content.Source
	last    func(source string) (id string, ok bool)
	aliases map[string]*content.Source
}

// NewCommands returns Commands for sources. last returns the last announced
// item of a source.
func NewCommands(sources []*content.Source, last func(source string) (string, bool)) *Commands {
	c := &Commands{
		sources: sources,
		last:    last,
		aliases: make(map[string]*content.Source),
	}
	for _, src := range sources {
		if src.Kind == content.Feed {
			c.aliases["!last_video"] = src
			c.aliases["!latest"] = src
			break
		}
	}
	return c
}

// Reply returns the reply to msg, or false if msg isn't a command.
func (c *Commands) Reply(msg string) (string, bool) {
	msg = strings.ToLower(strings.TrimSpace(msg))
	if !strings.HasPrefix(msg, "!") {
		return "", false
	}

	// The longest matching name wins, so "!last_tiktok" isn't taken by a
	// source named "tik".
	var (
		match *content.Source
		best  int
	)
	try := func(cmd string, src *content.Source) {
		if strings.HasPrefix(msg, cmd) && len(cmd) > best {
			match, best = src, len(cmd)
		}
	}
	for _, src := range c.sources {
		try("!last_"+strings.ToLower(src.Name), src)
	}
	for cmd, src := range c.aliases {
		try(cmd, src)
	}
	if match == nil {
		return "", false
	}

	id, _ := c.last(match.Name)
	return message.LastKnown(match, id), true
}

func (c *Commands) handle(ctx context.Context, api api, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	reply, ok := c.Reply(m.Content)
	if !ok {
		return
	}
	if err := api.send(ctx, m.ChannelID, reply); err != nil {
		logger.Get(ctx).Warn("replying to command failed", "channel_id", m.ChannelID, "error", err)
	}
}
