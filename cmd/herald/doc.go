// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Herald watches a YouTube channel and a TikTok profile and announces every new
video to a Discord channel exactly once. It also posts weekly livestream
reminders and answers chat commands about the last announced video.

# Usage

	$ herald [flags...] <command> [args...]

# Commands

  - run: connect to Discord and start announcing.
  - check <source>: fetch the latest item of a source and print it without
    announcing anything.
  - last [source]: print the last announced item of every source, or of one.
  - sources: list configured sources.
  - channels: list text channels of every Discord server the bot is in and
    whether it can post there.

# Environment Variables

  - DISCORD_TOKEN: Discord bot token. Required for run and channels.
  - CHANNEL_ID: ID of the channel to announce to. Required for run. If the
    channel is unavailable, herald posts to the first text channel where it
    is allowed to send messages.
  - CONFIG: path to the configuration file. Defaults to config.star in the
    state directory.
  - STATE_DIRECTORY: directory for cursors and the lock file. Defaults to
    $XDG_STATE_HOME/herald.
  - CURSOR_STORE: where the last announced items are kept: "file" (default),
    "sqlite" or "mem".
  - ADMIN_ADDR: address of the read-only admin API, like "localhost:3000".
    The API is disabled if empty.
  - TIMEZONE: time zone reminders are scheduled in. Defaults to
    "Europe/London".
  - RENDER: set to "false" to disable the headless browser fallback for
    TikTok.
  - RENDER_VISIBLE: set to "true" to show the browser window while rendering.
  - RENDER_TIMEOUT: how long a single browser render can take. Defaults to
    60s.
  - CHROME_PATH: path to the Chrome or Chromium binary.

# Configuration

Sources and reminders are defined in a Starlark file:

	mention = "@everyone"
	channel_url = "https://www.youtube.com/@creator"
	twitch = "https://www.twitch.tv/creator"
	kick = "https://kick.com/creator"

	sources = [
	    feed(name = "youtube", channel_id = "UCxxxxxxxxxxxxxxxxxxxxxx"),
	    scrape(name = "tiktok", username = "creator", interval = "10m"),
	]

	reminders = [
	    reminder(days = ["monday", "friday"], times = ["19:00"]),
	]

feed() takes a YouTube channel_id or a feed url, scrape() takes a TikTok
username. Both accept an optional title used in messages and a poll interval
(5m by default). Each source can be asked about in chat with !last_<name>;
!last_video and !latest refer to the first feed source.

reminder() takes English weekday names and 24-hour HH:MM times in the TIMEZONE
zone, and an optional text replacing the default reminder message.

# Admin API

If ADMIN_ADDR is set, herald serves:

  - /api/cursors: last announced item of each source.
  - /api/sources: sources with their cursors and last poll results.
  - /health: health checks.
  - /debug/logs: recent log lines (?stream follows new ones).
*/
package main

import (
	_ "embed"

	"go.astrophena.name/herald/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
