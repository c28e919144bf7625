// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package fetch

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Limits of the embedded state search.
const (
	maxStateDepth = 64
	maxStateNodes = 100000
)

var (
	videoIDRe    = regexp.MustCompile(`"videoId"\s*:\s*"(\d+)"`)
	videoURLRe   = regexp.MustCompile(`https?://www\.tiktok\.com/@[^/]+/video/\d+`)
	videoLinkRe  = regexp.MustCompile(`^(?:https?://www\.tiktok\.com)?(/@([^/]+)/video/\d+)`)
	stateBlobRes = []*regexp.Regexp{
		regexp.MustCompile(`window\.__SIGI_STATE__\s*=\s*`),
		regexp.MustCompile(`window\.__INIT_PROPS__\s*=\s*`),
	}
)

// Extract finds the latest video of username in the profile page HTML body.
// It tries, in order: a link to the user's video, a "videoId" JSON field, a
// literal video URL and a video path in the embedded page state.
func Extract(body, username string) (id string, ok bool) {
	if body == "" || username == "" {
		return "", false
	}
	for _, try := range []func(string, string) (string, bool){
		extractLink,
		extractVideoID,
		extractVideoURL,
		extractState,
	} {
		if id, ok := try(body, username); ok {
			return id, true
		}
	}
	return "", false
}

func videoPath(username string) string { return "/@" + username + "/video/" }

func extractLink(body, username string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", false
	}

	var id string
	doc.Find("[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if m := videoLinkRe.FindStringSubmatch(strings.TrimSpace(href)); m != nil && m[2] == username {
			id = tiktokURL + m[1]
			return false
		}
		return true
	})
	return id, id != ""
}

func extractVideoID(body, username string) (string, bool) {
	m := videoIDRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return tiktokURL + videoPath(username) + m[1], true
}

func extractVideoURL(body, _ string) (string, bool) {
	if m := videoURLRe.FindString(body); m != "" {
		return m, true
	}
	return "", false
}

func extractState(body, username string) (string, bool) {
	for _, re := range stateBlobRes {
		loc := re.FindStringIndex(body)
		if loc == nil {
			continue
		}
		found, ok := searchJSON(json.NewDecoder(strings.NewReader(body[loc[1]:])), videoPath(username))
		if !ok {
			// Only the first blob present is searched.
			return "", false
		}
		if strings.HasPrefix(found, "/@") {
			found = tiktokURL + found
		}
		return found, true
	}
	return "", false
}

// searchJSON walks a single JSON value depth-first in document order and
// returns the first string value (object keys excluded) containing needle.
// It gives up on malformed input, on nesting deeper than maxStateDepth and
// after visiting maxStateNodes tokens.
func searchJSON(dec *json.Decoder, needle string) (string, bool) {
	type frame struct {
		object  bool
		wantKey bool
	}
	var stack []frame

	for nodes := 0; nodes < maxStateNodes; nodes++ {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}

		isKey := len(stack) > 0 && stack[len(stack)-1].object && stack[len(stack)-1].wantKey

		switch v := tok.(type) {
		case json.Delim:
			if v == '{' || v == '[' {
				if len(stack) == maxStateDepth {
					return "", false
				}
				stack = append(stack, frame{object: v == '{', wantKey: true})
				continue
			}
			stack = stack[:len(stack)-1]
		case string:
			if !isKey && strings.Contains(v, needle) {
				return v, true
			}
		}

		if len(stack) == 0 {
			return "", false
		}
		if top := &stack[len(stack)-1]; top.object {
			top.wantKey = !top.wantKey
		}
	}
	return "", false
}
