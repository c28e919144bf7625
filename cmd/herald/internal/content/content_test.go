// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package content

import (
	"testing"
	"time"

	"go.astrophena.name/herald/internal/testutil"
)

func TestSourceDefaults(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		src          Source
		wantTitle    string
		wantInterval time.Duration
	}{
		"feed": {
			src:          Source{Name: "youtube", Kind: Feed},
			wantTitle:    "YouTube video",
			wantInterval: DefaultPollInterval,
		},
		"scrape": {
			src:          Source{Name: "tiktok", Kind: Scrape, PollInterval: time.Minute},
			wantTitle:    "TikTok",
			wantInterval: time.Minute,
		},
		"custom title": {
			src:          Source{Name: "shorts", Kind: Feed, Title: "Short"},
			wantTitle:    "Short",
			wantInterval: DefaultPollInterval,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			testutil.AssertEqual(t, tc.src.DisplayTitle(), tc.wantTitle)
			testutil.AssertEqual(t, tc.src.Interval(), tc.wantInterval)
		})
	}
}
