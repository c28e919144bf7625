// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"go.astrophena.name/herald/internal/testutil"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		response   any
		wantStatus int
		wantBody   string
	}{
		"map": {
			response:   map[string]string{"youtube": "abc"},
			wantStatus: http.StatusOK,
			wantBody:   "{\n  \"youtube\": \"abc\"\n}\n",
		},
		"unmarshalable": {
			response:   make(chan int),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `"status": "error"`,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				RespondJSON(w, tc.response)
			})
			testutil.AssertHasSubstring(t, send(t, h, http.MethodGet, "/", tc.wantStatus), tc.wantBody)
		})
	}
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err        error
		wantStatus int
		wantError  string
	}{
		"wrapped status": {
			err:        fmt.Errorf("source %q %w", "nope", ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantError:  `source "nope" not found`,
		},
		"plain error": {
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "boom",
		},
		"bare status": {
			err:        ErrBadRequest,
			wantStatus: http.StatusBadRequest,
			wantError:  "bad request",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				RespondJSONError(w, r, tc.err)
			})
			got := testutil.UnmarshalJSON[errorResponse](t, []byte(send(t, h, http.MethodGet, "/", tc.wantStatus)))
			testutil.AssertEqual(t, got, errorResponse{Status: "error", Error: tc.wantError})
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	h := MethodNotAllowed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, "ok")
	}), http.MethodGet)

	send(t, h, http.MethodGet, "/", http.StatusOK)
	send(t, h, http.MethodPost, "/", http.StatusMethodNotAllowed)
}

func TestJSON(t *testing.T) {
	t.Parallel()

	h := JSON(func(r *http.Request) (any, error) {
		name := r.URL.Query().Get("source")
		if name != "youtube" {
			return nil, fmt.Errorf("source %q: %w", name, ErrNotFound)
		}
		return map[string]string{"cursor": "abc"}, nil
	})

	got := testutil.UnmarshalJSON[map[string]string](t, []byte(send(t, h, http.MethodGet, "/?source=youtube", http.StatusOK)))
	testutil.AssertEqual(t, got, map[string]string{"cursor": "abc"})

	errResp := testutil.UnmarshalJSON[errorResponse](t, []byte(send(t, h, http.MethodGet, "/?source=tiktok", http.StatusNotFound)))
	testutil.AssertEqual(t, errResp, errorResponse{Status: "error", Error: `source "tiktok": not found`})
}
