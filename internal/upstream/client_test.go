package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, APIKey: "key123", AccountID: "acct1"}, zerolog.Nop())
	c.(*httpClient).retryInterval = time.Millisecond
	return c
}

func TestAuthHeaders(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token key123" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("ACCOUNT-ID"); got != "acct1" {
			t.Errorf("ACCOUNT-ID = %q", got)
		}
		fmt.Fprint(w, `[{"id":"sol1","name":"Alpha","logo":{"icon":"rocket","color":"#fff"}}]`)
	}))

	sols, err := c.Solutions(context.Background())
	if err != nil {
		t.Fatalf("Solutions: %v", err)
	}
	if len(sols) != 1 || sols[0].ID != "sol1" || sols[0].LogoIcon != "rocket" {
		t.Errorf("solutions = %+v", sols)
	}
}

func TestRetryOnThrottle(t *testing.T) {
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"tm1","name":"Core","members":["m1"]}]}`)
	}))

	teams, err := c.Teams(context.Background())
	if err != nil {
		t.Fatalf("Teams: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(teams) != 1 || teams[0].MemberCount != 1 {
		t.Errorf("teams = %+v", teams)
	}
}

func TestClientErrorsAreFinal(t *testing.T) {
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "no such application", http.StatusNotFound)
	}))

	_, err := c.Table(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("404 was retried %d times", calls)
	}
}

func TestRecordsPagination(t *testing.T) {
	pages := []string{
		`{"total":3,"offset":0,"limit":2,"items":[{"id":"r1"},{"id":"r2"}]}`,
		`{"total":3,"offset":2,"limit":2,"items":[{"id":"r3"}]}`,
	}
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		fmt.Fprint(w, pages[calls])
		calls++
	}))

	recs, err := c.Records(context.Background(), "tbl1")
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 3 || recs[2].ID() != "r3" {
		t.Errorf("records = %+v", recs)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDecodeListShapes(t *testing.T) {
	var out []map[string]any
	if err := decodeList([]byte(`[{"a":1}]`), &out); err != nil || len(out) != 1 {
		t.Errorf("bare array: (%v, %v)", out, err)
	}
	out = nil
	if err := decodeList([]byte(`{"total":1,"items":[{"a":1}]}`), &out); err != nil || len(out) != 1 {
		t.Errorf("envelope: (%v, %v)", out, err)
	}
	if err := decodeList([]byte(`{"total":1}`), &out); err == nil {
		t.Error("envelope without items decoded")
	}
}
