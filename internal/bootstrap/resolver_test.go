package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveSuccess(t *testing.T) {
	var gotPath, gotAuth, gotSlug string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotSlug = r.URL.Query().Get("room_slug")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"hs_url": "https://matrix.daarion.city",
			"user_id": "@alice:daarion.city",
			"access_token": "syt_abc",
			"device_id": "DEVICE1",
			"room_id": "!room:daarion.city",
			"room_alias": "#general:daarion.city",
			"room": {"id": "!room:daarion.city", "slug": "general", "name": "General"}
		}`))
	}))
	defer srv.Close()

	r := NewResolver(srv.URL)
	sess, err := r.Resolve(context.Background(), "general", "app-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if gotPath != "/chat/bootstrap" {
		t.Errorf("path = %q, want /chat/bootstrap", gotPath)
	}
	if gotAuth != "Bearer app-token" {
		t.Errorf("auth = %q, want Bearer app-token", gotAuth)
	}
	if gotSlug != "general" {
		t.Errorf("room_slug = %q, want general", gotSlug)
	}
	if sess.HomeserverURL != "https://matrix.daarion.city" {
		t.Errorf("hs url = %q", sess.HomeserverURL)
	}
	if sess.UserID != "@alice:daarion.city" || sess.DeviceID != "DEVICE1" {
		t.Errorf("identity = %s/%s", sess.UserID, sess.DeviceID)
	}
	if sess.RoomID != "!room:daarion.city" || sess.RoomName != "General" {
		t.Errorf("room = %s/%s", sess.RoomID, sess.RoomName)
	}
}

func TestResolveNoToken(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	r := NewResolver(srv.URL)
	_, err := r.Resolve(context.Background(), "general", "")
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("error = %v, want ErrNoToken", err)
	}
	if calls != 0 {
		t.Errorf("made %d network calls without a token, want 0", calls)
	}
}

func TestResolveServerDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail": "not a member of this DAO"}`))
	}))
	defer srv.Close()

	r := NewResolver(srv.URL)
	_, err := r.Resolve(context.Background(), "general", "tok")

	var berr *Error
	if !errors.As(err, &berr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if berr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", berr.StatusCode)
	}
	if berr.Detail != "not a member of this DAO" {
		t.Errorf("detail = %q, want server message verbatim", berr.Detail)
	}
}

func TestResolveGenericDetailFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`<html>gateway error</html>`))
	}))
	defer srv.Close()

	r := NewResolver(srv.URL)
	_, err := r.Resolve(context.Background(), "general", "tok")

	var berr *Error
	if !errors.As(err, &berr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if berr.Detail != "chat bootstrap failed" {
		t.Errorf("detail = %q, want generic fallback", berr.Detail)
	}
}

func TestResolveIdempotent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"hs_url": "https://hs", "user_id": "@a:hs", "access_token": "t",
			"device_id": "D", "room_id": "!r:hs", "room_alias": "#g:hs",
			"room": {"id": "!r:hs", "slug": "general", "name": "General"}}`))
	}))
	defer srv.Close()

	r := NewResolver(srv.URL)
	for i := 0; i < 2; i++ {
		if _, err := r.Resolve(context.Background(), "general", "tok"); err != nil {
			t.Fatalf("Resolve #%d: %v", i+1, err)
		}
	}
	if calls != 2 {
		t.Errorf("made %d bootstrap requests, want exactly one per resolve", calls)
	}
}
