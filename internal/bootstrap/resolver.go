package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/daarion/roomsync/internal/room"
)

// ErrNoToken is returned when Resolve is called without an auth token. The
// engine maps it to the unauthenticated status; no network call is made.
var ErrNoToken = errors.New("no auth token")

// genericDetail is surfaced when the server's error body carries no detail.
const genericDetail = "chat bootstrap failed"

// Error is a bootstrap failure with the HTTP status and the server-provided
// detail message (or a generic fallback).
type Error struct {
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bootstrap: %s (status %d)", e.Detail, e.StatusCode)
}

// descriptor is the wire shape of a successful bootstrap response.
type descriptor struct {
	HSURL       string `json:"hs_url"`
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
	RoomID      string `json:"room_id"`
	RoomAlias   string `json:"room_alias"`
	Room        struct {
		ID          string `json:"id"`
		Slug        string `json:"slug"`
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"room"`
}

// errorBody is the wire shape of a non-2xx bootstrap response.
type errorBody struct {
	Detail string `json:"detail"`
}

// Resolver exchanges an application session token for conversation
// credentials and a room descriptor.
type Resolver struct {
	baseURL string
	client  *http.Client
}

// NewResolver creates a resolver against the given API base URL.
func NewResolver(baseURL string) *Resolver {
	return &Resolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Resolve performs exactly one bootstrap request for the room slug. It is
// idempotent and safe to re-invoke for manual retry; the caller discards any
// previous session first.
func (r *Resolver) Resolve(ctx context.Context, slug, token string) (*room.Session, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	endpoint := fmt.Sprintf("%s/chat/bootstrap?room_slug=%s", r.baseURL, url.QueryEscape(slug))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &Error{StatusCode: 0, Detail: genericDetail}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var desc descriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Detail: genericDetail}
	}

	return &room.Session{
		HomeserverURL: desc.HSURL,
		UserID:        desc.UserID,
		DeviceID:      desc.DeviceID,
		AccessToken:   desc.AccessToken,
		RoomID:        desc.RoomID,
		RoomAlias:     desc.RoomAlias,
		RoomName:      desc.Room.Name,
		RoomSlug:      desc.Room.Slug,
	}, nil
}

// decodeError surfaces the server's detail message verbatim when present.
func decodeError(resp *http.Response) *Error {
	out := &Error{StatusCode: resp.StatusCode, Detail: genericDetail}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return out
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Detail != "" {
		out.Detail = eb.Detail
	}
	return out
}
