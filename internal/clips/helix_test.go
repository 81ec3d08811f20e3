package clips

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("client-123",
		WithToken("tok"),
		WithBaseURL(server.URL),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func clipJSON(i int) helixClip {
	return helixClip{
		ID:              fmt.Sprintf("clip-%d", i),
		Title:           fmt.Sprintf("Title %d", i),
		BroadcasterName: fmt.Sprintf("streamer%d", i),
		ThumbnailURL:    fmt.Sprintf("https://clips-media.example/AT-cm%%7C%d-preview-480x272.jpg", i),
		CreatedAt:       "2026-10-15T10:00:00Z",
		Duration:        29.5,
		ViewCount:       1000 - i,
	}
}

func TestClient_TopClips_Game(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/clips", r.URL.Path)
		assert.Equal(t, "client-123", r.Header.Get("Client-ID"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "509658", r.URL.Query().Get("game_id"))
		assert.Equal(t, "3", r.URL.Query().Get("first"))
		assert.Equal(t, "2026-10-09T12:00:00Z", r.URL.Query().Get("started_at"))
		assert.Equal(t, "2026-10-16T12:00:00Z", r.URL.Query().Get("ended_at"))

		_ = json.NewEncoder(w).Encode(clipsResponse{Data: []helixClip{clipJSON(0), clipJSON(1), clipJSON(2)}})
	})

	batch, err := client.TopClips(context.Background(), Scope{Kind: ScopeGame, ID: "509658"}, 3, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	require.NoError(t, batch.Validate())

	assert.Equal(t, "clip-1", batch[1].ID)
	assert.Equal(t, "Title 1", batch[1].Title)
	assert.Equal(t, "streamer1", batch[1].BroadcasterName)
	assert.Equal(t, 1, batch[1].Index)
	assert.Equal(t, "https://clips-media.example/AT-cm%7C1.mp4", batch[1].SourceMediaURL)
	assert.Equal(t, 29500*time.Millisecond, batch[1].Duration)
	assert.False(t, batch[1].CreatedAt.IsZero())
}

func TestClient_TopClips_Paginates(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "42", r.URL.Query().Get("broadcaster_id"))
		first, _ := strconv.Atoi(r.URL.Query().Get("first"))

		resp := clipsResponse{}
		switch r.URL.Query().Get("after") {
		case "":
			assert.Equal(t, 100, first)
			for i := 0; i < 100; i++ {
				resp.Data = append(resp.Data, clipJSON(i))
			}
			resp.Pagination.Cursor = "page2"
		case "page2":
			assert.Equal(t, 20, first)
			for i := 100; i < 120; i++ {
				resp.Data = append(resp.Data, clipJSON(i))
			}
			resp.Pagination.Cursor = "page3"
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("after"))
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	batch, err := client.TopClips(context.Background(), Scope{Kind: ScopeBroadcaster, ID: "42"}, 120, 0)
	require.NoError(t, err)
	assert.Len(t, batch, 120)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 119, batch[119].Index)
	require.NoError(t, batch.Validate())
}

func TestClient_TopClips_EmptyIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[],"pagination":{}}`))
	})

	batch, err := client.TopClips(context.Background(), Scope{Kind: ScopeGame, ID: "1"}, 10, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestClient_TopClips_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"message":"invalid client id"}`, http.StatusUnauthorized)
			},
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data": [`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, err := client.TopClips(context.Background(), Scope{Kind: ScopeGame, ID: "1"}, 5, time.Hour)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnavailable))
		})
	}
}

func TestClient_TopClips_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient("id", WithBaseURL(url))
	_, err := client.TopClips(context.Background(), Scope{Kind: ScopeGame, ID: "1"}, 5, time.Hour)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestClient_TopClips_RejectsInvalidArgs(t *testing.T) {
	client := NewClient("id")
	_, err := client.TopClips(context.Background(), Scope{Kind: ScopeGame}, 5, time.Hour)
	assert.Error(t, err)
	_, err = client.TopClips(context.Background(), Scope{Kind: ScopeGame, ID: "1"}, 0, time.Hour)
	assert.Error(t, err)
}

func TestClient_Resolve(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/games":
			if r.URL.Query().Get("name") == "Just Chatting" {
				_, _ = w.Write([]byte(`{"data":[{"id":"509658","name":"Just Chatting"}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":[]}`))
		case "/users":
			assert.Equal(t, "somestreamer", r.URL.Query().Get("login"))
			_, _ = w.Write([]byte(`{"data":[{"id":"42","login":"somestreamer"}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	scope, err := client.Resolve(ctx, ScopeGame, "Just Chatting")
	require.NoError(t, err)
	assert.Equal(t, Scope{Kind: ScopeGame, ID: "509658", Name: "Just Chatting"}, scope)
	assert.Equal(t, "game:Just Chatting", scope.String())

	scope, err = client.Resolve(ctx, ScopeBroadcaster, "SomeStreamer")
	require.NoError(t, err)
	assert.Equal(t, "42", scope.ID)

	_, err = client.Resolve(ctx, ScopeGame, "No Such Game")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = client.GameID(ctx, "  ")
	assert.Error(t, err)
}

func TestMediaURL(t *testing.T) {
	assert.Equal(t, "https://x/AT-cm%7C9.mp4", MediaURL("https://x/AT-cm%7C9-preview-480x272.jpg"))
	assert.Equal(t, "", MediaURL("https://x/thumb.jpg"))
	assert.Equal(t, "", MediaURL(""))
}

func TestParseScopeKind(t *testing.T) {
	for in, want := range map[string]ScopeKind{"G": ScopeGame, "game": ScopeGame, " u ": ScopeBroadcaster, "USER": ScopeBroadcaster, "broadcaster": ScopeBroadcaster} {
		got, err := ParseScopeKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseScopeKind("channel")
	assert.Error(t, err)
}
