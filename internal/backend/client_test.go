package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atangai/atang/internal/assistant"
)

func TestClientSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "sawah hijau", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode(SearchResponse{
			Query: "sawah hijau",
			Results: []SearchResult{
				{Prompt: "sawah", ImageURL: "http://img/s.jpg", ClipScore: 0.8, Similarity: 0.7},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	resp, err := c.Search(context.Background(), "sawah hijau")
	require.NoError(t, err)
	assert.Equal(t, "sawah hijau", resp.Query)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "http://img/s.jpg", resp.Results[0].ImageURL)
}

func TestClientSearchErrorDetail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"query too short"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Search(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query too short")
}

func TestClientDefaultImages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images", r.URL.Path)
		json.NewEncoder(w).Encode(SearchResponse{Results: []SearchResult{{Prompt: "awal"}}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	resp, err := c.DefaultImages(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
}

func TestClientStreamChat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/chat", r.URL.Path)

		var req assistant.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, assistant.PersonaProfesor, req.Role)
		assert.Equal(t, "Budi", req.UserName)
		require.NotNil(t, req.SelectedImage)
		assert.Equal(t, "sawah", req.SelectedImage.Prompt)

		flusher := w.(http.Flusher)
		for _, part := range []string{"Halo ", "Budi, ", "ini jawabannya."} {
			w.Write([]byte(part))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	var got strings.Builder
	err := c.StreamChat(context.Background(), assistant.ChatRequest{
		Role:     assistant.PersonaProfesor,
		UserName: "Budi",
		Message:  "apa ini?",
		SelectedImage: &assistant.SelectedImage{
			Caption: "sawah", Prompt: "sawah",
		},
	}, func(chunk string) {
		got.WriteString(chunk)
	})
	require.NoError(t, err)
	assert.Equal(t, "Halo Budi, ini jawabannya.", got.String())
}

func TestClientStreamChatHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"detail":"model offline"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	err := c.StreamChat(context.Background(), assistant.ChatRequest{Message: "halo"}, func(string) {
		t.Fatal("no chunk expected on HTTP error")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")
}

func TestClientStreamChatContextCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mulai "))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, time.Minute)
	err := c.StreamChat(ctx, assistant.ChatRequest{Message: "halo"}, func(string) {})
	require.Error(t, err)
}
