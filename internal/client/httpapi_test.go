package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHTTPAPIStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   error
		transient bool
	}{
		{name: "Unauthorized", status: http.StatusUnauthorized, wantErr: ErrForbidden},
		{name: "Forbidden", status: http.StatusForbidden, wantErr: ErrForbidden},
		{name: "Not Found", status: http.StatusNotFound, wantErr: ErrNotFound},
		{name: "Server Error Is Transient", status: http.StatusInternalServerError, transient: true},
		{name: "Bad Gateway Is Transient", status: http.StatusBadGateway, transient: true},
		{name: "Bad Request Is Fatal", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			api := NewHTTPAPI(server.URL, "token")
			err := api.MarkAllRead(context.Background(), uuid.New())
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if got := IsTransient(err); got != tt.transient {
				t.Fatalf("IsTransient = %v, want %v", got, tt.transient)
			}
		})
	}
}

func TestHTTPAPIConnectionFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listens any more

	api := NewHTTPAPI(server.URL, "token")
	_, err := api.ListMessages(context.Background(), uuid.New(), 1, 50)
	if err == nil {
		t.Fatal("expected a connection error")
	}
	if !IsTransient(err) {
		t.Fatalf("connection failure not transient: %v", err)
	}
}

func TestHTTPAPIListMessages(t *testing.T) {
	conversationID := uuid.New()
	sender := uuid.New()
	messageID := uuid.New()
	created := time.Now().UTC().Truncate(time.Second)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization header = %q", got)
		}
		if got := r.URL.Query().Get("page_size"); got != "25" {
			t.Errorf("page_size = %q, want 25", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{{
				"id":              messageID,
				"conversation_id": conversationID,
				"sender_id":       sender,
				"sender_name":     "Alex",
				"content":         "hello",
				"message_type":    "text",
				"reactions":       []string{"👍"},
				"edited":          true,
				"status":          "delivered",
				"created_at":      created,
			}},
		})
	}))
	defer server.Close()

	api := NewHTTPAPI(server.URL, "secret-token")
	entries, err := api.ListMessages(context.Background(), conversationID, 1, 25)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	e := entries[0]
	id, ok := e.ID.Confirmed()
	if !ok || id != messageID {
		t.Fatalf("entry identity = %v", e.ID)
	}
	if e.Status != StatusDelivered {
		t.Fatalf("status = %v, want delivered", e.Status)
	}
	if !e.Edited || e.Content != "hello" || e.SenderName != "Alex" {
		t.Fatalf("entry fields wrong: %+v", e)
	}
	if len(e.Reactions) != 1 || e.Reactions[0] != "👍" {
		t.Fatalf("reactions = %v", e.Reactions)
	}
}

func TestHTTPAPISendMessageReceipt(t *testing.T) {
	messageID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["content"] != "hi" || body["message_type"] != "text" {
			t.Errorf("request body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":         messageID,
			"media_url":  "",
			"created_at": time.Now(),
		})
	}))
	defer server.Close()

	api := NewHTTPAPI(server.URL, "token")
	receipt, err := api.SendMessage(context.Background(), uuid.New(), "hi", "text", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.MessageID != messageID {
		t.Fatalf("receipt id = %s, want %s", receipt.MessageID, messageID)
	}
}
