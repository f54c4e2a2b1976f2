package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// HTTPAPI talks to the REST query interface. Network failures are wrapped
// as transient so read fetches can retry; server rejections map onto the
// client sentinels.
type HTTPAPI struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPAPI(baseURL, token string) *HTTPAPI {
	return &HTTPAPI{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type wireMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	SenderAvatar   string    `json:"sender_avatar"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	MediaURL       string    `json:"media_url"`
	Reactions      []string  `json:"reactions"`
	Edited         bool      `json:"edited"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func (m wireMessage) entry() Entry {
	status := StatusSent
	switch m.Status {
	case "delivered":
		status = StatusDelivered
	case "read":
		status = StatusRead
	}
	return Entry{
		ID:             ConfirmedID(m.ID),
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		SenderAvatar:   m.SenderAvatar,
		Content:        m.Content,
		MessageType:    m.MessageType,
		MediaURL:       m.MediaURL,
		Reactions:      m.Reactions,
		Edited:         m.Edited,
		Status:         status,
		CreatedAt:      m.CreatedAt,
	}
}

func (a *HTTPAPI) ListMessages(ctx context.Context, conversationID uuid.UUID, page, pageSize int) ([]Entry, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	path := fmt.Sprintf("/conversations/%s/messages?%s", conversationID, q.Encode())

	var resp struct {
		Messages []wireMessage `json:"messages"`
	}
	if err := a.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	entries := make([]Entry, len(resp.Messages))
	for i, m := range resp.Messages {
		entries[i] = m.entry()
	}
	return entries, nil
}

func (a *HTTPAPI) SendMessage(ctx context.Context, conversationID uuid.UUID, content, messageType, mediaURL string) (SendReceipt, error) {
	body := map[string]string{
		"content":      content,
		"message_type": messageType,
		"media_url":    mediaURL,
	}
	var resp struct {
		ID        uuid.UUID `json:"id"`
		MediaURL  string    `json:"media_url"`
		CreatedAt time.Time `json:"created_at"`
	}
	path := fmt.Sprintf("/conversations/%s/messages", conversationID)
	if err := a.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return SendReceipt{}, err
	}
	return SendReceipt{MessageID: resp.ID, MediaURL: resp.MediaURL, CreatedAt: resp.CreatedAt}, nil
}

func (a *HTTPAPI) EditMessage(ctx context.Context, messageID uuid.UUID, content string) error {
	body := map[string]string{"content": content}
	return a.do(ctx, http.MethodPatch, "/messages/"+messageID.String(), body, nil)
}

func (a *HTTPAPI) DeleteMessage(ctx context.Context, messageID uuid.UUID, forEveryone bool) error {
	path := "/messages/" + messageID.String()
	if forEveryone {
		path += "?for_everyone=true"
	}
	return a.do(ctx, http.MethodDelete, path, nil, nil)
}

func (a *HTTPAPI) MarkAllRead(ctx context.Context, conversationID uuid.UUID) error {
	path := fmt.Sprintf("/conversations/%s/read", conversationID)
	return a.do(ctx, http.MethodPost, path, nil, nil)
}

func (a *HTTPAPI) UpdateReactions(ctx context.Context, messageID uuid.UUID, reactions []string) error {
	body := map[string][]string{"reactions": reactions}
	return a.do(ctx, http.MethodPut, "/messages/"+messageID.String()+"/reactions", body, nil)
}

func (a *HTTPAPI) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		return ErrForbidden
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return Transient(fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	default:
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
