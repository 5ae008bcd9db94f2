// Package chat builds and dispatches chat requests to the user's
// configured endpoint. Every send produces exactly one assistant reply
// string; transport and HTTP failures come back as the reply text, not
// as errors, so the conversation surface never enters a fatal state.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hbruyere/pagemate/internal/attach"
	. "github.com/hbruyere/pagemate/internal/logging"
	"github.com/hbruyere/pagemate/internal/settings"
)

// MaxHistory bounds how many messages travel with a request, counting
// the just-sent user message.
const MaxHistory = 6

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// NotConfiguredReply is the fixed assistant reply used when the API key
// or base URL is unset. No network I/O happens in that case.
const NotConfiguredReply = "已记录你的问题，但还没有配置 API Key 或服务地址，请先在侧边栏或 Options 页面填入后再试一次。"

// EmptyReplyFallback is used when the endpoint answers 2xx but carries
// neither a reply nor a message field.
const EmptyReplyFallback = "（服务端没有返回内容）"

// Message is one entry in the session conversation. Append-only,
// session-scoped.
type Message struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
	UsingContext bool      `json:"usingContext"`
}

// NewMessage creates a message with a fresh ID and timestamp.
func NewMessage(role, content string, usingContext bool) Message {
	return Message{
		ID:           uuid.NewString(),
		Role:         role,
		Content:      content,
		CreatedAt:    time.Now(),
		UsingContext: usingContext,
	}
}

// HistoryEntry is the role+content projection of a message on the wire.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContextPayload is the page context block of a chat request.
type ContextPayload struct {
	Title       string        `json:"title"`
	URL         string        `json:"url"`
	Text        string        `json:"text"`
	Preview     string        `json:"preview"`
	Attachments []attach.Meta `json:"attachments"`
}

// request is the wire body for POST {baseUrl}/chat.
type request struct {
	Message string          `json:"message"`
	History []HistoryEntry  `json:"history"`
	Context *ContextPayload `json:"context"`
}

// response is the expected endpoint answer. Either field may carry the
// assistant text.
type response struct {
	Reply   string `json:"reply"`
	Message string `json:"message"`
}

// Dispatcher issues chat requests. The client deliberately carries no
// timeout: a hung endpoint leaves the send in flight indefinitely, and
// the caller's isSending flag stays up with it.
type Dispatcher struct {
	client *http.Client
}

// NewDispatcher creates a dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{client: &http.Client{}}
}

// BuildHistory projects messages to role+content entries, keeping the
// last MaxHistory. messages must already end with the just-sent user
// message.
func BuildHistory(messages []Message) []HistoryEntry {
	start := 0
	if len(messages) > MaxHistory {
		start = len(messages) - MaxHistory
	}
	entries := make([]HistoryEntry, 0, len(messages)-start)
	for _, m := range messages[start:] {
		entries = append(entries, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return entries
}

// Send issues one chat request and returns the assistant reply text.
// messages is the session history ending with the just-appended user
// message; pageCtx is nil when context is off or extraction failed.
func (d *Dispatcher) Send(ctx context.Context, s settings.Settings, messages []Message, pageCtx *ContextPayload) string {
	if len(messages) == 0 {
		return EmptyReplyFallback
	}
	prompt := messages[len(messages)-1].Content

	if !s.Configured() {
		L_debug("chat: not configured, skipping network", "promptChars", len(prompt))
		return NotConfiguredReply
	}

	body := request{
		Message: prompt,
		History: BuildHistory(messages),
		Context: pageCtx,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		L_error("chat: failed to marshal request", "error", err)
		return fmt.Sprintf("请求构建失败：%v", err)
	}

	endpoint := strings.TrimRight(s.BaseURL, "/") + "/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		L_error("chat: failed to build request", "endpoint", endpoint, "error", err)
		return fmt.Sprintf("请求构建失败：%v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	L_debug("chat: sending", "endpoint", endpoint, "history", len(body.History), "withContext", pageCtx != nil)

	resp, err := d.client.Do(req)
	if err != nil {
		L_warn("chat: request failed", "endpoint", endpoint, "error", err)
		return fmt.Sprintf("请求失败：%v", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		L_warn("chat: non-success status", "endpoint", endpoint, "status", resp.StatusCode)
		detail := strings.TrimSpace(string(raw))
		if detail == "" {
			detail = resp.Status
		}
		return fmt.Sprintf("请求失败（HTTP %d）：%s", resp.StatusCode, detail)
	}

	if readErr != nil {
		L_warn("chat: failed to read response", "endpoint", endpoint, "error", readErr)
		return fmt.Sprintf("请求失败：%v", readErr)
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		L_warn("chat: unparseable response", "endpoint", endpoint, "error", err)
		return EmptyReplyFallback
	}

	switch {
	case parsed.Reply != "":
		return parsed.Reply
	case parsed.Message != "":
		return parsed.Message
	default:
		return EmptyReplyFallback
	}
}
