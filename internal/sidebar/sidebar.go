// Package sidebar holds the per-page chat session state: page context
// capture timing, the message history, the selection tooltip, image
// attachments, and the open/sending flags. One Sidebar per attached
// page; everything here is session-scoped and dies with it.
package sidebar

import (
	"context"
	"sync"
	"time"

	"github.com/hbruyere/pagemate/internal/attach"
	"github.com/hbruyere/pagemate/internal/bus"
	"github.com/hbruyere/pagemate/internal/chat"
	"github.com/hbruyere/pagemate/internal/extract"
	. "github.com/hbruyere/pagemate/internal/logging"
	"github.com/hbruyere/pagemate/internal/settings"
)

// ToggleMessageType is the control message that opens the sidebar.
const ToggleMessageType = "AI_CHAT_TOGGLE"

// ToggleMessage is the inter-surface control message shape.
type ToggleMessage struct {
	Type string `json:"type"`
}

// ToggleAck is the sidebar's answer to a toggle message.
type ToggleAck struct {
	OK bool `json:"ok"`
}

// Page is the page a sidebar attaches to.
type Page struct {
	URL   string
	Title string
	HTML  string
}

// Sidebar is the session state machine for one page.
type Sidebar struct {
	store      *settings.Store
	extractor  *extract.Extractor
	dispatcher *chat.Dispatcher

	settleDelay time.Duration

	mu             sync.Mutex
	page           Page
	mounted        bool
	open           bool
	sending        int
	includeContext bool
	extracted      bool // extraction fires at most once per lifetime
	pageCtx        *extract.PageContext
	messages       []chat.Message
	tooltip        TooltipState
	settleTimer    *time.Timer

	attachments *attach.Manager
}

// New creates a sidebar bound to the settings store. The default
// context-inclusion flag is seeded from settings; settings access
// failure propagates.
func New(store *settings.Store, extractor *extract.Extractor, dispatcher *chat.Dispatcher, settleDelay time.Duration) (*Sidebar, error) {
	s, err := store.Get()
	if err != nil {
		return nil, err
	}
	return &Sidebar{
		store:          store,
		extractor:      extractor,
		dispatcher:     dispatcher,
		settleDelay:    settleDelay,
		includeContext: s.IncludeContextByDefault,
		attachments:    attach.NewManager(),
	}, nil
}

// Mount attaches the sidebar to a page and schedules context capture
// after the settle delay. Mounting twice is a no-op.
func (sb *Sidebar) Mount(page Page) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.mounted {
		return
	}
	sb.mounted = true
	sb.page = page
	sb.settleTimer = time.AfterFunc(sb.settleDelay, sb.captureContext)
	L_debug("sidebar: mounted", "url", page.URL, "settleDelay", sb.settleDelay)
}

// Unmount cancels any pending capture timer.
func (sb *Sidebar) Unmount() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.settleTimer != nil {
		sb.settleTimer.Stop()
		sb.settleTimer = nil
	}
}

// captureContext runs the one-shot extraction. Failure degrades
// silently: the session simply has no page context.
func (sb *Sidebar) captureContext() {
	sb.mu.Lock()
	if sb.extracted {
		sb.mu.Unlock()
		return
	}
	sb.extracted = true
	page := sb.page
	sb.mu.Unlock()

	ctx, err := sb.extractor.FromHTML(page.URL, page.Title, page.HTML)
	if err != nil {
		L_warn("sidebar: context extraction failed", "url", page.URL, "error", err)
		return
	}

	sb.mu.Lock()
	sb.pageCtx = ctx
	sb.mu.Unlock()
	L_debug("sidebar: context captured", "url", page.URL, "previewChars", len(ctx.Preview))
}

// HandleSelection advances the tooltip state machine with a UI event.
func (sb *Sidebar) HandleSelection(ev SelectionEvent) TooltipState {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.tooltip = NextTooltip(sb.tooltip, ev)
	return sb.tooltip
}

// Tooltip returns the current tooltip state.
func (sb *Sidebar) Tooltip() TooltipState {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.tooltip
}

// InvokeTooltip runs one of the three tooltip actions: it hides the
// tooltip, opens the sidebar, and sends the (possibly wrapped)
// selection as the chat prompt. No-op when the tooltip is hidden.
func (sb *Sidebar) InvokeTooltip(ctx context.Context, action TooltipAction) (chat.Message, bool) {
	sb.mu.Lock()
	if !sb.tooltip.Visible {
		sb.mu.Unlock()
		return chat.Message{}, false
	}
	text := sb.tooltip.Text
	sb.tooltip = TooltipState{}
	sb.openLocked("tooltip")
	sb.mu.Unlock()

	return sb.Send(ctx, WrapPrompt(action, text)), true
}

// Send appends the user message, dispatches the request, and appends
// exactly one assistant message with the outcome. It blocks until the
// assistant message lands; concurrent sends race independently and
// append in completion order. The assistant message is returned.
func (sb *Sidebar) Send(ctx context.Context, prompt string) chat.Message {
	current, err := sb.store.Get()
	if err != nil {
		// Storage failure is the one error the store contract propagates;
		// at the conversation surface it still becomes a reply.
		L_error("sidebar: settings read failed", "error", err)
		current = settings.Defaults()
	}

	sb.mu.Lock()
	usingContext := sb.includeContext && sb.pageCtx != nil
	userMsg := chat.NewMessage(chat.RoleUser, prompt, usingContext)
	sb.messages = append(sb.messages, userMsg)
	history := make([]chat.Message, len(sb.messages))
	copy(history, sb.messages)
	payload := sb.contextPayloadLocked(usingContext)
	sb.sending++
	sb.mu.Unlock()

	reply := sb.dispatcher.Send(ctx, current, history, payload)

	assistantMsg := chat.NewMessage(chat.RoleAssistant, reply, usingContext)
	sb.mu.Lock()
	sb.messages = append(sb.messages, assistantMsg)
	sb.sending--
	sb.mu.Unlock()

	return assistantMsg
}

func (sb *Sidebar) contextPayloadLocked(usingContext bool) *chat.ContextPayload {
	if !usingContext || sb.pageCtx == nil {
		return nil
	}
	return &chat.ContextPayload{
		Title:       sb.pageCtx.Title,
		URL:         sb.pageCtx.URL,
		Text:        sb.pageCtx.Text,
		Preview:     sb.pageCtx.Preview,
		Attachments: sb.attachments.Metas(),
	}
}

// HandleToggle processes the AI_CHAT_TOGGLE control message: the
// sidebar opens and acknowledges.
func (sb *Sidebar) HandleToggle(msg ToggleMessage) ToggleAck {
	if msg.Type != ToggleMessageType {
		L_debug("sidebar: ignoring unknown control message", "type", msg.Type)
		return ToggleAck{OK: false}
	}
	sb.mu.Lock()
	sb.openLocked("action")
	sb.mu.Unlock()
	return ToggleAck{OK: true}
}

func (sb *Sidebar) openLocked(source string) {
	if sb.open {
		return
	}
	sb.open = true
	bus.PublishWithSource(bus.TopicSidebarOpened, sb.page.URL, source)
}

// Close hides the sidebar panel. Session state survives.
func (sb *Sidebar) Close() {
	sb.mu.Lock()
	sb.open = false
	sb.mu.Unlock()
}

// IsOpen reports whether the panel is open.
func (sb *Sidebar) IsOpen() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.open
}

// IsSending reports whether any send is in flight. A hung endpoint
// leaves this true indefinitely (no timeout, no cancellation).
func (sb *Sidebar) IsSending() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.sending > 0
}

// IncludeContext reports the session's context-inclusion flag.
func (sb *Sidebar) IncludeContext() bool {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.includeContext
}

// SetIncludeContext flips context inclusion for this session only; the
// persisted default is untouched.
func (sb *Sidebar) SetIncludeContext(on bool) {
	sb.mu.Lock()
	sb.includeContext = on
	sb.mu.Unlock()
}

// PageContext returns the captured context, or nil before capture or
// after a failed extraction.
func (sb *Sidebar) PageContext() *extract.PageContext {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.pageCtx
}

// Messages returns a copy of the session conversation in append order.
func (sb *Sidebar) Messages() []chat.Message {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	out := make([]chat.Message, len(sb.messages))
	copy(out, sb.messages)
	return out
}

// Attachments exposes the session attachment manager.
func (sb *Sidebar) Attachments() *attach.Manager {
	return sb.attachments
}
