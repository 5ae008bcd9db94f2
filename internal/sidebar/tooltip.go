package sidebar

import "fmt"

// TooltipState is the selection tooltip snapshot: hidden (zero value)
// or visible with the selected text and anchor position.
type TooltipState struct {
	Visible bool   `json:"visible"`
	Text    string `json:"text,omitempty"`
	X       int    `json:"x,omitempty"`
	Y       int    `json:"y,omitempty"`
}

// SelectionEventKind names the UI events the tooltip reacts to.
type SelectionEventKind int

const (
	// PointerUp fires when a mouse button is released over the page.
	PointerUp SelectionEventKind = iota
	// KeyUp fires when a key is released (keyboard selection).
	KeyUp
	// PointerDown fires when a mouse button is pressed.
	PointerDown
	// Scroll fires when the page scrolls.
	Scroll
	// SelectionChanged fires when the selection itself changes.
	SelectionChanged
)

// SelectionEvent is one UI event plus the selection snapshot at that
// moment. Collapsed means the selection has no extent (a bare caret).
type SelectionEvent struct {
	Kind      SelectionEventKind
	Text      string
	X, Y      int
	Collapsed bool
}

// NextTooltip is the pure transition function for the tooltip state
// machine. Pointer-up or key-up with a non-empty, non-collapsed
// selection shows the tooltip at the event position; pointer-down,
// scroll, or an empty/collapsed selection hides it.
func NextTooltip(cur TooltipState, ev SelectionEvent) TooltipState {
	switch ev.Kind {
	case PointerDown, Scroll:
		return TooltipState{}
	case PointerUp, KeyUp:
		if ev.Collapsed || ev.Text == "" {
			return TooltipState{}
		}
		return TooltipState{Visible: true, Text: ev.Text, X: ev.X, Y: ev.Y}
	case SelectionChanged:
		if ev.Collapsed || ev.Text == "" {
			return TooltipState{}
		}
		return cur
	}
	return cur
}

// TooltipAction is one of the three actions offered while the tooltip
// is visible.
type TooltipAction int

const (
	// ActionAsk sends the selection verbatim as the chat prompt.
	ActionAsk TooltipAction = iota
	// ActionTranslate wraps the selection in a translation request.
	ActionTranslate
	// ActionEncourage wraps the selection in an encouragement request.
	ActionEncourage
)

const (
	translateTemplate = "请翻译下面这段文字：\n\n%s"
	encourageTemplate = "请针对下面这段话，送我一句鼓励的话：\n\n%s"
)

// WrapPrompt builds the chat prompt for a tooltip action on the
// selected text.
func WrapPrompt(action TooltipAction, text string) string {
	switch action {
	case ActionTranslate:
		return fmt.Sprintf(translateTemplate, text)
	case ActionEncourage:
		return fmt.Sprintf(encourageTemplate, text)
	default:
		return text
	}
}
