package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/hbruyere/pagemate/internal/attach"
	. "github.com/hbruyere/pagemate/internal/logging"
	"github.com/hbruyere/pagemate/internal/settings"
	"github.com/hbruyere/pagemate/internal/sidebar"
)

// maxAttachmentUpload bounds one multipart upload's in-memory size.
const maxAttachmentUpload = 20 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_warn("httpapi: failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.store.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid patch body")
		return
	}
	updated, err := s.store.Set(patch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	restored, err := s.store.Reset()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, restored)
}

type attachRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

type attachResponse struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid attach body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	id, _, err := s.attachSession(sidebar.Page{URL: req.URL, Title: req.Title, HTML: req.HTML})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, attachResponse{SessionID: id})
}

type sessionState struct {
	Open           bool                 `json:"open"`
	Sending        bool                 `json:"sending"`
	IncludeContext bool                 `json:"includeContext"`
	Messages       []messageView        `json:"messages"`
	Context        *contextView         `json:"context"`
	Tooltip        sidebar.TooltipState `json:"tooltip"`
	Attachments    []attach.Attachment  `json:"attachments"`
}

type messageView struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	Content      string `json:"content"`
	CreatedAt    string `json:"createdAt"`
	UsingContext bool   `json:"usingContext"`
}

type contextView struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Preview string `json:"preview"`
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sb := s.session(r.PathValue("id"))
	if sb == nil {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}

	state := sessionState{
		Open:           sb.IsOpen(),
		Sending:        sb.IsSending(),
		IncludeContext: sb.IncludeContext(),
		Tooltip:        sb.Tooltip(),
		Attachments:    sb.Attachments().List(),
		Messages:       []messageView{},
	}
	for _, m := range sb.Messages() {
		state.Messages = append(state.Messages, messageView{
			ID:           m.ID,
			Role:         m.Role,
			Content:      m.Content,
			CreatedAt:    m.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			UsingContext: m.UsingContext,
		})
	}
	if ctx := sb.PageContext(); ctx != nil {
		state.Context = &contextView{Title: ctx.Title, URL: ctx.URL, Preview: ctx.Preview}
	}
	writeJSON(w, http.StatusOK, state)
}

type sendRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	sb := s.session(r.PathValue("id"))
	if sb == nil {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply := sb.Send(r.Context(), req.Message)
	writeJSON(w, http.StatusOK, reply)
}

type selectionRequest struct {
	Kind      string `json:"kind"` // "pointerup", "keyup", "pointerdown", "scroll", "selectionchange"
	Text      string `json:"text"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Collapsed bool   `json:"collapsed"`
}

func selectionKind(name string) (sidebar.SelectionEventKind, bool) {
	switch name {
	case "pointerup", "mouseup":
		return sidebar.PointerUp, true
	case "keyup":
		return sidebar.KeyUp, true
	case "pointerdown", "mousedown":
		return sidebar.PointerDown, true
	case "scroll":
		return sidebar.Scroll, true
	case "selectionchange":
		return sidebar.SelectionChanged, true
	}
	return 0, false
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	sb := s.session(r.PathValue("id"))
	if sb == nil {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}

	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid selection body")
		return
	}
	kind, ok := selectionKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown event kind")
		return
	}

	state := sb.HandleSelection(sidebar.SelectionEvent{
		Kind:      kind,
		Text:      req.Text,
		X:         req.X,
		Y:         req.Y,
		Collapsed: req.Collapsed,
	})
	writeJSON(w, http.StatusOK, state)
}

type tooltipRequest struct {
	Action string `json:"action"` // "ask", "translate", "encourage"
}

func (s *Server) handleTooltipAction(w http.ResponseWriter, r *http.Request) {
	sb := s.session(r.PathValue("id"))
	if sb == nil {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}

	var req tooltipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid tooltip body")
		return
	}

	var action sidebar.TooltipAction
	switch req.Action {
	case "ask":
		action = sidebar.ActionAsk
	case "translate":
		action = sidebar.ActionTranslate
	case "encourage":
		action = sidebar.ActionEncourage
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	reply, ok := sb.InvokeTooltip(r.Context(), action)
	if !ok {
		writeError(w, http.StatusConflict, "tooltip is not visible")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleAddAttachments(w http.ResponseWriter, r *http.Request) {
	sb := s.session(r.PathValue("id"))
	if sb == nil {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}

	if err := r.ParseMultipartForm(maxAttachmentUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	var files []attach.File
	for _, headers := range r.MultipartForm.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				L_warn("httpapi: failed to open upload", "name", header.Filename, "error", err)
				continue
			}
			defer f.Close()
			files = append(files, attach.File{Name: header.Filename, Reader: f})
		}
	}

	sb.Attachments().AddFiles(files)
	// Reads are asynchronous; wait here so the response reflects them.
	sb.Attachments().Wait()
	writeJSON(w, http.StatusOK, sb.Attachments().List())
}

func (s *Server) handleRemoveAttachment(w http.ResponseWriter, r *http.Request) {
	sb := s.session(r.PathValue("id"))
	if sb == nil {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}

	if !sb.Attachments().Remove(r.PathValue("attID")) {
		writeError(w, http.StatusNotFound, "no such attachment")
		return
	}
	writeJSON(w, http.StatusOK, sb.Attachments().List())
}
