// ABOUTME: Development chat server: REST conversation endpoints over a store.Store
// ABOUTME: Owner checks via the user header, JSON errors, feedback by merged message index

package backend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/chat"
	"github.com/2389/chatline/internal/reconciler"
	"github.com/2389/chatline/internal/store"
)

const maxUploadBytes = 32 << 20

// Options configures a Server.
type Options struct {
	// Token, when set, must be presented as a bearer token.
	Token string
	// ChunkDelay is the pause between streamed reply chunks.
	ChunkDelay time.Duration
	// ChunkRunes is the size of each streamed reply chunk.
	ChunkRunes int
	// ObservationFirst sends each observation before its action.
	ObservationFirst bool
	// AssistantName is the sender label of replies.
	AssistantName string
	Logger        *slog.Logger
}

// Server is the development chat server.
type Server struct {
	store  store.Store
	opts   Options
	logger *slog.Logger
}

// New creates a server backed by st.
func New(st store.Store, opts Options) *Server {
	if opts.ChunkRunes <= 0 {
		opts.ChunkRunes = 8
	}
	if opts.AssistantName == "" {
		opts.AssistantName = "assistant"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  st,
		opts:   opts,
		logger: logger.With("component", "backend"),
	}
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /api/chat", s.authenticated(s.handleChat))
	mux.Handle("GET /api/conversations", s.authenticated(s.handleListConversations))
	mux.Handle("POST /api/conversations", s.authenticated(s.handleCreateConversation))
	mux.Handle("GET /api/conversations/{id}", s.authenticated(s.handleGetConversation))
	mux.Handle("PUT /api/conversations/{id}", s.authenticated(s.handleUpdateConversation))
	mux.Handle("DELETE /api/conversations/{id}", s.authenticated(s.handleDeleteConversation))
	mux.Handle("POST /api/conversations/{id}/summarization", s.authenticated(s.handleSummarize))
	mux.Handle("POST /api/conversations/{id}/files", s.authenticated(s.handleUploadFiles))
	mux.Handle("PUT /api/conversations/{id}/messages/{idx}/{feedback}", s.authenticated(s.handleFeedback))
	return mux
}

type userHandler func(w http.ResponseWriter, r *http.Request, user string)

// authenticated resolves the caller's handle and checks the shared token.
func (s *Server) authenticated(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.opts.Token {
			s.sendJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		user := r.Header.Get(api.UserHeader)
		if user == "" {
			s.sendJSONError(w, http.StatusUnauthorized, "missing "+api.UserHeader+" header")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, user string) {
	convs, err := s.store.ListConversations(r.Context(), user)
	if err != nil {
		s.logger.Error("listing conversations", "error", err, "user", user)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]chat.Conversation, 0, len(convs))
	for _, c := range convs {
		response = append(response, c.Conversation)
	}
	s.sendJSON(w, http.StatusOK, response)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request, user string) {
	var req api.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Title == "" {
		req.Title = chat.UntitledTitle
	}

	conv := store.Conversation{Owner: user, Conversation: chat.Conversation{ID: req.ID, Title: req.Title}}
	err := s.store.CreateConversation(r.Context(), conv)
	if errors.Is(err, store.ErrDuplicateConversation) {
		s.sendJSONError(w, http.StatusConflict, "conversation already exists")
		return
	}
	if err != nil {
		s.logger.Error("creating conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	created, err := s.store.GetConversation(r.Context(), req.ID)
	if err != nil {
		s.logger.Error("reading created conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.logger.Info("conversation created", "id", req.ID, "user", user)
	s.sendJSON(w, http.StatusCreated, created.Conversation)
}

// owned loads the conversation named in the path and checks its owner. On
// failure it has already written the response.
func (s *Server) owned(w http.ResponseWriter, r *http.Request, user string) (store.Conversation, bool) {
	conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return store.Conversation{}, false
	case err != nil:
		s.logger.Error("loading conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return store.Conversation{}, false
	case conv.Owner != user:
		s.sendJSONError(w, http.StatusForbidden, "not your conversation")
		return store.Conversation{}, false
	}
	return conv, true
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request, user string) {
	conv, ok := s.owned(w, r, user)
	if !ok {
		return
	}
	msgs, err := s.store.Messages(r.Context(), conv.ID, 0)
	if err != nil {
		s.logger.Error("loading messages", "error", err, "conversation_id", conv.ID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	s.sendJSON(w, http.StatusOK, chat.ConversationDetail{Conversation: conv.Conversation, Messages: msgs})
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request, user string) {
	conv, ok := s.owned(w, r, user)
	if !ok {
		return
	}
	var req api.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title != nil && *req.Title == "" {
		s.sendJSONError(w, http.StatusBadRequest, "title must not be empty")
		return
	}

	updated, err := s.store.UpdateConversation(r.Context(), conv.ID, store.ConversationPatch{Title: req.Title, Pinned: req.Pinned})
	if err != nil {
		s.logger.Error("updating conversation", "error", err, "conversation_id", conv.ID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, updated.Conversation)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request, user string) {
	conv, ok := s.owned(w, r, user)
	if !ok {
		return
	}
	if err := s.store.DeleteConversation(r.Context(), conv.ID); err != nil {
		s.logger.Error("deleting conversation", "error", err, "conversation_id", conv.ID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.logger.Info("conversation deleted", "id", conv.ID, "user", user)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request, user string) {
	conv, ok := s.owned(w, r, user)
	if !ok {
		return
	}
	msgs, err := s.store.Messages(r.Context(), conv.ID, 0)
	if err != nil {
		s.logger.Error("loading messages", "error", err, "conversation_id", conv.ID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	i := firstUserText(msgs, user)
	if i < 0 {
		s.sendJSONError(w, http.StatusBadRequest, "nothing to summarize")
		return
	}
	title := deriveTitle(msgs[i].Content.Text)
	if _, err := s.store.UpdateConversation(r.Context(), conv.ID, store.ConversationPatch{Title: &title}); err != nil {
		s.logger.Error("saving title", "error", err, "conversation_id", conv.ID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.sendJSON(w, http.StatusOK, api.SummaryResponse{Title: title})
}

func firstUserText(msgs []chat.Message, user string) int {
	for i, m := range msgs {
		if m.Kind == chat.KindText && m.From == user && m.Content.Text != "" {
			return i
		}
	}
	return -1
}

func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request, user string) {
	if _, ok := s.owned(w, r, user); !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.sendJSONError(w, http.StatusBadRequest, "no files")
		return
	}
	refs := make([]chat.FileRef, 0, len(headers))
	for _, fh := range headers {
		refs = append(refs, chat.FileRef{Filename: fh.Filename, Size: fh.Size})
	}
	s.logger.Info("files received", "conversation_id", r.PathValue("id"), "count", len(refs))
	s.sendJSON(w, http.StatusOK, refs)
}

// handleFeedback addresses messages by their index in the merged view the
// client renders, not in the raw history.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request, user string) {
	conv, ok := s.owned(w, r, user)
	if !ok {
		return
	}
	fb := chat.Feedback(r.PathValue("feedback"))
	if fb != chat.FeedbackThumbUp && fb != chat.FeedbackThumbDown {
		s.sendJSONError(w, http.StatusBadRequest, "feedback must be thumbup or thumbdown")
		return
	}
	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil || idx < 0 {
		s.sendJSONError(w, http.StatusBadRequest, "invalid message index")
		return
	}

	msgs, err := s.store.Messages(r.Context(), conv.ID, 0)
	if err != nil {
		s.logger.Error("loading messages", "error", err, "conversation_id", conv.ID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	view := reconciler.Merge(msgs)
	if idx >= len(view) {
		s.sendJSONError(w, http.StatusNotFound, "message not found")
		return
	}

	if err := s.store.SetFeedback(r.Context(), conv.ID, view[idx].ID, fb); err != nil {
		s.logger.Error("saving feedback", "error", err, "conversation_id", conv.ID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, api.ErrorResponse{Error: message})
}
