// ABOUTME: Session state holder: conversation list, active conversation and its messages
// ABOUTME: Defines the backend/transport boundaries, initial load and snapshot accessors

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/chat"
	"github.com/2389/chatline/internal/dedupe"
	"github.com/2389/chatline/internal/reconciler"
	"github.com/2389/chatline/internal/registry"
	"github.com/2389/chatline/internal/transport"
)

var (
	// ErrNoActiveConversation is returned by message operations before Init.
	ErrNoActiveConversation = errors.New("no active conversation")
	// ErrUnknownConversation is returned for ids not in the conversation list.
	ErrUnknownConversation = errors.New("unknown conversation")
)

// Backend is the REST side of the server.
type Backend interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	CreateConversation(ctx context.Context, id, title string) (chat.Conversation, error)
	GetConversation(ctx context.Context, id string) (chat.ConversationDetail, error)
	UpdateConversation(ctx context.Context, id string, req api.UpdateRequest) (chat.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	Summarize(ctx context.Context, id string) (string, error)
	SetFeedback(ctx context.Context, id string, index int, fb chat.Feedback) error
	UploadFiles(ctx context.Context, id string, files []api.File) ([]chat.FileRef, error)
}

// Transport is the chat channel.
type Transport interface {
	WaitReady(ctx context.Context) error
	Send(ctx context.Context, f chat.Frame) error
	Frames() <-chan chat.Frame
}

var (
	_ Backend   = (*api.Client)(nil)
	_ Transport = (*transport.Channel)(nil)
)

// Options configures a Session.
type Options struct {
	// User is the handle put in the from field of outgoing messages.
	User          string
	UntitledTitle string
	SendTimeout   time.Duration
	ReadyTimeout  time.Duration
	DedupeTTL     time.Duration
	DedupeSize    int
	// NewID generates message and conversation ids.
	NewID  func() string
	Logger *slog.Logger
}

// Session is safe for concurrent use. Reductions are serialized by mu.
type Session struct {
	backend   Backend
	transport Transport
	opts      Options
	logger    *slog.Logger
	seen      *dedupe.Tracker
	changes   *Broadcaster

	mu       sync.Mutex
	convs    []chat.Conversation
	activeID string
	messages reconciler.Sequence
	pending  map[string]string // conversation id -> initial message
}

// New creates a session. Call Init before anything else.
func New(backend Backend, transport Transport, opts Options) *Session {
	if opts.UntitledTitle == "" {
		opts.UntitledTitle = chat.UntitledTitle
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = 10 * time.Minute
	}
	if opts.DedupeSize <= 0 {
		opts.DedupeSize = 4096
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session")

	return &Session{
		backend:   backend,
		transport: transport,
		opts:      opts,
		logger:    logger,
		seen:      dedupe.New(opts.DedupeTTL, opts.DedupeSize),
		changes:   NewBroadcaster(logger),
		pending:   make(map[string]string),
	}
}

// Close releases the session's background resources.
func (s *Session) Close() {
	s.seen.Close()
	s.changes.Close()
}

// Subscribe returns a channel of state changes.
func (s *Session) Subscribe(ctx context.Context) (<-chan Change, string) {
	return s.changes.Subscribe(ctx)
}

// Init loads the conversation list, creating a placeholder conversation if
// there is none, then activates the first conversation and loads its history.
func (s *Session) Init(ctx context.Context) error {
	convs, err := s.backend.ListConversations(ctx)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		conv, err := s.backend.CreateConversation(ctx, s.opts.NewID(), s.opts.UntitledTitle)
		if err != nil {
			return err
		}
		convs = []chat.Conversation{conv}
	}

	detail, err := s.backend.GetConversation(ctx, convs[0].ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.convs = registry.Reduce(s.convs, registry.ReplaceAll{Conversations: convs})
	s.convs = registry.Reduce(s.convs, registry.Selected{Conversation: detail.Conversation})
	s.activeID = detail.ID
	s.messages = reconciler.Reduce(s.messages, reconciler.ReplaceAll{Messages: detail.Messages})
	s.mu.Unlock()

	s.logger.Info("session initialized", "conversations", len(convs), "active", detail.ID)
	s.publish(ChangeConversations, "")
	s.publish(ChangeMessages, detail.ID)
	return nil
}

// Conversations returns the conversation list.
func (s *Session) Conversations() []chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Conversation(nil), s.convs...)
}

// Active returns the active conversation.
func (s *Session) Active() (chat.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return registry.Active(s.convs)
}

// Messages returns the active conversation's message sequence.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages.Messages()
}

func (s *Session) publish(kind ChangeKind, conversationID string) {
	s.changes.Publish(Change{Kind: kind, ConversationID: conversationID})
}

// activeLocked returns the active conversation and its position. mu must be held.
func (s *Session) activeLocked() (chat.Conversation, int, error) {
	i := chat.IndexConversation(s.convs, s.activeID)
	if s.activeID == "" || i < 0 {
		return chat.Conversation{}, -1, ErrNoActiveConversation
	}
	return s.convs[i], i, nil
}

// Resolve resolves ref against the current conversation list; see ResolveRef.
func (s *Session) Resolve(ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ResolveRef(s.convs, ref)
}

// ResolveRef returns the id of the conversation at a 1-based position in
// convs, or the conversation named by ref as an id or a unique id prefix of at
// least four characters.
func ResolveRef(convs []chat.Conversation, ref string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(convs) {
			return "", fmt.Errorf("%w: no conversation at position %d", ErrUnknownConversation, n)
		}
		return convs[n-1].ID, nil
	}

	match := ""
	for _, c := range convs {
		if c.ID == ref {
			return c.ID, nil
		}
		if len(ref) >= 4 && strings.HasPrefix(c.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("%w: %q is ambiguous", ErrUnknownConversation, ref)
			}
			match = c.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownConversation, ref)
	}
	return match, nil
}
