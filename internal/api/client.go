// ABOUTME: HTTP client for the chat server's conversation, feedback and upload endpoints
// ABOUTME: JSON bodies, bearer token plus user header, status errors mapped to sentinels

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/2389/chatline/internal/chat"
)

// Client talks to the chat server's REST endpoints.
type Client struct {
	baseURL string
	user    string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the server at baseURL acting as user.
func New(baseURL, user, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		user:    user,
		token:   token,
		http:    http.DefaultClient,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "api")
	return c
}

// File is one upload part.
type File struct {
	Name string
	Body io.Reader
}

// ListConversations returns the user's conversation summaries in server order.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var convs []chat.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &convs); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return convs, nil
}

// CreateConversation creates a conversation with a client-chosen id.
func (c *Client) CreateConversation(ctx context.Context, id, title string) (chat.Conversation, error) {
	var conv chat.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/conversations", CreateRequest{ID: id, Title: title}, &conv); err != nil {
		return chat.Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil
}

// GetConversation fetches a conversation with its persisted history.
func (c *Client) GetConversation(ctx context.Context, id string) (chat.ConversationDetail, error) {
	var detail chat.ConversationDetail
	if err := c.do(ctx, http.MethodGet, conversationPath(id), nil, &detail); err != nil {
		return chat.ConversationDetail{}, fmt.Errorf("fetching conversation %s: %w", id, err)
	}
	return detail, nil
}

// UpdateConversation renames and/or pins a conversation.
func (c *Client) UpdateConversation(ctx context.Context, id string, req UpdateRequest) (chat.Conversation, error) {
	var conv chat.Conversation
	if err := c.do(ctx, http.MethodPut, conversationPath(id), req, &conv); err != nil {
		return chat.Conversation{}, fmt.Errorf("updating conversation %s: %w", id, err)
	}
	return conv, nil
}

// DeleteConversation deletes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, conversationPath(id), nil, nil); err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	return nil
}

// Summarize asks the server to derive a title and returns it.
func (c *Client) Summarize(ctx context.Context, id string) (string, error) {
	var resp SummaryResponse
	if err := c.do(ctx, http.MethodPost, conversationPath(id)+"/summarization", nil, &resp); err != nil {
		return "", fmt.Errorf("summarizing conversation %s: %w", id, err)
	}
	return resp.Title, nil
}

// SetFeedback rates the message at index. fb must be thumbup or thumbdown.
func (c *Client) SetFeedback(ctx context.Context, id string, index int, fb chat.Feedback) error {
	if fb != chat.FeedbackThumbUp && fb != chat.FeedbackThumbDown {
		return fmt.Errorf("unsupported feedback %q", fb)
	}
	path := conversationPath(id) + "/messages/" + strconv.Itoa(index) + "/" + string(fb)
	if err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("sending feedback: %w", err)
	}
	return nil
}

// UploadFiles posts files as multipart parts named "files" and returns the
// descriptors the server stored, in order.
func (c *Client) UploadFiles(ctx context.Context, id string, files []File) ([]chat.FileRef, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("creating part %s: %w", f.Name, err)
		}
		if _, err := io.Copy(part, f.Body); err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, conversationPath(id)+"/files", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var refs []chat.FileRef
	if err := c.send(req, &refs); err != nil {
		return nil, fmt.Errorf("uploading files: %w", err)
	}
	return refs, nil
}

func conversationPath(id string) string {
	return "/api/conversations/" + url.PathEscape(id)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(UserHeader, c.user)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends a JSON request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode}
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			statusErr.Message = errResp.Error
		}
		return statusErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
