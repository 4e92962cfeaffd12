// ABOUTME: Interactive chat command: routes frames, renders changes and reads input
// ABOUTME: Plain lines are sent as messages; lines starting with / are commands

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/chat"
	"github.com/2389/chatline/internal/session"
	"github.com/2389/chatline/internal/transport"
)

// errQuit ends the chat loop without an error.
var errQuit = errors.New("quit")

const helpText = `Commands:
  /new [text]          start a conversation, optionally with a first message
  /list                list conversations
  /switch <ref>        switch to a conversation (position, id or id prefix)
  /rename <title>      rename the active conversation
  /pin, /unpin         pin or unpin the active conversation
  /delete [ref]        delete a conversation (default: the active one)
  /upload <path>...    upload files to the active conversation
  /up <n>, /down <n>   rate message n
  /summarize           ask the server for a title
  /show                print the whole active conversation again
  /help                show this help
  /quit                leave
`

// newChatCmd instantiates and returns the chat command.
func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [conversation]",
		Short: "Open an interactive chat session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			return a.runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), ref)
		},
	}
}

func (a *app) runChat(ctx context.Context, in io.Reader, out io.Writer, ref string) error {
	chatURL, err := a.cfg.Server.ChatURL()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	channel := transport.Open(ctx, chatURL, transport.Options{Header: a.chatHeader(), Logger: a.logger})
	defer channel.Close()

	sess := session.New(a.client(), channel, session.Options{
		User:          a.cfg.User.Handle,
		UntitledTitle: a.cfg.Session.UntitledTitle,
		SendTimeout:   a.cfg.Session.SendTimeout,
		ReadyTimeout:  a.cfg.Session.ReadyTimeout,
		DedupeTTL:     a.cfg.Session.DedupeTTL,
		DedupeSize:    a.cfg.Session.DedupeSize,
		Logger:        a.logger,
	})
	defer sess.Close()

	if err := sess.Init(ctx); err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}
	if ref != "" {
		id, err := sess.Resolve(ref)
		if err != nil {
			return err
		}
		if err := sess.Select(ctx, id); err != nil {
			return err
		}
	}

	c := &console{sess: sess, out: out, user: a.cfg.User.Handle, transcript: newTranscript(out, a.cfg.User.Handle)}
	changes, _ := sess.Subscribe(ctx)
	c.refresh()

	g, gctx := errgroup.WithContext(ctx)
	lines := readLines(gctx, in)
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error { return c.watch(gctx, changes) })
	g.Go(func() error { return c.loop(gctx, lines) })

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readLines delivers lines from r until EOF or ctx is done. The reader
// goroutine may stay blocked in Read after ctx ends.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// console serializes terminal output between the change watcher and the
// command loop.
type console struct {
	sess *session.Session
	out  io.Writer
	user string

	mu         sync.Mutex
	transcript *transcript
	shownID    string
	shownTitle string
}

func (c *console) watch(ctx context.Context, changes <-chan session.Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			c.refresh()
		}
	}
}

// refresh prints a header when the active conversation or its title changed,
// then whatever changed in its messages.
func (c *console) refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, ok := c.sess.Active()
	if !ok {
		return
	}
	if active.ID != c.shownID {
		c.transcript.reset()
	}
	if active.ID != c.shownID || active.Title != c.shownTitle {
		c.transcript.closeLine()
		titleColor.Fprintf(c.out, "== %s ==\n", active.Title)
		c.shownID, c.shownTitle = active.ID, active.Title
	}
	c.transcript.update(c.sess.Messages())
}

func (c *console) printf(col *color.Color, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.closeLine()
	col.Fprintf(c.out, format, args...)
}

func (c *console) loop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			err := c.dispatch(ctx, line)
			if errors.Is(err, errQuit) {
				return err
			}
			if err != nil {
				c.printf(errorColor, "! %v\n", err)
			}
		}
	}
}

// splitCommand splits "/name rest" into its name and trimmed argument text.
func splitCommand(line string) (string, string) {
	name, rest, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

func (c *console) activeID() (string, error) {
	active, ok := c.sess.Active()
	if !ok {
		return "", session.ErrNoActiveConversation
	}
	return active.ID, nil
}

func (c *console) dispatch(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return c.sess.Send(ctx, line)
	}

	name, rest := splitCommand(line)
	switch name {
	case "quit", "exit":
		return errQuit
	case "help":
		c.printf(infoColor, "%s", helpText)
		return nil
	case "new":
		if rest == "" {
			_, err := c.sess.NewConversation(ctx)
			return err
		}
		_, err := c.sess.StartConversation(ctx, rest)
		return err
	case "list":
		c.mu.Lock()
		defer c.mu.Unlock()
		c.transcript.closeLine()
		printConversations(c.out, c.sess.Conversations())
		return nil
	case "switch":
		if rest == "" {
			return errors.New("usage: /switch <ref>")
		}
		id, err := c.sess.Resolve(rest)
		if err != nil {
			return err
		}
		return c.sess.Select(ctx, id)
	case "rename":
		if rest == "" {
			return errors.New("usage: /rename <title>")
		}
		id, err := c.activeID()
		if err != nil {
			return err
		}
		return c.sess.Rename(ctx, id, rest)
	case "pin", "unpin":
		id, err := c.activeID()
		if err != nil {
			return err
		}
		return c.sess.SetPinned(ctx, id, name == "pin")
	case "delete":
		id, err := c.activeID()
		if rest != "" {
			id, err = c.sess.Resolve(rest)
		}
		if err != nil {
			return err
		}
		return c.sess.Delete(ctx, id)
	case "upload":
		return c.upload(ctx, strings.Fields(rest))
	case "up", "down":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("usage: /%s <message number>", name)
		}
		fb := chat.FeedbackThumbUp
		if name == "down" {
			fb = chat.FeedbackThumbDown
		}
		return c.sess.Feedback(ctx, n, fb)
	case "summarize":
		title, err := c.sess.Summarize(ctx)
		if err != nil {
			return err
		}
		c.printf(infoColor, "title: %s\n", title)
		return nil
	case "show":
		c.mu.Lock()
		defer c.mu.Unlock()
		c.transcript.reset()
		msgs := c.sess.Messages()
		printMessages(c.out, msgs, c.user, 0)
		for _, m := range msgs {
			c.transcript.shown[m.ID] = body(m)
		}
		return nil
	default:
		return fmt.Errorf("unknown command /%s, try /help", name)
	}
}

func (c *console) upload(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return errors.New("usage: /upload <path>...")
	}
	files := make([]api.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		files = append(files, api.File{Name: filepath.Base(p), Body: bytes.NewReader(data)})
	}
	refs, err := c.sess.UploadFiles(ctx, files)
	if err != nil {
		return err
	}
	c.printf(infoColor, "uploaded %d file(s)\n", len(refs))
	return nil
}
