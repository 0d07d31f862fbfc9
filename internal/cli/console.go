// Package cli runs a chat session in the terminal.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/liliang-cn/moviechat/internal/chat"
	"github.com/liliang-cn/moviechat/internal/domain"
)

// ErrSessionClosed is returned when the session goes away mid conversation
var ErrSessionClosed = errors.New("session closed")

// LineReader reads one line of input. *liner.State satisfies it.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

// Console drives one session from a terminal
type Console struct {
	sess        *chat.Session
	events      <-chan domain.StreamChunk
	unsubscribe func()
	out         io.Writer
	renderer    *glamour.TermRenderer
	exportDir   string
	greeting    string
}

// Option configures a Console
type Option func(*Console)

// WithMarkdown renders non-revealed replies with glamour at the given width
func WithMarkdown(width int) Option {
	return func(c *Console) {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			c.renderer = r
		}
	}
}

// WithExportDir sets the default directory for /export
func WithExportDir(dir string) Option {
	return func(c *Console) {
		c.exportDir = dir
	}
}

// WithGreeting prints greeting when the console starts
func WithGreeting(greeting string) Option {
	return func(c *Console) {
		c.greeting = greeting
	}
}

// NewConsole attaches a console to sess, writing to out
func NewConsole(sess *chat.Session, out io.Writer, opts ...Option) *Console {
	events, unsubscribe := sess.Subscribe()
	c := &Console{
		sess:        sess,
		events:      events,
		unsubscribe: unsubscribe,
		out:         out,
		exportDir:   ".",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close detaches from the session
func (c *Console) Close() {
	c.unsubscribe()
}

// Run prints the banner, answers seed if set, then reads lines until EOF or /quit
func (c *Console) Run(ctx context.Context, in LineReader, seed string) error {
	c.banner()

	if seed = strings.TrimSpace(seed); seed != "" && c.sess.Bootstrap(seed) {
		c.printUser(seed)
		if err := c.Await(ctx); err != nil {
			return err
		}
	}

	for {
		line, err := in.Prompt(promptStyle.Render("you> "))
		if err != nil {
			fmt.Fprintln(c.out)
			return nil
		}
		quit, err := c.Handle(ctx, line)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrSessionClosed) {
				return err
			}
			fmt.Fprintln(c.out, errorStyle.Render("[Error] "+err.Error()))
		}
		if quit {
			return nil
		}
	}
}

func (c *Console) banner() {
	fmt.Fprintln(c.out, titleStyle.Render("MovieChat"))
	if c.greeting != "" {
		fmt.Fprintln(c.out, c.greeting)
	}
	c.printSuggestions()
	fmt.Fprintln(c.out, dimStyle.Render("Commands: /suggest N, /clear, /export [dir], /help, /quit"))
	fmt.Fprintln(c.out)
}

func (c *Console) printSuggestions() {
	suggestions := c.sess.Suggestions()
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintln(c.out, dimStyle.Render("Try asking:"))
	for i, s := range suggestions {
		fmt.Fprintln(c.out, dimStyle.Render(fmt.Sprintf("  %d. %s", i+1, s)))
	}
}

// Handle processes one input line. It reports whether the user asked to quit.
func (c *Console) Handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, c.send(ctx, line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		c.printSuggestions()
		fmt.Fprintln(c.out, dimStyle.Render("Commands: /suggest N, /clear, /export [dir], /help, /quit"))
	case "/clear":
		c.sess.Clear()
		fmt.Fprintln(c.out, dimStyle.Render("Conversation cleared."))
	case "/export":
		dir := c.exportDir
		if len(fields) > 1 {
			dir = fields[1]
		}
		path, err := WriteExport(c.sess.Export(), dir)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, dimStyle.Render("Exported to "+path))
	case "/suggest":
		if len(fields) < 2 {
			c.printSuggestions()
			return false, nil
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 || n > len(c.sess.Suggestions()) {
			return false, fmt.Errorf("no suggestion %q", fields[1])
		}
		text := c.sess.Suggestions()[n-1]
		if err := c.sess.TrySubmitSuggestion(n - 1); err != nil {
			return false, rejected(err)
		}
		c.printUser(text)
		return false, c.Await(ctx)
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}

func (c *Console) send(ctx context.Context, text string) error {
	if err := c.sess.TrySubmit(text); err != nil {
		return rejected(err)
	}
	return c.Await(ctx)
}

func rejected(err error) error {
	switch {
	case errors.Is(err, domain.ErrRequestPending):
		return errors.New("still waiting for the previous answer")
	case errors.Is(err, domain.ErrRateLimited):
		return errors.New("slow down, too many questions")
	case errors.Is(err, domain.ErrSessionNotFound):
		return ErrSessionClosed
	}
	return err
}

func (c *Console) printUser(text string) {
	fmt.Fprintf(c.out, "%s %s\n", userStyle.Render("you:"), text)
}

// Await blocks until the assistant reply to the last submission is
// complete. Revealed replies are printed as they type out.
func (c *Console) Await(ctx context.Context) error {
	var reply *domain.Message
	settled := false
	for reply == nil || !settled {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.events:
			if !ok {
				return ErrSessionClosed
			}
			switch ev.Type {
			case "message":
				if ev.Message != nil && ev.Message.Role == domain.RoleAssistant {
					reply = ev.Message
				}
			case "pending":
				settled = !ev.Pending
			}
		}
	}

	if reply.IsError || c.sess.Revealer() == nil {
		c.finish(*reply)
		return nil
	}
	return c.reveal(ctx, *reply)
}

func (c *Console) reveal(ctx context.Context, reply domain.Message) error {
	r := c.sess.Revealer()
	ticker := time.NewTicker(r.Interval())
	defer ticker.Stop()

	fmt.Fprint(c.out, assistantStyle.Render("ai:")+" ")
	printed := 0
	for {
		buffer, typing := r.Snapshot()
		if !typing {
			buffer = reply.Content
		}
		if len(buffer) > printed {
			fmt.Fprint(c.out, buffer[printed:])
			printed = len(buffer)
		}
		if !typing {
			fmt.Fprintln(c.out)
			c.printSources(reply.Sources)
			return nil
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Console) finish(reply domain.Message) {
	if reply.IsError {
		fmt.Fprintf(c.out, "%s %s\n", assistantStyle.Render("ai:"), errorStyle.Render(reply.Content))
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", assistantStyle.Render("ai:"), c.render(reply.Content))
	c.printSources(reply.Sources)
}

func (c *Console) printSources(sources []domain.Source) {
	for _, src := range sources {
		fmt.Fprintln(c.out, dimStyle.Render(fmt.Sprintf("  source: %s (%s, %.0f%%)", src.MovieTitle, src.SectionType, src.Similarity*100)))
	}
}

func (c *Console) render(content string) string {
	if c.renderer == nil {
		return content
	}
	out, err := c.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(out)
}

// WriteExport writes export into dir and returns the file path
func WriteExport(export chat.Export, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	// colons in the timestamp are not portable in file names
	name := strings.ReplaceAll(export.Filename, ":", "-")
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(export.Body), 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
