// ABOUTME: Terminal chat client for parley-gateway
// ABOUTME: Drives the conversation engine and renders its updates as they arrive

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/parley/internal/apiclient"
	"github.com/2389/parley/internal/chat"
)

// getToken returns the auth token.
// Priority: PARLEY_TOKEN env var > XDG_CONFIG_HOME/parley/token > ~/.config/parley/token
func getToken() string {
	if token := os.Getenv("PARLEY_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	tokenPath := filepath.Join(configDir, "parley", "token")
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Gateway base URL")
	chatID := flag.String("chat", "", "Conversation ID to open on startup")
	flag.Parse()

	token := getToken()
	if token == "" {
		fmt.Fprintln(os.Stderr, "No token found. Set PARLEY_TOKEN or run: parley-gateway bootstrap --name \"Your Name\"")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *serverURL, token, *chatID); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, serverURL, token, chatID string) error {
	// Keep client-side logging quiet; problems surface through the engine.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	client := apiclient.New(serverURL, token, logger)

	session, err := client.Session(ctx)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", serverURL, err)
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	cyan.Println("parley")
	name := session.DisplayName
	if name == "" {
		name = session.UserID
	}
	gray.Printf("signed in as %s · %s\n", name, serverURL)
	gray.Println("type /help for commands")
	fmt.Println()

	engine := chat.NewEngine(client, session, chat.Options{Logger: logger})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go engine.Run(runCtx)

	r := newRenderer()
	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case u := <-engine.Updates():
				r.render(u)
			}
		}
	}()

	ui := &shell{
		ctx:    runCtx,
		client: client,
		engine: engine,
	}

	if chatID != "" {
		engine.Open(chatID)
	} else if err := ui.openMostRecent(); err != nil {
		gray.Printf("no open conversation: %v\n", err)
		gray.Println("use /new to start one")
	}

	return ui.loop()
}

// shell owns the interactive command loop and the conversation list cache.
type shell struct {
	ctx    context.Context
	client *apiclient.Client
	engine *chat.Engine

	// chats caches the last listed conversations so /open and /delete
	// accept positional numbers.
	chats []chat.Conversation
}

func (s *shell) loop() error {
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)

	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-s.ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil // stdin closed
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if quit := s.dispatch(line); quit {
				return nil
			}
		}
	}
}

// dispatch handles one input line. Returns true when the user asked to quit.
func (s *shell) dispatch(line string) bool {
	if !strings.HasPrefix(line, "/") {
		s.engine.Send(line)
		return false
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit", "/q":
		fmt.Println("bye")
		return true
	case "/help":
		printHelp()
	case "/chats":
		s.listChats()
	case "/new":
		s.newChat(rest)
	case "/open":
		s.openChat(rest)
	case "/delete":
		s.deleteChat(rest)
	case "/reconnect":
		s.engine.Reconnect()
	default:
		fmt.Printf("unknown command: %s (try /help)\n", cmd)
	}
	return false
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /chats          List your conversations")
	fmt.Println("  /new [title]    Start a new conversation and open it")
	fmt.Println("  /open N|ID      Open a conversation from the /chats list")
	fmt.Println("  /delete N|ID    Delete a conversation")
	fmt.Println("  /reconnect      Reopen the live feed after a connection error")
	fmt.Println("  /quit           Exit")
	fmt.Println()
	fmt.Println("Anything else is sent as a message.")
}

func (s *shell) listChats() {
	chats, err := s.client.ListConversations(s.ctx, "")
	if err != nil {
		color.Red("listing conversations: %v", err)
		return
	}
	s.chats = chats

	if len(chats) == 0 {
		fmt.Println("no conversations yet, use /new")
		return
	}
	for i, c := range chats {
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("  %d. %s", i+1, truncate(title, 50))
		color.New(color.FgHiBlack).Printf("  %s · %s\n", c.UpdatedAt.Local().Format("Jan 2 15:04"), c.ID)
	}
}

func (s *shell) newChat(title string) {
	conv, err := s.client.CreateConversation(s.ctx, "", title)
	if err != nil {
		color.Red("creating conversation: %v", err)
		return
	}
	fmt.Printf("opened %q\n", conv.Title)
	s.engine.Open(conv.ID)
}

// resolve turns a /chats list number or a raw ID into a conversation ID.
func (s *shell) resolve(arg string) (string, bool) {
	if arg == "" {
		fmt.Println("which one? run /chats, then pass a number or an ID")
		return "", false
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(s.chats) {
			fmt.Printf("no chat %d in the last /chats list\n", n)
			return "", false
		}
		return s.chats[n-1].ID, true
	}
	return arg, true
}

func (s *shell) openChat(arg string) {
	id, ok := s.resolve(arg)
	if !ok {
		return
	}
	s.engine.Open(id)
}

func (s *shell) deleteChat(arg string) {
	id, ok := s.resolve(arg)
	if !ok {
		return
	}
	if err := s.client.DeleteConversation(s.ctx, id); err != nil {
		color.Red("deleting conversation: %v", err)
		return
	}
	fmt.Println("deleted")
}

// openMostRecent opens the newest conversation, if any exist.
func (s *shell) openMostRecent() error {
	chats, err := s.client.ListConversations(s.ctx, "")
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		return errors.New("no conversations")
	}
	s.chats = chats
	s.engine.Open(chats[0].ID)
	return nil
}

// renderer prints engine updates incrementally. Snapshots supersede each
// other, so it appends only positions beyond what it already printed; a
// shorter transcript means the conversation switched and the view restarts.
type renderer struct {
	printed   int
	lastDay   time.Time
	typing    bool
	connState chat.ConnState
}

func newRenderer() *renderer {
	return &renderer{connState: chat.StateConnecting}
}

func (r *renderer) render(u chat.Update) {
	flat := flatten(u.Groups)

	if len(flat) < r.printed {
		r.printed = 0
		r.lastDay = time.Time{}
		fmt.Println()
	}

	for _, fm := range flat[r.printed:] {
		if !fm.day.Equal(r.lastDay) {
			color.New(color.FgYellow).Printf("--- %s ---\n", fm.label)
			r.lastDay = fm.day
		}
		printMessage(fm.msg)
	}
	r.printed = len(flat)

	if u.Typing != r.typing {
		r.typing = u.Typing
		if u.Typing {
			color.New(color.FgHiBlack).Println("bot is typing…")
		}
	}

	if u.ConnState != r.connState {
		prev := r.connState
		r.connState = u.ConnState
		switch u.ConnState {
		case chat.StateError:
			if errors.Is(u.ConnErr, chat.ErrConversationNotFound) {
				color.Red("conversation not found")
			} else {
				color.Red("connection lost: %v (use /reconnect)", u.ConnErr)
			}
		case chat.StateOpen:
			if prev == chat.StateError {
				color.Green("reconnected")
			}
		}
	}

	if u.SendErr != nil {
		color.Red("send failed: %v", u.SendErr)
	}
}

type flatMessage struct {
	day   time.Time
	label string
	msg   chat.ViewMessage
}

func flatten(groups []chat.DayGroup) []flatMessage {
	var out []flatMessage
	for _, g := range groups {
		for _, m := range g.Messages {
			out = append(out, flatMessage{day: g.Day, label: g.Label, msg: m})
		}
	}
	return out
}

func printMessage(m chat.ViewMessage) {
	ts := color.New(color.FgHiBlack).Sprint(m.CreatedAt.Local().Format("15:04"))

	var who string
	switch m.Kind {
	case chat.KindOwn:
		who = color.New(color.FgCyan).Sprint("you")
	case chat.KindBot:
		who = color.New(color.FgGreen).Sprint("bot")
	default:
		who = color.New(color.FgMagenta).Sprint(m.AuthorID)
	}

	suffix := ""
	if m.Origin == chat.OriginOptimistic {
		suffix = color.New(color.FgHiBlack).Sprint(" ⋯")
	}

	fmt.Printf("%s %s: %s%s\n", ts, who, m.Content, suffix)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
