// ABOUTME: Interactive terminal client for the helix backend.
// ABOUTME: Streams chat turns and exposes session management as slash commands.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/helix-console/internal/api"
	"github.com/2389/helix-console/internal/conversation"
	"github.com/2389/helix-console/internal/export"
	"github.com/2389/helix-console/internal/stream"
)

var version = "dev"

var (
	promptColor  = color.New(color.FgGreen, color.Bold)
	toolColor    = color.New(color.FgCyan)
	infoColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	subtleColor  = color.New(color.Faint)
	titleColor   = color.New(color.FgMagenta)
	currentColor = color.New(color.FgGreen)
)

func main() {
	serverAddr := flag.String("server", "http://localhost:8002", "Backend server address")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("helix-console %s\n", version)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *serverAddr, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, serverAddr, logLevel string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	client := api.New(serverAddr, api.LoadToken(), logger)
	console := &console{
		client:     client,
		controller: conversation.New(client, logger),
		out:        os.Stdout,
	}
	console.controller.OnEvent = console.render

	fmt.Printf("helix-console %s connected to %s\n", version, serverAddr)
	console.controller.Bootstrap(ctx)
	if id := console.controller.CurrentSessionID(); id != "" {
		console.printResumed()
	}
	subtleColor.Println("Type a message, or /help for commands.")

	return console.loop(ctx)
}

type console struct {
	client     *api.Client
	controller *conversation.Controller
	out        *os.File

	// Tracks whether the current assistant segment has produced output, so
	// markers and tokens are separated by the right amount of whitespace.
	lineOpen bool
}

// loop reads input lines on a goroutine so a signal can interrupt the wait.
func (c *console) loop(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	inputCh := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		for scanner.Scan() {
			inputCh <- scanner.Text()
		}
		errCh <- scanner.Err()
	}()

	for {
		c.prompt()
		select {
		case <-ctx.Done():
			fmt.Println("\nGoodbye.")
			return nil
		case err := <-errCh:
			fmt.Println("\nGoodbye.")
			return err
		case line := <-inputCh:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := c.command(ctx, line); quit {
					fmt.Println("Goodbye.")
					return nil
				}
				continue
			}
			c.sendTurn(ctx, line)
		}
	}
}

func (c *console) prompt() {
	title := "no session"
	for _, s := range c.controller.Sessions() {
		if s.ID == c.controller.CurrentSessionID() {
			title = s.Title
		}
	}
	promptColor.Fprintf(c.out, "[%s] > ", title)
}

func (c *console) sendTurn(ctx context.Context, text string) {
	c.lineOpen = false
	err := c.controller.SendTurn(ctx, text)
	c.closeLine()
	switch {
	case err == nil:
	case ctx.Err() != nil:
	default:
		errorColor.Fprintf(c.out, "error: %v\n", err)
	}
}

// render is the controller's event hook; it draws each stream event as it is
// applied to the transcript.
func (c *console) render(ev stream.Event, _ *conversation.Message) {
	switch ev.Type {
	case stream.EventToken:
		fmt.Fprint(c.out, ev.Content)
		c.lineOpen = true
	case stream.EventToolStart:
		c.closeLine()
		toolColor.Fprintf(c.out, "⚙ %s %s\n", ev.Tool, ev.Input)
	case stream.EventToolEnd:
		c.closeLine()
		toolColor.Fprintf(c.out, "✓ %s\n", firstLine(ev.Output))
	case stream.EventRetrieval:
		c.closeLine()
		for _, res := range ev.Results {
			infoColor.Fprintf(c.out, "… %s (%.2f)\n", res.Source, res.Score)
		}
	case stream.EventNewResponse:
		c.closeLine()
		fmt.Fprintln(c.out)
	case stream.EventError:
		c.closeLine()
		errorColor.Fprintf(c.out, "✗ %s\n", ev.Error)
	case stream.EventTitle:
		c.closeLine()
		titleColor.Fprintf(c.out, "» titled %q\n", ev.Title)
	case stream.EventDone:
		c.closeLine()
	}
}

func (c *console) closeLine() {
	if c.lineOpen {
		fmt.Fprintln(c.out)
		c.lineOpen = false
	}
}

// command dispatches a slash command. Returns true to quit.
func (c *console) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		c.printHelp()
	case "/sessions", "/ls":
		c.printSessions()
	case "/new":
		session, err := c.controller.CreateSession(ctx)
		if err != nil {
			errorColor.Fprintf(c.out, "error: %v\n", err)
			return false
		}
		fmt.Fprintf(c.out, "Started session %s.\n", session.ID)
	case "/select", "/switch":
		c.selectSession(ctx, arg)
	case "/rename":
		c.renameSession(ctx, arg)
	case "/delete", "/rm":
		c.deleteSession(ctx, arg)
	case "/compress":
		c.compress(ctx)
	case "/rag":
		c.setRagMode(ctx, arg)
	case "/skills":
		c.printSkills(ctx)
	case "/memory":
		c.printFile(ctx, "memory/MEMORY.md")
	case "/read":
		if arg == "" {
			errorColor.Fprintln(c.out, "usage: /read <path>")
			return false
		}
		c.printFile(ctx, arg)
	case "/tokens":
		c.printTokens(ctx)
	case "/export":
		c.export(arg)
	default:
		errorColor.Fprintf(c.out, "unknown command %s (try /help)\n", name)
	}
	return false
}

func (c *console) printHelp() {
	help := [][2]string{
		{"/sessions", "list sessions"},
		{"/new", "start a fresh session"},
		{"/select <n|id>", "switch to a session by list number or id"},
		{"/rename <title>", "rename the active session"},
		{"/delete [n|id]", "delete a session (active one by default)"},
		{"/compress", "archive the oldest half of the active session"},
		{"/rag [on|off]", "show or set retrieval mode"},
		{"/skills", "list available skills"},
		{"/memory", "show the agent memory index"},
		{"/read <path>", "show a workspace file"},
		{"/tokens", "show the active session's token usage"},
		{"/export <file>", "write the transcript as HTML"},
		{"/quit", "exit"},
	}
	for _, entry := range help {
		fmt.Fprintf(c.out, "  %-18s %s\n", entry[0], entry[1])
	}
}

func (c *console) printSessions() {
	sessions := c.controller.Sessions()
	if len(sessions) == 0 {
		subtleColor.Fprintln(c.out, "No sessions yet.")
		return
	}
	for i, s := range sessions {
		line := fmt.Sprintf("%2d. %s (%d messages, %s)",
			i+1, s.Title, s.MessageCount, relativeTime(s.UpdatedAt))
		if s.ID == c.controller.CurrentSessionID() {
			currentColor.Fprintf(c.out, "%s *\n", line)
		} else {
			fmt.Fprintln(c.out, line)
		}
	}
}

func (c *console) printResumed() {
	for _, s := range c.controller.Sessions() {
		if s.ID == c.controller.CurrentSessionID() {
			subtleColor.Printf("Resumed %q (%d messages).\n", s.Title, s.MessageCount)
		}
	}
}

// resolveSession maps a list number or raw id to a session id. An empty
// argument means the active session.
func (c *console) resolveSession(arg string) (string, error) {
	if arg == "" {
		if id := c.controller.CurrentSessionID(); id != "" {
			return id, nil
		}
		return "", fmt.Errorf("no active session")
	}
	sessions := c.controller.Sessions()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(sessions) {
			return "", fmt.Errorf("no session numbered %d", n)
		}
		return sessions[n-1].ID, nil
	}
	for _, s := range sessions {
		if s.ID == arg {
			return s.ID, nil
		}
	}
	return "", fmt.Errorf("unknown session %q", arg)
}

func (c *console) selectSession(ctx context.Context, arg string) {
	if arg == "" {
		errorColor.Fprintln(c.out, "usage: /select <n|id>")
		return
	}
	id, err := c.resolveSession(arg)
	if err == nil {
		err = c.controller.SelectSession(ctx, id)
	}
	if err != nil {
		errorColor.Fprintf(c.out, "error: %v\n", err)
		return
	}
	c.replay()
}

// replay prints the selected session's transcript so the switch is visible.
func (c *console) replay() {
	for _, msg := range c.controller.Messages() {
		switch msg.Role {
		case conversation.RoleUser:
			promptColor.Fprint(c.out, "you: ")
			fmt.Fprintln(c.out, msg.Content)
		case conversation.RoleAssistant:
			for _, call := range msg.ToolCalls {
				toolColor.Fprintf(c.out, "⚙ %s %s\n", call.Tool, call.Input)
			}
			fmt.Fprintln(c.out, msg.Content)
		}
	}
}

func (c *console) renameSession(ctx context.Context, title string) {
	if title == "" {
		errorColor.Fprintln(c.out, "usage: /rename <title>")
		return
	}
	id := c.controller.CurrentSessionID()
	if id == "" {
		errorColor.Fprintln(c.out, "no active session")
		return
	}
	if err := c.controller.RenameSession(ctx, id, title); err != nil {
		errorColor.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Renamed to %q.\n", title)
}

func (c *console) deleteSession(ctx context.Context, arg string) {
	id, err := c.resolveSession(arg)
	if err == nil {
		err = c.controller.DeleteSession(ctx, id)
	}
	if err != nil {
		errorColor.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "Session deleted.")
}

func (c *console) compress(ctx context.Context) {
	result, err := c.controller.CompressSession(ctx)
	if err != nil {
		errorColor.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Archived %d messages, %d remain.\n",
		result.ArchivedCount, result.RemainingCount)
	subtleColor.Fprintf(c.out, "summary: %s\n", result.Summary)
}

func (c *console) setRagMode(ctx context.Context, arg string) {
	switch arg {
	case "":
		fmt.Fprintf(c.out, "Retrieval mode is %s.\n", onOff(c.controller.RagMode()))
	case "on", "off":
		if err := c.controller.SetRagMode(ctx, arg == "on"); err != nil {
			errorColor.Fprintf(c.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "Retrieval mode %s.\n", arg)
	default:
		errorColor.Fprintln(c.out, "usage: /rag [on|off]")
	}
}

func (c *console) printSkills(ctx context.Context) {
	skills, err := c.client.ListSkills(ctx)
	if err != nil {
		errorColor.Fprintf(c.out, "error: %v\n", err)
		return
	}
	if len(skills) == 0 {
		subtleColor.Fprintln(c.out, "No skills installed.")
		return
	}
	for _, skill := range skills {
		fmt.Fprintf(c.out, "  %-20s %s\n", skill.Name, skill.Path)
	}
}

func (c *console) printFile(ctx context.Context, path string) {
	content, err := c.client.ReadFile(ctx, path)
	if err != nil {
		errorColor.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, content)
}

func (c *console) printTokens(ctx context.Context) {
	id := c.controller.CurrentSessionID()
	if id == "" {
		errorColor.Fprintln(c.out, "no active session")
		return
	}
	stats, err := c.client.SessionTokens(ctx, id)
	if err != nil {
		errorColor.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "system: %d  messages: %d  total: %d tokens\n",
		stats.SystemTokens, stats.MessageTokens, stats.TotalTokens)
}

func (c *console) export(path string) {
	if path == "" {
		errorColor.Fprintln(c.out, "usage: /export <file>")
		return
	}
	id := c.controller.CurrentSessionID()
	if id == "" {
		errorColor.Fprintln(c.out, "no active session")
		return
	}
	title := ""
	for _, s := range c.controller.Sessions() {
		if s.ID == id {
			title = s.Title
		}
	}

	f, err := os.Create(path)
	if err != nil {
		errorColor.Fprintf(c.out, "error: %v\n", err)
		return
	}
	defer f.Close()

	if err := export.WriteHTML(f, title, c.controller.Messages()); err != nil {
		errorColor.Fprintf(c.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Wrote %s.\n", path)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// relativeTime formats a unix-seconds timestamp for the session list.
func relativeTime(unixSeconds float64) string {
	at := time.Unix(int64(unixSeconds), 0)
	d := time.Since(at)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
