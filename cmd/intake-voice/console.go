package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/vango-go/vai-intake/pkg/config"
	"github.com/vango-go/vai-intake/pkg/core/live"
	"github.com/vango-go/vai-intake/pkg/core/types"
)

// conversation is the subset of *live.Machine the console drives.
type conversation interface {
	Events() <-chan live.Event
	State() live.StateKind
	Session() types.ConversationSession
	Level() float64
	Tap() error
	End() error
	Retry() error
	Reset() error
	SendText(text string) error
	Submit(ctx context.Context) error
}

// machineAdapter drops the receipt from Submit; the console reports it
// through the submission event.
type machineAdapter struct{ *live.Machine }

func (a machineAdapter) Submit(ctx context.Context) error {
	_, err := a.Machine.Submit(ctx)
	return err
}

type console struct {
	out  io.Writer
	conv conversation

	mu       sync.Mutex
	levelOn  bool
	terminal bool
	width    int
}

func newConsole(out io.Writer, m *live.Machine) *console {
	c := &console{out: out, conv: machineAdapter{m}, width: 40}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.terminal = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			c.width = min(w-20, 60)
		}
	}
	return c
}

func (c *console) banner(cfg *config.Config) {
	c.printf("Patient intake (%s, dialogue: %s)\n", cfg.Conversation.Language, cfg.Dialogue.Backend)
	c.printf("Press Enter to talk. /t <text> to type, /end to finish, q to quit.\n\n")
}

type command struct {
	name string
	arg  string
}

// parseCommand maps one input line to a console command. An empty line
// is a tap.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{name: "tap"}
	}
	if line == "q" || line == "/q" || line == "/exit" || line == "/quit" {
		return command{name: "quit"}
	}
	if !strings.HasPrefix(line, "/") {
		return command{name: "text", arg: line}
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "t", "text":
		return command{name: "text", arg: arg}
	case "end":
		return command{name: "end"}
	case "submit":
		return command{name: "submit"}
	case "retry":
		return command{name: "retry"}
	case "reset":
		return command{name: "reset"}
	case "status":
		return command{name: "status"}
	default:
		return command{name: "unknown", arg: name}
	}
}

// handle runs one input line and reports whether the console should
// keep reading.
func (c *console) handle(ctx context.Context, line string) bool {
	cmd := parseCommand(line)

	var err error
	switch cmd.name {
	case "quit":
		return false
	case "tap":
		err = c.conv.Tap()
	case "text":
		if cmd.arg == "" {
			c.printf("usage: /t <text>\n")
			return true
		}
		err = c.conv.SendText(cmd.arg)
	case "end":
		err = c.conv.End()
	case "retry":
		err = c.conv.Retry()
	case "reset":
		err = c.conv.Reset()
	case "submit":
		go func() {
			if err := c.conv.Submit(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.printf("! submission failed: %v\n", err)
			}
		}()
	case "status":
		c.status()
	default:
		c.printf("unknown command /%s\n", cmd.arg)
	}
	if err != nil {
		c.printf("! %v\n", err)
	}
	return true
}

func (c *console) status() {
	s := c.conv.Session()
	c.printf("session %s: %d turns, state %s\n", s.ID, len(s.Turns), c.conv.State())
	if list := s.Symptoms.List(); len(list) > 0 {
		c.printf("  symptoms: %s\n", strings.Join(list, ", "))
	}
	if s.Severity != "" {
		c.printf("  severity: %s\n", s.Severity)
	}
	if s.Submitted {
		c.printf("  submitted as %s\n", s.SubmissionID)
	}
}

func (c *console) renderEvents() {
	for e := range c.conv.Events() {
		c.render(e)
	}
}

func (c *console) render(e live.Event) {
	switch e := e.(type) {
	case *live.StateChangedEvent:
		c.mu.Lock()
		c.levelOn = e.To == live.StateRecording
		c.mu.Unlock()
		switch e.To {
		case live.StateRecording:
			c.printf("[listening]\n")
		case live.StateTranscribing:
			c.printf("[transcribing]\n")
		case live.StateDialoguing:
			c.printf("[thinking]\n")
		case live.StateEnded:
			c.printf("[conversation ended]\n")
		}
	case *live.TurnAppendedEvent:
		if e.Turn.Role == types.RoleUser {
			c.printf("you: %s\n", e.Turn.Text)
		}
	case *live.ReplyEvent:
		c.printf("assistant: %s\n", e.Text)
		for _, q := range e.FollowUps {
			c.printf("  - %s\n", q)
		}
		if e.Severity != "" {
			c.printf("  severity: %s\n", e.Severity)
		}
	case *live.SymptomsUpdatedEvent:
		c.printf("  symptoms: %s\n", strings.Join(e.Symptoms, ", "))
	case *live.NoticeEvent:
		c.printf("* %s\n", e.Message)
	case *live.ErrorEvent:
		if e.Fatal {
			c.printf("! %s (type /retry)\n", e.Message)
		} else {
			c.printf("! %s\n", e.Message)
		}
	case *live.SubmissionEvent:
		if e.Error != "" {
			c.printf("! submission failed: %s (type /submit to retry)\n", e.Error)
		} else {
			c.printf("* sent to clinic, appointment %s\n", e.AppointmentID)
		}
	case *live.SessionResetEvent:
		c.printf("* new session %s\n", e.SessionID)
	}
}

// renderLevel draws the microphone level while recording. Only drawn on
// terminals since it rewrites the current line.
func (c *console) renderLevel(ctx context.Context) {
	if !c.terminal {
		return
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		on := c.levelOn
		c.mu.Unlock()
		if on {
			c.printf("\r%s", levelBar(c.conv.Level(), c.width))
		}
	}
}

func levelBar(level float64, width int) string {
	level = max(0, min(1, level))
	filled := int(level*float64(width) + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(" ", width-filled) + "]"
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminal && c.levelOn {
		// Clear the level bar before writing a full line.
		fmt.Fprint(c.out, "\r\033[K")
	}
	fmt.Fprintf(c.out, format, args...)
}
