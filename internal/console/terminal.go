// Package console runs classification dialogs in a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/susu3304/gastobot/internal/chat"
)

var (
	headerc = color.New(color.BgBlue, color.FgWhite)
	buttonc = color.New(color.FgCyan)
	editc   = color.New(color.BgYellow, color.FgBlack)
	errc    = color.New(color.BgRed, color.FgWhite)
)

// Terminal is a chat.Messenger that prints prompts and numbers their buttons.
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	n       int
	buttons map[string][]chat.Button
	latest  chat.MessageRef
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out, buttons: map[string][]chat.Button{}}
}

func (t *Terminal) SendPrompt(_ context.Context, recipient, text string, kb chat.Keyboard) (chat.MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n++
	ref := chat.MessageRef{ChannelID: recipient, MessageID: fmt.Sprintf("c%d", t.n)}
	t.latest = ref
	headerc.Fprintf(t.out, " #%s ", ref.MessageID)
	fmt.Fprintln(t.out)
	t.render(ref, text, kb)
	return ref, nil
}

func (t *Terminal) EditMessage(_ context.Context, ref chat.MessageRef, text string, kb chat.Keyboard) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	editc.Fprintf(t.out, " #%s ", ref.MessageID)
	fmt.Fprintln(t.out)
	t.render(ref, text, kb)
	return nil
}

func (t *Terminal) render(ref chat.MessageRef, text string, kb chat.Keyboard) {
	fmt.Fprintln(t.out, text)
	var flat []chat.Button
	for _, row := range kb {
		var cells []string
		for _, b := range row {
			flat = append(flat, b)
			cells = append(cells, buttonc.Sprintf("[%d]", len(flat))+" "+b.Label)
		}
		fmt.Fprintln(t.out, "  "+strings.Join(cells, "   "))
	}
	t.buttons[ref.MessageID] = flat
}

func (t *Terminal) errorf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	errc.Fprintf(t.out, format, args...)
	fmt.Fprintln(t.out)
}

// Button returns the token of the n-th button (1-based) on the message.
func (t *Terminal) Button(ref chat.MessageRef, n int) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	flat := t.buttons[ref.MessageID]
	if n < 1 || n > len(flat) {
		return "", false
	}
	return flat[n-1].Token, true
}

// Index returns the 1-based number shown for token on the message.
func (t *Terminal) Index(ref chat.MessageRef, token string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, b := range t.buttons[ref.MessageID] {
		if b.Token == token {
			return i + 1, true
		}
	}
	return 0, false
}

// Latest is the most recently sent prompt.
func (t *Terminal) Latest() chat.MessageRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}
