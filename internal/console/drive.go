package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/susu3304/gastobot/internal/chat"
	"github.com/susu3304/gastobot/internal/dialog"
)

type Dialogs interface {
	HandleButton(ctx context.Context, ref chat.MessageRef, token string) error
	HandleText(ctx context.Context, channelID, replyToMessageID, text string) (bool, error)
}

// Drive reads operator input until done is closed. A number presses that
// button on the latest prompt; anything else is sent as free text.
func Drive(ctx context.Context, in io.Reader, t *Terminal, d Dialogs, done <-chan struct{}) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case <-done:
					return nil
				default:
					return io.ErrUnexpectedEOF
				}
			}
			if err := handleLine(ctx, t, d, strings.TrimSpace(line)); err != nil {
				t.errorf(" %v ", err)
			}
		}
	}
}

func handleLine(ctx context.Context, t *Terminal, d Dialogs, line string) error {
	if line == "" {
		return nil
	}
	ref := t.Latest()
	if n, err := strconv.Atoi(line); err == nil && n > 0 {
		if token, ok := t.Button(ref, n); ok {
			return d.HandleButton(ctx, ref, token)
		}
	}
	handled, err := d.HandleText(ctx, ref.ChannelID, ref.MessageID, line)
	if err != nil {
		return err
	}
	if !handled {
		return errors.New("no dialog is waiting for text")
	}
	return nil
}

var _ Dialogs = (*dialog.Service)(nil)
