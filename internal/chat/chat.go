// Package chat describes the messaging capability the dialogs drive.
package chat

import "context"

// Button is one keyboard action. Token is the opaque "STEP|value" payload echoed back on press.
type Button struct {
	Label string
	Token string
}

// Keyboard is a grid of buttons, one slice per row.
type Keyboard [][]Button

// Rows lays buttons out perRow per row.
func Rows(perRow int, buttons ...Button) Keyboard {
	if perRow <= 0 {
		perRow = 1
	}
	var kb Keyboard
	for len(buttons) > 0 {
		n := min(perRow, len(buttons))
		kb = append(kb, buttons[:n:n])
		buttons = buttons[n:]
	}
	return kb
}

// MessageRef identifies a message previously sent through a Messenger.
type MessageRef struct {
	ChannelID string
	MessageID string
}

func (r MessageRef) IsZero() bool { return r.MessageID == "" }

// Messenger sends and edits prompts. A nil keyboard on edit removes the buttons.
type Messenger interface {
	SendPrompt(ctx context.Context, recipient, text string, kb Keyboard) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, text string, kb Keyboard) error
}
