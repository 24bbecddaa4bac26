package bot

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/gastobot/internal/chat"
	"github.com/susu3304/gastobot/internal/transport"
)

const (
	maxButtonsPerRow = 5
	maxRows          = 5
	maxContentLen    = 2000
	maxLabelLen      = 80
	attemptTimeout   = 12 * time.Second
)

// messageAPI is the part of *discordgo.Session the messenger needs.
type messageAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Messenger renders prompts as Discord messages with button rows.
type Messenger struct {
	api messageAPI
}

func NewMessenger(api messageAPI) *Messenger {
	return &Messenger{api: api}
}

func (m *Messenger) SendPrompt(ctx context.Context, recipient, text string, kb chat.Keyboard) (chat.MessageRef, error) {
	sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()
	msg, err := m.api.ChannelMessageSendComplex(recipient, &discordgo.MessageSend{
		Content:    truncate(text, maxContentLen),
		Components: components(kb),
	}, discordgo.WithContext(sendCtx))
	if err != nil {
		return chat.MessageRef{}, classify(ctx, err)
	}
	return chat.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

func (m *Messenger) EditMessage(ctx context.Context, ref chat.MessageRef, text string, kb chat.Keyboard) error {
	editCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID).SetContent(truncate(text, maxContentLen))
	// An empty list clears the buttons.
	edit.Components = components(kb)
	if edit.Components == nil {
		edit.Components = []discordgo.MessageComponent{}
	}
	if _, err := m.api.ChannelMessageEditComplex(edit, discordgo.WithContext(editCtx)); err != nil {
		return classify(ctx, err)
	}
	return nil
}

// components lays kb out as action rows within Discord's 5x5 limit.
// Dialog keyboards fit in five rows; a longer keyboard keeps its last row, which carries the cancel button.
func components(kb chat.Keyboard) []discordgo.MessageComponent {
	var rows [][]chat.Button
	for _, row := range kb {
		for len(row) > maxButtonsPerRow {
			rows = append(rows, row[:maxButtonsPerRow])
			row = row[maxButtonsPerRow:]
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	if len(rows) > maxRows {
		rows = append(rows[:maxRows-1], rows[len(rows)-1])
	}
	if len(rows) == 0 {
		return nil
	}

	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		buttons := make([]discordgo.MessageComponent, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, discordgo.Button{
				Label:    truncate(b.Label, maxLabelLen),
				Style:    buttonStyle(b.Token),
				CustomID: b.Token,
			})
		}
		out = append(out, discordgo.ActionsRow{Components: buttons})
	}
	return out
}

func buttonStyle(token string) discordgo.ButtonStyle {
	switch {
	case strings.HasSuffix(token, "|CANCEL"), strings.HasSuffix(token, "|No"):
		return discordgo.DangerButton
	case strings.HasSuffix(token, "|SAVE"), strings.HasSuffix(token, "|Yes"), strings.HasSuffix(token, "|ACCEPT"):
		return discordgo.SuccessButton
	case strings.HasSuffix(token, "|RESTART"), strings.HasSuffix(token, "|SKIP"), strings.HasSuffix(token, "|EDIT"):
		return discordgo.SecondaryButton
	}
	return discordgo.PrimaryButton
}

// classify marks Discord failures worth retrying: rate limits, 5xx and attempt timeouts.
func classify(ctx context.Context, err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		code := rest.Response.StatusCode
		if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return transport.MarkTransient(err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return transport.MarkTransient(err)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - len("…")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
