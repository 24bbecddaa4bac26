package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/chat"
	"github.com/susu3304/gastobot/internal/commands"
	"github.com/susu3304/gastobot/internal/dialog"
	"github.com/susu3304/gastobot/internal/recurring"
)

const (
	textAmbiguous     = "⚠️ Hay varias transacciones esperando un monto. Responde directamente al mensaje de la que quieras completar."
	textReviewExpired = "⌛ Esta revisión de gastos fijos ya no está activa."
)

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("connected", zap.String("user", event.User.Username))

	guilds := make([]string, 0, len(event.Guilds))
	for _, guild := range event.Guilds {
		guilds = append(guilds, guild.ID)
	}
	go func() {
		for _, id := range guilds {
			if err := b.registerGuildCommands(id); err != nil {
				b.logger.Error("failed to register commands", zap.String("guild", id), zap.Error(err))
			}
		}
	}()
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	b.logger.Info("guild available, ensuring commands", zap.String("guild", event.ID), zap.String("name", event.Name))
	go func() {
		if err := b.registerGuildCommands(event.ID); err != nil {
			b.logger.Error("failed to register commands", zap.String("guild", event.ID), zap.Error(err))
		}
	}()
}

func (b *Bot) registerGuildCommands(guildID string) error {
	// Delete existing commands and register new ones
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, guildID, commands.GetCommands())
	if err != nil {
		return err
	}
	b.logger.Debug("registered application commands", zap.String("guild", guildID))
	return nil
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	replyTo := ""
	if m.MessageReference != nil {
		replyTo = m.MessageReference.MessageID
	}
	channelID, content := m.ChannelID, m.Content
	b.lanes.submit(channelID, func() {
		b.routeText(context.Background(), channelID, replyTo, content)
	})
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		go b.commands.Handle(s, i)
	case discordgo.InteractionMessageComponent:
		// The prompt itself is edited through the messenger.
		go func() {
			if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseDeferredMessageUpdate,
			}); err != nil {
				b.logger.Warn("failed to acknowledge button", zap.Error(err))
			}
		}()
		ref := chat.MessageRef{ChannelID: i.ChannelID}
		if i.Message != nil {
			ref.MessageID = i.Message.ID
		}
		token := i.MessageComponentData().CustomID
		b.lanes.submit(ref.ChannelID, func() {
			b.routeButton(context.Background(), ref, token)
		})
	}
}

// routeText hands a message in an operator channel to the recurring review or to a dialog.
func (b *Bot) routeText(ctx context.Context, channelID, replyTo, text string) {
	op, ok := b.cfg.OperatorByChannel(channelID)
	if !ok {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	log := b.logger.With(zap.String("operator", op.Name))

	if sess, ok := b.recurring.Snapshot(op.Name); ok && (replyTo == "" || replyTo == sess.Message.MessageID) {
		handled, _, err := b.recurring.HandleAmount(ctx, op.Name, text)
		if err != nil {
			log.Error("recurring amount failed", zap.Error(err))
		}
		if handled {
			return
		}
	}

	handled, err := b.dialogs.HandleText(ctx, channelID, replyTo, text)
	switch {
	case errors.Is(err, dialog.ErrAmbiguous):
		if _, err := b.messenger.SendPrompt(ctx, channelID, textAmbiguous, nil); err != nil {
			log.Warn("failed to send ambiguity notice", zap.Error(err))
		}
	case err != nil:
		log.Error("dialog text failed", zap.Error(err))
	case !handled:
		log.Debug("message ignored")
	}
}

func (b *Bot) routeButton(ctx context.Context, ref chat.MessageRef, token string) {
	log := b.logger.With(zap.String("channel", ref.ChannelID), zap.String("token", token))

	if action, ok := recurring.ParseToken(token); ok {
		op, ok := b.cfg.OperatorByChannel(ref.ChannelID)
		if !ok {
			log.Warn("recurring button outside an operator channel")
			return
		}
		_, err := b.recurring.Handle(ctx, op.Name, action)
		switch {
		case errors.Is(err, recurring.ErrNoSession):
			if err := b.messenger.EditMessage(ctx, ref, textReviewExpired, nil); err != nil {
				log.Warn("failed to mark review expired", zap.Error(err))
			}
		case err != nil:
			log.Error("recurring action failed", zap.Error(err))
		}
		return
	}

	if !dialog.IsToken(token) {
		log.Debug("unknown button")
		return
	}
	if err := b.dialogs.HandleButton(ctx, ref, token); err != nil && !errors.Is(err, dialog.ErrExpired) {
		log.Error("dialog button failed", zap.Error(err))
	}
}
