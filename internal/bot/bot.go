// Package bot connects the classification dialogs and recurring reviews to Discord.
package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/chat"
	"github.com/susu3304/gastobot/internal/commands"
	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/dialog"
	"github.com/susu3304/gastobot/internal/recurring"
)

type Bot struct {
	session   *discordgo.Session
	cfg       *config.Config
	dialogs   *dialog.Service
	recurring *recurring.Service
	commands  *commands.Handler
	messenger chat.Messenger
	reviews   *reviewWorker
	lanes     *lanes
	logger    *zap.Logger
}

type Deps struct {
	Config    *config.Config
	Dialogs   *dialog.Service
	Recurring *recurring.Service
	Commands  *commands.Handler
	// Messenger is the retrying messenger shared with the services.
	Messenger chat.Messenger
	Templates TemplateStore
	Logger    *zap.Logger
}

// NewSession creates the Discord session; it is needed before the services can be built.
// Handlers run on the gateway goroutine in arrival order and hand dialog work to per-channel lanes.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsAll
	session.SyncEvents = true
	return session, nil
}

func New(session *discordgo.Session, d Deps) *Bot {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		session:   session,
		cfg:       d.Config,
		dialogs:   d.Dialogs,
		recurring: d.Recurring,
		commands:  d.Commands,
		messenger: d.Messenger,
		lanes:     newLanes(),
		logger:    logger,
	}
	if d.Templates != nil {
		b.reviews = newReviewWorker(d.Templates, d.Recurring, d.Config.Operators, d.Config.Location(), d.Config.ReviewInterval, logger)
	}

	if session != nil {
		session.AddHandler(b.onReady)
		session.AddHandler(b.onGuildCreate)
		session.AddHandler(b.onMessageCreate)
		session.AddHandler(b.onInteractionCreate)
	}
	return b
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.reviews.start()
	b.logger.Info("discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	b.reviews.stop()
	err := b.session.Close()
	b.lanes.wait()
	return err
}
