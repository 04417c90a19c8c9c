package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"

	"feedwarden/internal/config"
	"feedwarden/internal/discord"
	"feedwarden/internal/feed"
	"feedwarden/internal/store"
	"feedwarden/internal/updater"
)

const readyTimeout = time.Minute

// Bot ties the Discord gateway to the feed actor: inbound messages and
// reactions become actor commands, and the actor drives the topology and
// publishing back through the same session.
type Bot struct {
	session    *discordgo.Session
	config     config.Config
	store      *store.Store
	fetcher    *feed.Fetcher
	updater    atomic.Pointer[updater.Updater]
	reconciler *discord.Reconciler
	httpClient *http.Client
	log        *slog.Logger
}

func New(
	cfg config.Config,
	st *store.Store,
	fetcher *feed.Fetcher,
	log *slog.Logger,
) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	return &Bot{
		session:    session,
		config:     cfg,
		store:      st,
		fetcher:    fetcher,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		log:        log,
	}, nil
}

// Run opens the gateway, waits for the ready event to learn the guild list,
// wires the topology components, and runs the actor loop until shutdown.
func (b *Bot) Run(ctx context.Context) error {
	ready := make(chan []string, 1)
	b.session.AddHandlerOnce(func(_ *discordgo.Session, r *discordgo.Ready) {
		ready <- lo.Map(r.Guilds, func(guild *discordgo.Guild, _ int) string {
			return guild.ID
		})
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord gateway: %w", err)
	}
	defer b.closeSession(ctx)

	var guilds []string
	select {
	case guilds = <-ready:
	case <-time.After(readyTimeout):
		return fmt.Errorf("timed out after %s waiting for gateway ready", readyTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	b.log.InfoContext(ctx, "Discord gateway ready",
		"guildCount", len(guilds),
		"user", b.session.State.User.Username)

	api := discord.NewSessionAPI(b.session)
	b.reconciler = discord.NewReconciler(api, guilds, b.log)
	publisher := discord.NewPublisher(api, guilds, b.log)
	actor := updater.New(
		b.store,
		b.fetcher,
		b.reconciler,
		publisher,
		b.config.PollInterval,
		b.log,
	)
	b.updater.Store(actor)

	removeMessages := b.session.AddHandler(b.messageHandler(ctx))
	defer removeMessages()
	removeReactions := b.session.AddHandler(b.reactionHandler(ctx))
	defer removeReactions()

	return actor.Run(ctx)
}

// Shutdown asks the actor to perform its final persist and stop. A shutdown
// signal may arrive while the gateway handshake is still in flight, before
// the actor exists.
func (b *Bot) Shutdown(ctx context.Context) error {
	actor := b.updater.Load()
	if actor == nil {
		return errors.New("actor is not running")
	}

	return actor.Send(ctx, updater.Shutdown{})
}

// send forwards a command to the actor. Handlers are only registered after
// the actor is stored, so the pointer is always set here.
func (b *Bot) send(ctx context.Context, cmd updater.Command) error {
	return b.updater.Load().Send(ctx, cmd)
}

func (b *Bot) closeSession(ctx context.Context) {
	if err := b.session.Close(); err != nil {
		b.log.ErrorContext(ctx, "Failed to close Discord session", "error", err)
	}
}
