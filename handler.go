package main

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

//////////////////////////////////////////////////////////////
// MESSAGE HANDLING
//////////////////////////////////////////////////////////////

// Inbound is the part of a WhatsApp message the moderator looks at.
type Inbound struct {
	Chat       types.JID
	Sender     types.JID
	MessageID  types.MessageID
	SenderName string
	Text       string
	IsGroup    bool
	FromMe     bool
	Timestamp  time.Time
}

func extractInbound(v *events.Message) Inbound {
	var text string
	m := v.Message
	switch {
	case m.GetConversation() != "":
		text = m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		text = m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage() != nil:
		text = m.GetImageMessage().GetCaption()
	case m.GetVideoMessage() != nil:
		text = m.GetVideoMessage().GetCaption()
	case m.GetDocumentMessage() != nil:
		text = m.GetDocumentMessage().GetCaption()
	}

	name := v.Info.PushName
	if name == "" {
		name = v.Info.Sender.User
	}
	if name == "" {
		name = "UnknownSender"
	}

	return Inbound{
		Chat:       v.Info.Chat,
		Sender:     v.Info.Sender,
		MessageID:  v.Info.ID,
		SenderName: name,
		Text:       text,
		IsGroup:    v.Info.IsGroup,
		FromMe:     v.Info.IsFromMe,
		Timestamp:  v.Info.Timestamp,
	}
}

// MessageDeleter removes a message for everyone in the chat.
type MessageDeleter interface {
	DeleteMessage(ctx context.Context, chat, sender types.JID, id types.MessageID) error
}

type actionRecorder interface {
	Record(ctx context.Context, a ModerationAction) error
}

// whatsmeowDeleter revokes through the live client. Deleting someone else's
// message only works while the bot is a group admin.
type whatsmeowDeleter struct {
	client *whatsmeow.Client
}

func (d whatsmeowDeleter) DeleteMessage(ctx context.Context, chat, sender types.JID, id types.MessageID) error {
	_, err := d.client.SendMessage(ctx, chat, d.client.BuildRevoke(chat, sender, id))
	return err
}

// Bot wires incoming WhatsApp events to the gate and the moderator.
type Bot struct {
	moderator *Moderator
	hours     WakingHours
	groups    map[string]bool
	deleter   MessageDeleter
	audit     actionRecorder
	log       zerolog.Logger
	now       func() time.Time

	connected atomic.Bool
	loggedOut chan struct{}
	logoutMu  sync.Once
	inflight  sync.WaitGroup
}

func NewBot(cfg ModerationConfig, moderator *Moderator, deleter MessageDeleter, audit actionRecorder, log zerolog.Logger) *Bot {
	return &Bot{
		moderator: moderator,
		hours:     cfg.Hours,
		groups:    cfg.ModeratedGroup,
		deleter:   deleter,
		audit:     audit,
		log:       log.With().Str("component", "bot").Logger(),
		now:       time.Now,
		loggedOut: make(chan struct{}),
	}
}

// HandleEvent is registered with whatsmeow. Messages are moderated off the
// event goroutine so a slow model call does not hold up delivery.
func (b *Bot) HandleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		in := extractInbound(v)
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			b.handleMessage(context.Background(), in)
		}()
	case *events.Connected:
		b.connected.Store(true)
		b.logReady()
	case *events.Disconnected:
		b.connected.Store(false)
		b.log.Warn().Msg("🔌 disconnected from WhatsApp, waiting for reconnect")
	case *events.LoggedOut:
		b.connected.Store(false)
		b.log.Error().Str("reason", v.Reason.String()).Msg("❌ client was logged out")
		b.logoutMu.Do(func() { close(b.loggedOut) })
	}
}

// LoggedOut is closed once WhatsApp ends the session.
func (b *Bot) LoggedOut() <-chan struct{} {
	return b.loggedOut
}

func (b *Bot) Connected() bool {
	return b.connected.Load()
}

// Wait blocks until every in-flight message has been handled.
func (b *Bot) Wait() {
	b.inflight.Wait()
}

// ModerationActive reports whether the gate is open right now.
func (b *Bot) ModerationActive() bool {
	return b.hours.IsActive(b.now())
}

func (b *Bot) logReady() {
	now := b.now()
	local := b.hours.LocalHour(now)
	b.log.Info().
		Str("utc", now.UTC().Format(time.RFC1123)).
		Float64("offset", b.hours.Offset).
		Str("local", formatHour(local)).
		Str("waking_hours", b.hours.String()).
		Bool("moderation_active", b.hours.ActiveAt(local)).
		Msg("✨ client is ready")
	if !b.moderator.Configured() {
		b.log.Warn().Msg("⚠️  moderation model is not configured, every message will be kept")
	}
}

func formatHour(h float64) string {
	mins := int(h*60) % (24 * 60)
	return time.Date(0, 1, 1, mins/60, mins%60, 0, 0, time.UTC).Format("15:04")
}

// handleMessage runs the full pipeline for one message and returns what happened
// to it, or "" when the message is not a moderation candidate at all.
func (b *Bot) handleMessage(ctx context.Context, in Inbound) string {
	if !in.IsGroup || in.FromMe || strings.TrimSpace(in.Text) == "" {
		return ""
	}

	log := b.log.With().
		Str("group", in.Chat.String()).
		Str("sender", in.SenderName).
		Str("sender_jid", in.Sender.String()).
		Str("message_id", in.MessageID).
		Logger()
	log.Info().
		Time("sent_at", in.Timestamp).
		Str("content", truncate(in.Text, 100)).
		Msg("message received")

	if len(b.groups) > 0 && !b.groups[in.Chat.String()] {
		messagesTotal.WithLabelValues(outcomeNotModerated).Inc()
		log.Debug().Msg("group is not moderated, skipping")
		return outcomeNotModerated
	}

	if !b.ModerationActive() {
		messagesTotal.WithLabelValues(outcomeOutsideHours).Inc()
		log.Info().Msg("outside waking hours, skipping moderation")
		return outcomeOutsideHours
	}

	messagesTotal.WithLabelValues(outcomeEvaluated).Inc()
	d := b.moderator.evaluate(ctx, in.Text)

	action := ModerationAction{
		ChatID:    in.Chat.String(),
		SenderID:  in.Sender.String(),
		MessageID: in.MessageID,
		Verdict:   d.Verdict.String(),
		Reason:    string(d.Reason),
	}

	outcome := outcomeEvaluated
	if d.Verdict == Delete {
		log.Info().Msg("🚫 violation detected, deleting message")
		if err := b.deleter.DeleteMessage(ctx, in.Chat, in.Sender, in.MessageID); err != nil {
			deleteFailures.Inc()
			action.Error = err.Error()
			log.Error().Err(err).Msg("failed to delete message")
		} else {
			action.Deleted = true
			outcome = outcomeDeleted
			messagesTotal.WithLabelValues(outcomeDeleted).Inc()
			log.Info().Msg("✅ message deleted")
		}
	} else {
		log.Info().Msg("message passed moderation")
	}

	if b.audit != nil {
		if err := b.audit.Record(ctx, action); err != nil {
			log.Warn().Err(err).Msg("failed to record moderation action")
		}
	}
	return outcome
}
