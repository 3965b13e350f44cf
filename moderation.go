package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

//////////////////////////////////////////////////////////////
// MODERATION DECISION
//////////////////////////////////////////////////////////////

type Verdict int

const (
	Keep Verdict = iota
	Delete
)

func (v Verdict) String() string {
	if v == Delete {
		return "DELETE"
	}
	return "KEEP"
}

// FailureReason tags why a decision fell back to Keep. Empty means the model
// answered with a valid token.
type FailureReason string

const (
	ReasonNone            FailureReason = ""
	ReasonInvalidInput    FailureReason = "invalid_input"
	ReasonUnconfigured    FailureReason = "unconfigured"
	ReasonCallFailed      FailureReason = "call_failed"
	ReasonTimeout         FailureReason = "timeout"
	ReasonUnexpectedReply FailureReason = "unexpected_reply"
)

var ErrEmptyMessage = errors.New("message has no text")

type Decision struct {
	Verdict Verdict
	Reason  FailureReason
	Reply   string // normalised model reply, if any
	Err     error
	Latency time.Duration
}

// Failed reports whether the verdict is a fail-safe default rather than the model's answer.
func (d Decision) Failed() bool {
	return d.Reason != ReasonNone
}

func (d Decision) label() string {
	if d.Reason == ReasonNone {
		return "ok"
	}
	return string(d.Reason)
}

func keepBecause(reason FailureReason, err error) Decision {
	return Decision{Verdict: Keep, Reason: reason, Err: err}
}

// parseVerdict maps a raw model reply onto a decision. Only the exact tokens count.
func parseVerdict(reply string) Decision {
	decision := strings.ToUpper(strings.TrimSpace(reply))
	switch decision {
	case "DELETE":
		return Decision{Verdict: Delete, Reply: decision}
	case "KEEP":
		return Decision{Verdict: Keep, Reply: decision}
	default:
		return Decision{
			Verdict: Keep,
			Reason:  ReasonUnexpectedReply,
			Reply:   decision,
			Err:     fmt.Errorf("unexpected model reply %q", decision),
		}
	}
}

// Moderator asks the model whether a message breaks the group rules. It keeps
// no state between calls and is safe for concurrent use.
type Moderator struct {
	gen     Generator
	prompt  string
	timeout time.Duration
	log     zerolog.Logger
}

func NewModerator(cfg ModerationConfig, gen Generator, log zerolog.Logger) *Moderator {
	if gen == nil {
		gen = Unconfigured{Reason: errors.New("no generator supplied")}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DEFAULT_TIMEOUT
	}
	prompt := cfg.RulesPrompt
	if prompt == "" {
		prompt = DefaultRulesPrompt
	}
	return &Moderator{
		gen:     gen,
		prompt:  prompt,
		timeout: timeout,
		log:     log.With().Str("component", "moderator").Logger(),
	}
}

// Configured is false when the backend could not be built at startup.
func (m *Moderator) Configured() bool {
	_, unconfigured := m.gen.(Unconfigured)
	return !unconfigured
}

// Decide runs one moderation check and reports exactly why it ended the way it did.
func (m *Moderator) Decide(ctx context.Context, text string) Decision {
	if strings.TrimSpace(text) == "" {
		return keepBecause(ReasonInvalidInput, ErrEmptyMessage)
	}
	if u, ok := m.gen.(Unconfigured); ok {
		return keepBecause(ReasonUnconfigured, fmt.Errorf("%w: %v", ErrUnconfigured, u.Reason))
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	started := time.Now()
	reply, err := m.gen.Generate(ctx, RenderPrompt(m.prompt, text))
	latency := time.Since(started)
	inferenceLatency.Observe(latency.Seconds())

	var d Decision
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)):
		d = keepBecause(ReasonTimeout, err)
	case err != nil:
		d = keepBecause(ReasonCallFailed, err)
	default:
		d = parseVerdict(reply)
	}
	d.Latency = latency
	return d
}

// Evaluate returns the verdict for one message. Every failure resolves to Keep;
// the cause only reaches the log.
func (m *Moderator) Evaluate(ctx context.Context, text string) Verdict {
	return m.evaluate(ctx, text).Verdict
}

func (m *Moderator) evaluate(ctx context.Context, text string) Decision {
	if pattern, ok := detectPromptInjection(text); ok {
		m.log.Warn().Str("pattern", pattern).Msg("🛡️  message looks like a prompt injection attempt")
	}

	m.log.Debug().Str("content", truncate(text, 50)).Msg("checking message")
	d := m.Decide(ctx, text)
	verdictsTotal.WithLabelValues(d.Verdict.String(), d.label()).Inc()

	switch d.Reason {
	case ReasonNone:
		m.log.Info().Str("reply", d.Reply).Dur("latency", d.Latency).Msg("model verdict")
	case ReasonInvalidInput:
		m.log.Warn().Msg("moderation check skipped: invalid message content")
	case ReasonUnexpectedReply:
		m.log.Warn().Str("reply", d.Reply).Msg("unexpected model reply, defaulting to KEEP")
	default:
		m.log.Error().Err(d.Err).Str("reason", string(d.Reason)).
			Msg("moderation check failed, defaulting to KEEP")
	}
	return d
}
