package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

var (
	testGroup  = types.NewJID("120363025246125486", types.GroupServer)
	testSender = types.NewJID("15550001111", types.DefaultUserServer)
)

// noonIST is 06:30 UTC, inside the default 08-22 window at +5.5.
var noonIST = time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC)

func newTestBot(t *testing.T, reply string, groups map[string]bool) (*Bot, *fakeGenerator, *fakeDeleter, *fakeRecorder) {
	t.Helper()
	cfg := ModerationConfig{
		Hours:          WakingHours{Start: 8, End: 22, Offset: 5.5},
		RulesPrompt:    DefaultRulesPrompt,
		Timeout:        time.Second,
		ModeratedGroup: groups,
	}
	gen := &fakeGenerator{reply: reply}
	del := &fakeDeleter{}
	rec := &fakeRecorder{}
	bot := NewBot(cfg, NewModerator(cfg, gen, testLogger()), del, rec, testLogger())
	bot.now = func() time.Time { return noonIST }
	return bot, gen, del, rec
}

func groupMessage(text string) Inbound {
	return Inbound{
		Chat:       testGroup,
		Sender:     testSender,
		MessageID:  "3EB0C0FFEE",
		SenderName: "Asha",
		Text:       text,
		IsGroup:    true,
	}
}

func TestHandleMessage_DeletesViolation(t *testing.T) {
	bot, _, del, rec := newTestBot(t, "DELETE", nil)
	before := testutil.ToFloat64(messagesTotal.WithLabelValues(outcomeDeleted))

	if got := bot.handleMessage(context.Background(), groupMessage("spam link http://x")); got != outcomeDeleted {
		t.Fatalf("outcome = %q, want %q", got, outcomeDeleted)
	}
	if len(del.calls) != 1 {
		t.Fatalf("delete calls = %d, want 1", len(del.calls))
	}
	c := del.calls[0]
	if c.chat != testGroup || c.sender != testSender || c.id != "3EB0C0FFEE" {
		t.Errorf("delete call = %+v", c)
	}
	if len(rec.actions) != 1 || !rec.actions[0].Deleted || rec.actions[0].Verdict != "DELETE" {
		t.Errorf("audit = %+v", rec.actions)
	}
	if after := testutil.ToFloat64(messagesTotal.WithLabelValues(outcomeDeleted)); after != before+1 {
		t.Errorf("deleted counter moved by %v, want 1", after-before)
	}
}

func TestHandleMessage_KeepsCleanMessage(t *testing.T) {
	bot, gen, del, rec := newTestBot(t, "KEEP", nil)

	if got := bot.handleMessage(context.Background(), groupMessage("good morning all")); got != outcomeEvaluated {
		t.Errorf("outcome = %q, want %q", got, outcomeEvaluated)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("model calls = %d, want 1", gen.calls.Load())
	}
	if len(del.calls) != 0 {
		t.Errorf("clean message was deleted")
	}
	if len(rec.actions) != 1 || rec.actions[0].Deleted {
		t.Errorf("audit = %+v", rec.actions)
	}
}

func TestHandleMessage_Filters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Inbound)
	}{
		{"direct chat", func(in *Inbound) { in.IsGroup = false }},
		{"own message", func(in *Inbound) { in.FromMe = true }},
		{"empty text", func(in *Inbound) { in.Text = "" }},
		{"whitespace text", func(in *Inbound) { in.Text = "  \n" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot, gen, del, rec := newTestBot(t, "DELETE", nil)
			in := groupMessage("spam link http://x")
			tt.mutate(&in)

			if got := bot.handleMessage(context.Background(), in); got != "" {
				t.Errorf("outcome = %q, want ignored", got)
			}
			if gen.calls.Load() != 0 || len(del.calls) != 0 || len(rec.actions) != 0 {
				t.Errorf("filtered message reached the pipeline")
			}
		})
	}
}

func TestHandleMessage_OutsideWakingHours(t *testing.T) {
	bot, gen, del, _ := newTestBot(t, "DELETE", nil)
	bot.now = func() time.Time { return time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC) } // 01:30 IST

	if got := bot.handleMessage(context.Background(), groupMessage("spam link http://x")); got != outcomeOutsideHours {
		t.Errorf("outcome = %q, want %q", got, outcomeOutsideHours)
	}
	if gen.calls.Load() != 0 || len(del.calls) != 0 {
		t.Error("moderation ran outside waking hours")
	}
}

func TestHandleMessage_GroupAllowlist(t *testing.T) {
	other := types.NewJID("120363000000000001", types.GroupServer)
	bot, gen, _, _ := newTestBot(t, "DELETE", map[string]bool{other.String(): true})

	if got := bot.handleMessage(context.Background(), groupMessage("spam link http://x")); got != outcomeNotModerated {
		t.Errorf("outcome = %q, want %q", got, outcomeNotModerated)
	}
	if gen.calls.Load() != 0 {
		t.Error("model called for a group outside the allowlist")
	}
}

func TestHandleMessage_DeleteFailureIsLoggedNotRetried(t *testing.T) {
	bot, _, del, rec := newTestBot(t, "DELETE", nil)
	del.err = errors.New("not a group admin")
	before := testutil.ToFloat64(deleteFailures)

	if got := bot.handleMessage(context.Background(), groupMessage("spam link http://x")); got != outcomeEvaluated {
		t.Errorf("outcome = %q, want %q", got, outcomeEvaluated)
	}
	if len(del.calls) != 1 {
		t.Errorf("delete calls = %d, want exactly 1", len(del.calls))
	}
	if len(rec.actions) != 1 || rec.actions[0].Deleted || rec.actions[0].Error == "" {
		t.Errorf("audit = %+v", rec.actions)
	}
	if after := testutil.ToFloat64(deleteFailures); after != before+1 {
		t.Errorf("delete failure counter moved by %v", after-before)
	}
}

func TestHandleMessage_ModelFailureKeeps(t *testing.T) {
	bot, gen, del, rec := newTestBot(t, "", nil)
	gen.err = errors.New("connection reset")

	bot.handleMessage(context.Background(), groupMessage("spam link http://x"))
	if len(del.calls) != 0 {
		t.Error("message deleted after a model failure")
	}
	if len(rec.actions) != 1 || rec.actions[0].Reason != string(ReasonCallFailed) {
		t.Errorf("audit = %+v", rec.actions)
	}
}

func TestHandleEvent_Message(t *testing.T) {
	bot, gen, del, _ := newTestBot(t, "DELETE", nil)

	bot.HandleEvent(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: testGroup, Sender: testSender, IsGroup: true},
			ID:            "3EB0AAAA",
			PushName:      "Asha",
		},
		Message: &waE2E.Message{Conversation: proto.String("buy followers at http://x")},
	})
	bot.Wait()

	if gen.calls.Load() != 1 || len(del.calls) != 1 {
		t.Errorf("model calls = %d, deletes = %d, want 1 and 1", gen.calls.Load(), len(del.calls))
	}
}

func TestHandleEvent_Lifecycle(t *testing.T) {
	bot, _, _, _ := newTestBot(t, "KEEP", nil)

	bot.HandleEvent(&events.Connected{})
	if !bot.Connected() {
		t.Error("Connected() = false after Connected event")
	}
	bot.HandleEvent(&events.Disconnected{})
	if bot.Connected() {
		t.Error("Connected() = true after Disconnected event")
	}

	bot.HandleEvent(&events.LoggedOut{})
	bot.HandleEvent(&events.LoggedOut{}) // closing twice must not panic
	select {
	case <-bot.LoggedOut():
	default:
		t.Error("LoggedOut channel not closed")
	}
}

func TestExtractInbound(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"conversation", &waE2E.Message{Conversation: proto.String("hi")}, "hi"},
		{"extended text", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("see http://x")}}, "see http://x"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("look")}}, "look"},
		{"video caption", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: proto.String("watch")}}, "watch"},
		{"no text", &waE2E.Message{}, ""},
		{"nil message", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := extractInbound(&events.Message{
				Info:    types.MessageInfo{MessageSource: types.MessageSource{Chat: testGroup, Sender: testSender, IsGroup: true}},
				Message: tt.msg,
			})
			if in.Text != tt.want {
				t.Errorf("Text = %q, want %q", in.Text, tt.want)
			}
		})
	}
}

func TestExtractInbound_SenderNameFallback(t *testing.T) {
	in := extractInbound(&events.Message{
		Info: types.MessageInfo{MessageSource: types.MessageSource{Sender: testSender, IsFromMe: true}},
	})
	if in.SenderName != testSender.User {
		t.Errorf("SenderName = %q, want %q", in.SenderName, testSender.User)
	}
	if !in.FromMe {
		t.Error("FromMe not carried over")
	}
}

func TestFormatHour(t *testing.T) {
	if got := formatHour(15.5); got != "15:30" {
		t.Errorf("formatHour(15.5) = %q", got)
	}
}
