package main

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types"
)

type fakeGenerator struct {
	reply  string
	err    error
	block  bool // wait for ctx to end
	calls  atomic.Int32
	prompt atomic.Value
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.prompt.Store(prompt)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func (f *fakeGenerator) lastPrompt() string {
	p, _ := f.prompt.Load().(string)
	return p
}

type deleteCall struct {
	chat, sender types.JID
	id           types.MessageID
}

type fakeDeleter struct {
	mu    sync.Mutex
	err   error
	calls []deleteCall
}

func (f *fakeDeleter) DeleteMessage(ctx context.Context, chat, sender types.JID, id types.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deleteCall{chat: chat, sender: sender, id: id})
	return f.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	actions []ModerationAction
}

func (f *fakeRecorder) Record(ctx context.Context, a ModerationAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, a)
	return nil
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
