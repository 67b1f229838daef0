package creative

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

type stubText struct {
	mu    sync.Mutex
	calls int
	fn    func(prompt string, call int) (string, error)
}

func (s *stubText) GenerateText(ctx context.Context, prompt string, opts TextOptions) (string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	if s.fn == nil {
		return "", fmt.Errorf("no response configured")
	}
	return s.fn(prompt, call)
}

func (s *stubText) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubImages struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu      sync.Mutex
	prompts []string
	fn      func(ctx context.Context, req ImageRequest) ([]byte, error)
}

func (s *stubImages) Generate(ctx context.Context, req ImageRequest) ([]byte, error) {
	s.calls.Add(1)
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if cur <= prev || s.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}

	s.mu.Lock()
	s.prompts = append(s.prompts, req.Prompt)
	s.mu.Unlock()

	if s.fn == nil {
		return []byte("img:" + req.Prompt), nil
	}
	return s.fn(ctx, req)
}

type memStore struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string][]byte)}
}

func (m *memStore) SaveImage(ctx context.Context, name string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[name] = data
	return "mem/" + name, nil
}
