package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/randalmurphal/agentgraph/agent"
)

// DefaultSession is the session key used when an agent node names none.
const DefaultSession = "default"

// sessionPool holds the agent sessions of one run, keyed by session name.
// Sessions are created on first use and shared by later agent nodes.
type sessionPool struct {
	mu       sync.Mutex
	provider agent.Provider
	sessions map[string]agent.Session
}

func newSessionPool(provider agent.Provider) *sessionPool {
	return &sessionPool{
		provider: provider,
		sessions: make(map[string]agent.Session),
	}
}

func (p *sessionPool) get(ctx context.Context, key string, cfg agent.Config) (agent.Session, error) {
	if key == "" {
		key = DefaultSession
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[key]; ok {
		return s, nil
	}
	if p.provider == nil {
		return nil, agent.ErrNoProvider
	}
	s, err := p.provider.CreateSession(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", key, err)
	}
	p.sessions[key] = s
	return s, nil
}

func (p *sessionPool) usage(key string) (agent.Usage, bool) {
	if key == "" {
		key = DefaultSession
	}
	p.mu.Lock()
	s, ok := p.sessions[key]
	p.mu.Unlock()
	if !ok {
		return agent.Usage{}, false
	}
	r, ok := s.(agent.UsageReporter)
	if !ok {
		return agent.Usage{}, false
	}
	return r.Usage(), true
}

// clear destroys one session. The next use of the key starts a fresh one.
func (p *sessionPool) clear(ctx context.Context, key string) error {
	if key == "" {
		key = DefaultSession
	}
	p.mu.Lock()
	s, ok := p.sessions[key]
	delete(p.sessions, key)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Destroy(ctx)
}

func (p *sessionPool) closeAll(ctx context.Context) error {
	p.mu.Lock()
	keys := make([]string, 0, len(p.sessions))
	for k := range p.sessions {
		keys = append(keys, k)
	}
	sessions := p.sessions
	p.sessions = make(map[string]agent.Session)
	p.mu.Unlock()

	sort.Strings(keys)
	var errs []error
	for _, k := range keys {
		if err := sessions[k].Destroy(ctx); err != nil && !errors.Is(err, agent.ErrSessionClosed) {
			errs = append(errs, fmt.Errorf("destroy session %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
