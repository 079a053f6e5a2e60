package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/common"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/orchestrator"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxSessions         = 20
	defaultSessionTimeout      = 2 * time.Hour
	defaultSweepInterval       = time.Minute
	defaultTerminatedRetention = 5 * time.Minute
	defaultRetentionSize       = 1024
	defaultDeleteTimeout       = 30 * time.Second
	sweepConcurrency           = 8

	sourceRepoEnv = "SOURCE_REPO_URL"
)

// Manager owns the session table and is the only writer of session status.
//
// Lock order is mu then entry.mu. entry.op serializes lifecycle work for a
// single session and is the only lock held across orchestrator calls.
type Manager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	config       types.SessionConfig
	orchestrator orchestrator.Client
	now          func() time.Time
	wg           sync.WaitGroup
	emitter      common.EventEmitter
	events       chan map[string]any
	eventsDone   sync.WaitGroup
	stopEvents   chan struct{}

	// stopping is set once by Stop; no background work starts after it
	stopMu   sync.Mutex
	stopping bool

	mu         sync.RWMutex
	sessions   map[string]*entry
	active     int
	terminated *expirable.LRU[string, types.Session]
}

type entry struct {
	op      sync.Mutex
	mu      sync.RWMutex
	session types.Session
}

func (e *entry) snapshot() types.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

func NewManager(config types.SessionConfig, client orchestrator.Client) *Manager {
	if config.MaxSessions <= 0 {
		config.MaxSessions = defaultMaxSessions
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultSessionTimeout
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaultSweepInterval
	}
	if config.TerminatedRetention <= 0 {
		config.TerminatedRetention = defaultTerminatedRetention
	}
	if config.RetentionSize <= 0 {
		config.RetentionSize = defaultRetentionSize
	}
	if config.DeleteTimeout <= 0 {
		config.DeleteTimeout = defaultDeleteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ctx:          ctx,
		cancel:       cancel,
		config:       config,
		orchestrator: client,
		now:          time.Now,
		events:       make(chan map[string]any, eventBufferSize),
		stopEvents:   make(chan struct{}),
		sessions:     make(map[string]*entry),
		terminated:   expirable.NewLRU[string, types.Session](config.RetentionSize, nil, config.TerminatedRetention),
	}
}

// Start reaps orphaned sandboxes if configured and begins the age sweep
func (m *Manager) Start() {
	if m.config.ReapOnStart {
		if n, err := m.ReapOrphans(m.ctx); err != nil {
			log.Warn().Err(err).Msg("orphan sandbox reap failed")
		} else if n > 0 {
			log.Info().Int("count", n).Msg("reaped orphan sandboxes")
		}
	}

	m.wg.Add(1)
	go m.sweepLoop()

	if m.emitter != nil {
		m.eventsDone.Add(1)
		go m.eventLoop()
	}

	log.Info().
		Int("max_sessions", m.config.MaxSessions).
		Dur("timeout", m.config.Timeout).
		Dur("sweep_interval", m.config.SweepInterval).
		Msg("session manager started")
}

// Stop halts the sweep, waits for background terminations, then flushes
// their events. Sessions are left running.
func (m *Manager) Stop() error {
	m.stopMu.Lock()
	if m.stopping {
		m.stopMu.Unlock()
		return nil
	}
	m.stopping = true
	m.stopMu.Unlock()

	m.cancel()
	m.wg.Wait()

	close(m.stopEvents)
	m.eventsDone.Wait()

	log.Info().Msg("session manager stopped")
	return nil
}

// goBackground runs fn tracked by Stop. It reports false, without running
// fn, once Stop has begun.
func (m *Manager) goBackground(fn func()) bool {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	if m.stopping {
		return false
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
	return true
}

// CreateSession reserves a slot, then provisions the sandbox. On provisioning
// failure the returned session is already terminated and the error says why.
func (m *Manager) CreateSession(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error) {
	e, victim, err := m.reserve(req)
	if err != nil {
		return nil, err
	}
	defer e.op.Unlock()

	if victim != nil {
		evict := func() { m.terminate(m.ctx, victim, "evicted") }
		if !m.goBackground(evict) {
			m.terminate(ctx, victim, "evicted")
		}
	}

	id := e.session.Id
	ref, err := m.orchestrator.CreateSandbox(ctx, m.sandboxSpec(id, req))
	if err != nil {
		if terr := m.transition(e, types.SessionStatusTerminated); terr != nil {
			log.Error().Err(terr).Str("session_id", id).Msg("failed to mark session terminated")
		}
		log.Warn().Err(err).Str("session_id", id).Msg("sandbox provisioning failed")
		s := e.snapshot()
		return &s, err
	}

	m.mu.Lock()
	e.mu.Lock()
	e.session.SandboxRef = ref
	e.mu.Unlock()
	err = m.transitionLocked(e, types.SessionStatusRunning)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", id).
		Str("sandbox", ref.String()).
		Str("owner_id", req.OwnerId).
		Msg("session running")

	s := e.snapshot()
	return &s, nil
}

// reserve checks the cap and inserts a creating entry in one critical
// section. The returned entry's op lock is held by the caller.
func (m *Manager) reserve(req types.CreateSessionRequest) (*entry, *entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var victim *entry
	if m.active >= m.config.MaxSessions {
		if m.config.EvictOnCapacity {
			victim = m.oldestRunningLocked()
		}
		if victim == nil {
			return nil, nil, &types.ErrCapacityExceeded{Max: m.config.MaxSessions}
		}
		if err := m.transitionLocked(victim, types.SessionStatusTerminating); err != nil {
			return nil, nil, err
		}
	}

	e := &entry{session: types.Session{
		Id:            common.GenerateSessionID(),
		Status:        types.SessionStatusCreating,
		OwnerId:       req.OwnerId,
		SourceRepoUrl: req.SourceRepoUrl,
		CreatedAt:     m.now(),
	}}
	e.op.Lock()
	m.sessions[e.session.Id] = e
	m.active++

	return e, victim, nil
}

func (m *Manager) oldestRunningLocked() *entry {
	var oldest *entry
	var oldestAt time.Time
	for _, e := range m.sessions {
		s := e.snapshot()
		if s.Status != types.SessionStatusRunning {
			continue
		}
		if oldest == nil || s.CreatedAt.Before(oldestAt) {
			oldest, oldestAt = e, s.CreatedAt
		}
	}
	return oldest
}

func (m *Manager) sandboxSpec(id string, req types.CreateSessionRequest) types.SandboxSpec {
	defaults := m.config.Sandbox

	image := defaults.Image
	if req.Image != "" {
		image = req.Image
	}

	env := make(map[string]string, len(defaults.Env)+1)
	for k, v := range defaults.Env {
		env[k] = v
	}
	if req.SourceRepoUrl != "" {
		env[sourceRepoEnv] = req.SourceRepoUrl
	}

	labels := map[string]string{orchestrator.LabelSessionId: id}
	if req.OwnerId != "" {
		labels[orchestrator.LabelOwnerId] = req.OwnerId
	}

	return types.SandboxSpec{
		Name:    SandboxName(id),
		Image:   image,
		Command: defaults.Command,
		Env:     env,
		Labels:  labels,
		Resources: types.SandboxResources{
			CPU:    defaults.CPU,
			Memory: defaults.Memory,
		},
	}
}

// SandboxName is the orchestrator resource name for a session
func SandboxName(sessionId string) string {
	return "sandbox-" + sessionId
}

// GetSession returns a live session or a recently terminated one
func (m *Manager) GetSession(id string) (*types.Session, error) {
	e, tombstone := m.lookup(id)
	if e != nil {
		s := e.snapshot()
		return &s, nil
	}
	if tombstone != nil {
		return tombstone, nil
	}
	return nil, &types.ErrSessionNotFound{SessionId: id}
}

// ListSessions returns live sessions, optionally filtered by owner, oldest first
func (m *Manager) ListSessions(ownerId string) []types.Session {
	m.mu.RLock()
	sessions := make([]types.Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		s := e.snapshot()
		if ownerId != "" && s.OwnerId != ownerId {
			continue
		}
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// ActiveCount is the number of sessions counted against the cap
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Manager) lookup(id string) (*entry, *types.Session) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.sessions[id]; ok {
		return e, nil
	}
	if s, ok := m.terminated.Get(id); ok {
		return nil, &s
	}
	return nil, nil
}

// ExecInSession runs a command in a running session. The session is left
// untouched when the command times out.
func (m *Manager) ExecInSession(ctx context.Context, id string, command []string) (*types.ExecResult, error) {
	e, tombstone := m.lookup(id)
	if tombstone != nil {
		return nil, &types.ErrSessionNotRunning{SessionId: id, Status: tombstone.Status}
	}
	if e == nil {
		return nil, &types.ErrSessionNotFound{SessionId: id}
	}

	s := e.snapshot()
	if s.Status != types.SessionStatusRunning {
		return nil, &types.ErrSessionNotRunning{SessionId: id, Status: s.Status}
	}

	return m.orchestrator.Exec(ctx, s.SandboxRef, command)
}

// TerminateSession stops a session from any non-terminal state
func (m *Manager) TerminateSession(ctx context.Context, id string) (*types.Session, error) {
	e, tombstone := m.lookup(id)
	if tombstone != nil {
		return tombstone, nil
	}
	if e == nil {
		return nil, &types.ErrSessionNotFound{SessionId: id}
	}
	return m.terminate(ctx, e, "requested")
}

func (m *Manager) terminate(ctx context.Context, e *entry, reason string) (*types.Session, error) {
	e.op.Lock()
	defer e.op.Unlock()

	done, err := m.beginTermination(e)
	if err != nil {
		return nil, err
	}
	if done {
		s := e.snapshot()
		return &s, nil
	}

	s := e.snapshot()
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.DeleteTimeout)
	defer cancel()

	if err := m.orchestrator.DeleteSandbox(deleteCtx, s.SandboxRef); err != nil {
		log.Error().
			Err(err).
			Str("session_id", s.Id).
			Str("sandbox", s.SandboxRef.String()).
			Msg("sandbox delete failed, sandbox may be leaked")
	}

	if err := m.transition(e, types.SessionStatusTerminated); err != nil {
		return nil, err
	}

	log.Info().Str("session_id", s.Id).Str("reason", reason).Msg("session terminated")

	s = e.snapshot()
	return &s, nil
}

// beginTermination moves a running session to terminating. It reports done
// when the session is already terminated.
func (m *Manager) beginTermination(e *entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e.snapshot().Status {
	case types.SessionStatusTerminated:
		return true, nil
	case types.SessionStatusTerminating:
		return false, nil
	default:
		return false, m.transitionLocked(e, types.SessionStatusTerminating)
	}
}

func (m *Manager) transition(e *entry, to types.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(e, to)
}

// transitionLocked applies a status change, keeps the active count in step,
// and moves terminated sessions into the retention cache. Caller holds mu.
func (m *Manager) transitionLocked(e *entry, to types.SessionStatus) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.session.Status
	if !from.CanTransition(to) {
		return &types.ErrInvalidTransition{SessionId: e.session.Id, From: from, To: to}
	}

	if from.IsActive() && !to.IsActive() {
		m.active--
	}
	e.session.Status = to

	if to == types.SessionStatusTerminated {
		now := m.now()
		e.session.TerminatedAt = &now
		delete(m.sessions, e.session.Id)
		m.terminated.Add(e.session.Id, e.session)
	}

	m.publish(e.session, from)

	log.Debug().
		Str("session_id", e.session.Id).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("session transition")
	return nil
}

// Sweep terminates every live session older than the configured timeout and
// returns how many it terminated
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	m.mu.RLock()
	var expired []*entry
	for _, e := range m.sessions {
		if now.Sub(e.snapshot().CreatedAt) > m.config.Timeout {
			expired = append(expired, e)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	var g errgroup.Group
	g.SetLimit(sweepConcurrency)
	for _, e := range expired {
		g.Go(func() error {
			_, err := m.terminate(ctx, e, "timeout")
			return err
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("session sweep error")
	}

	log.Info().Int("count", len(expired)).Msg("expired sessions terminated")
	return len(expired)
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.ctx, m.now())
		}
	}
}

// ReapOrphans deletes managed sandboxes that no live session owns
func (m *Manager) ReapOrphans(ctx context.Context) (int, error) {
	refs, err := m.orchestrator.ListSandboxes(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.RLock()
	known := make(map[string]struct{}, len(m.sessions))
	for id := range m.sessions {
		known[SandboxName(id)] = struct{}{}
	}
	m.mu.RUnlock()

	reaped := 0
	for _, ref := range refs {
		if _, ok := known[ref.Name]; ok {
			continue
		}
		if err := m.orchestrator.DeleteSandbox(ctx, ref); err != nil {
			log.Warn().Err(err).Str("sandbox", ref.String()).Msg("failed to reap orphan sandbox")
			continue
		}
		reaped++
	}
	return reaped, nil
}
