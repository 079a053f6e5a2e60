package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/orchestrator"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockOrchestrator records calls; behavior is swapped per test through the func fields
type mockOrchestrator struct {
	orchestrator.Client

	mu      sync.Mutex
	creates []types.SandboxSpec
	execs   []types.SandboxRef
	deletes []types.SandboxRef
	sandbox []types.SandboxRef

	createFn func(ctx context.Context, spec types.SandboxSpec) (types.SandboxRef, error)
	execFn   func(ctx context.Context, ref types.SandboxRef, command []string) (*types.ExecResult, error)
	deleteFn func(ctx context.Context, ref types.SandboxRef) error
}

func (m *mockOrchestrator) CreateSandbox(ctx context.Context, spec types.SandboxSpec) (types.SandboxRef, error) {
	m.mu.Lock()
	m.creates = append(m.creates, spec)
	fn := m.createFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, spec)
	}
	return types.SandboxRef{Name: spec.Name, Namespace: "test"}, nil
}

func (m *mockOrchestrator) Exec(ctx context.Context, ref types.SandboxRef, command []string) (*types.ExecResult, error) {
	m.mu.Lock()
	m.execs = append(m.execs, ref)
	fn := m.execFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, ref, command)
	}
	return &types.ExecResult{Stdout: "ok"}, nil
}

func (m *mockOrchestrator) DeleteSandbox(ctx context.Context, ref types.SandboxRef) error {
	m.mu.Lock()
	m.deletes = append(m.deletes, ref)
	fn := m.deleteFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, ref)
	}
	return nil
}

func (m *mockOrchestrator) ListSandboxes(ctx context.Context) ([]types.SandboxRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sandbox, nil
}

func (m *mockOrchestrator) counts() (creates, execs, deletes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creates), len(m.execs), len(m.deletes)
}

func newTestManager(max int) (*Manager, *mockOrchestrator) {
	orch := &mockOrchestrator{}
	m := NewManager(types.SessionConfig{
		MaxSessions: max,
		Timeout:     time.Hour,
		Sandbox: types.SandboxDefaults{
			Image:  "sandbox:latest",
			CPU:    1000,
			Memory: 1 << 30,
			Env:    map[string]string{"LANG": "C.UTF-8"},
		},
	}, orch)
	return m, orch
}

func TestCreateSession(t *testing.T) {
	m, orch := newTestManager(5)

	s, err := m.CreateSession(context.Background(), types.CreateSessionRequest{
		OwnerId:       "alice",
		SourceRepoUrl: "https://github.com/org/paper",
	})
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusRunning, s.Status)
	assert.Equal(t, "alice", s.OwnerId)
	assert.Equal(t, SandboxName(s.Id), s.SandboxRef.Name)
	assert.False(t, s.CreatedAt.IsZero())
	assert.Equal(t, 1, m.ActiveCount())

	require.Len(t, orch.creates, 1)
	spec := orch.creates[0]
	assert.Equal(t, "sandbox:latest", spec.Image)
	assert.Equal(t, "https://github.com/org/paper", spec.Env[sourceRepoEnv])
	assert.Equal(t, "C.UTF-8", spec.Env["LANG"])
	assert.Equal(t, s.Id, spec.Labels[orchestrator.LabelSessionId])
	assert.Equal(t, "alice", spec.Labels[orchestrator.LabelOwnerId])
	assert.Equal(t, int64(1000), spec.Resources.CPU)

	got, err := m.GetSession(s.Id)
	require.NoError(t, err)
	assert.Equal(t, *s, *got)
}

func TestCreateSessionImageOverride(t *testing.T) {
	m, orch := newTestManager(5)

	_, err := m.CreateSession(context.Background(), types.CreateSessionRequest{Image: "custom:1"})
	require.NoError(t, err)
	assert.Equal(t, "custom:1", orch.creates[0].Image)
}

func TestCreateSessionProvisionFailure(t *testing.T) {
	m, orch := newTestManager(5)
	orch.createFn = func(ctx context.Context, spec types.SandboxSpec) (types.SandboxRef, error) {
		return types.SandboxRef{}, &types.ErrProvision{Reason: "quota exceeded"}
	}

	s, err := m.CreateSession(context.Background(), types.CreateSessionRequest{})
	require.Error(t, err)
	assert.True(t, (&types.ErrProvision{}).From(err))

	require.NotNil(t, s)
	assert.Equal(t, types.SessionStatusTerminated, s.Status)
	assert.NotNil(t, s.TerminatedAt)
	assert.Equal(t, 0, m.ActiveCount())

	_, _, deletes := orch.counts()
	assert.Equal(t, 0, deletes)

	got, err := m.GetSession(s.Id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusTerminated, got.Status)
}

func TestCapacityExceeded(t *testing.T) {
	m, _ := newTestManager(2)
	ctx := context.Background()

	first, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	_, err = m.CreateSession(ctx, types.CreateSessionRequest{})
	var capErr *types.ErrCapacityExceeded
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 2, capErr.Max)

	_, err = m.TerminateSession(ctx, first.Id)
	require.NoError(t, err)

	_, err = m.CreateSession(ctx, types.CreateSessionRequest{})
	assert.NoError(t, err)
}

func TestCapacityUnderConcurrentCreates(t *testing.T) {
	m, orch := newTestManager(5)
	release := make(chan struct{})
	orch.createFn = func(ctx context.Context, spec types.SandboxSpec) (types.SandboxRef, error) {
		<-release
		return types.SandboxRef{Name: spec.Name, Namespace: "test"}, nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreateSession(context.Background(), types.CreateSessionRequest{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else if (&types.ErrCapacityExceeded{}).From(err) {
				rejected++
			}
		}()
	}

	// Rejections return immediately; accepted creates are parked on release
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return rejected == 35
	}, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 5, accepted)
	assert.Equal(t, 5, m.ActiveCount())
}

func TestExecInSession(t *testing.T) {
	m, orch := newTestManager(5)
	ctx := context.Background()

	s, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	result, err := m.ExecInSession(ctx, s.Id, []string{"echo", "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Stdout)
	assert.Equal(t, []types.SandboxRef{s.SandboxRef}, orch.execs)
}

func TestExecRequiresRunning(t *testing.T) {
	m, orch := newTestManager(5)
	ctx := context.Background()

	s, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)
	_, err = m.TerminateSession(ctx, s.Id)
	require.NoError(t, err)

	_, err = m.ExecInSession(ctx, s.Id, []string{"ls"})
	var notRunning *types.ErrSessionNotRunning
	require.True(t, errors.As(err, &notRunning))
	assert.Equal(t, types.SessionStatusTerminated, notRunning.Status)

	_, execs, _ := orch.counts()
	assert.Equal(t, 0, execs)
}

func TestExecWhileCreating(t *testing.T) {
	m, orch := newTestManager(5)
	release := make(chan struct{})
	orch.createFn = func(ctx context.Context, spec types.SandboxSpec) (types.SandboxRef, error) {
		<-release
		return types.SandboxRef{Name: spec.Name, Namespace: "test"}, nil
	}

	go m.CreateSession(context.Background(), types.CreateSessionRequest{})

	var id string
	require.Eventually(t, func() bool {
		sessions := m.ListSessions("")
		if len(sessions) == 1 {
			id = sessions[0].Id
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	_, err := m.ExecInSession(context.Background(), id, []string{"ls"})
	assert.True(t, (&types.ErrSessionNotRunning{}).From(err))

	_, execs, _ := orch.counts()
	assert.Equal(t, 0, execs)
	close(release)
}

func TestExecUnknownSession(t *testing.T) {
	m, _ := newTestManager(5)

	_, err := m.ExecInSession(context.Background(), "sess-missing", []string{"ls"})
	assert.True(t, (&types.ErrSessionNotFound{}).From(err))
}

func TestExecTimeoutLeavesSessionRunning(t *testing.T) {
	m, orch := newTestManager(5)
	ctx := context.Background()
	orch.execFn = func(ctx context.Context, ref types.SandboxRef, command []string) (*types.ExecResult, error) {
		return nil, &types.ErrExecTimeout{Sandbox: ref, Timeout: time.Second}
	}

	s, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	_, err = m.ExecInSession(ctx, s.Id, []string{"sleep", "100"})
	assert.True(t, (&types.ErrExecTimeout{}).From(err))

	got, err := m.GetSession(s.Id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusRunning, got.Status)

	_, _, deletes := orch.counts()
	assert.Equal(t, 0, deletes)
}

func TestTerminateWaitsForCreate(t *testing.T) {
	m, orch := newTestManager(5)
	release := make(chan struct{})
	orch.createFn = func(ctx context.Context, spec types.SandboxSpec) (types.SandboxRef, error) {
		<-release
		return types.SandboxRef{Name: spec.Name, Namespace: "test"}, nil
	}

	created := make(chan *types.Session, 1)
	go func() {
		s, _ := m.CreateSession(context.Background(), types.CreateSessionRequest{})
		created <- s
	}()

	var id string
	require.Eventually(t, func() bool {
		sessions := m.ListSessions("")
		if len(sessions) == 1 {
			id = sessions[0].Id
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	terminated := make(chan *types.Session, 1)
	go func() {
		s, _ := m.TerminateSession(context.Background(), id)
		terminated <- s
	}()

	select {
	case <-terminated:
		t.Fatal("terminate finished before create resolved")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	s := <-created
	assert.Equal(t, types.SessionStatusRunning, s.Status)

	final := <-terminated
	assert.Equal(t, types.SessionStatusTerminated, final.Status)
	require.Len(t, orch.deletes, 1)
	assert.Equal(t, s.SandboxRef, orch.deletes[0])
}

func TestTerminateDeleteFailureStillTerminates(t *testing.T) {
	m, orch := newTestManager(5)
	ctx := context.Background()
	orch.deleteFn = func(ctx context.Context, ref types.SandboxRef) error {
		return &types.ErrUpstreamUnavailable{Op: "delete", Err: errors.New("connection refused")}
	}

	s, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	got, err := m.TerminateSession(ctx, s.Id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusTerminated, got.Status)
	assert.Equal(t, 0, m.ActiveCount())
}

func TestTerminateIsIdempotent(t *testing.T) {
	m, orch := newTestManager(5)
	ctx := context.Background()

	s, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := m.TerminateSession(ctx, s.Id)
		require.NoError(t, err)
		assert.Equal(t, types.SessionStatusTerminated, got.Status)
	}

	_, _, deletes := orch.counts()
	assert.Equal(t, 1, deletes)
}

func TestTerminateUnknownSession(t *testing.T) {
	m, _ := newTestManager(5)

	_, err := m.TerminateSession(context.Background(), "sess-missing")
	assert.True(t, (&types.ErrSessionNotFound{}).From(err))

	_, err = m.GetSession("sess-missing")
	assert.True(t, (&types.ErrSessionNotFound{}).From(err))
}

func TestSweepTerminatesByAge(t *testing.T) {
	m, orch := newTestManager(5)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	m.now = func() time.Time { return start }
	old, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(45 * time.Minute) }
	young, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	// Exec does not extend a session's lifetime
	_, err = m.ExecInSession(ctx, old.Id, []string{"true"})
	require.NoError(t, err)

	assert.Equal(t, 0, m.Sweep(ctx, start.Add(59*time.Minute)))

	terminated := m.Sweep(ctx, start.Add(61*time.Minute))
	assert.Equal(t, 1, terminated)

	got, err := m.GetSession(old.Id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusTerminated, got.Status)

	got, err = m.GetSession(young.Id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusRunning, got.Status)

	require.Len(t, orch.deletes, 1)
	assert.Equal(t, old.SandboxRef, orch.deletes[0])
}

func TestEvictOnCapacity(t *testing.T) {
	m, orch := newTestManager(1)
	m.config.EvictOnCapacity = true
	ctx := context.Background()

	first, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	second, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusRunning, second.Status)

	require.NoError(t, m.Stop())

	got, err := m.GetSession(first.Id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusTerminated, got.Status)
	assert.Equal(t, 1, m.ActiveCount())

	require.Len(t, orch.deletes, 1)
	assert.Equal(t, first.SandboxRef, orch.deletes[0])
}

func TestListSessionsByOwner(t *testing.T) {
	m, _ := newTestManager(5)
	ctx := context.Background()

	_, err := m.CreateSession(ctx, types.CreateSessionRequest{OwnerId: "alice"})
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, types.CreateSessionRequest{OwnerId: "bob"})
	require.NoError(t, err)

	assert.Len(t, m.ListSessions(""), 2)
	sessions := m.ListSessions("bob")
	require.Len(t, sessions, 1)
	assert.Equal(t, "bob", sessions[0].OwnerId)
}

func TestReapOrphans(t *testing.T) {
	m, orch := newTestManager(5)
	ctx := context.Background()

	s, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	orphan := types.SandboxRef{Name: "sandbox-sess-old", Namespace: "test"}
	orch.sandbox = []types.SandboxRef{s.SandboxRef, orphan}

	reaped, err := m.ReapOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)
	assert.Equal(t, []types.SandboxRef{orphan}, orch.deletes)
}

func TestSessionIdsAreUnique(t *testing.T) {
	m, _ := newTestManager(100)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s, err := m.CreateSession(context.Background(), types.CreateSessionRequest{})
		require.NoError(t, err)
		assert.False(t, seen[s.Id])
		seen[s.Id] = true
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []map[string]any
}

func (r *recordingEmitter) Emit(ctx context.Context, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
	return nil
}

func TestTransitionsAreEmitted(t *testing.T) {
	m, _ := newTestManager(5)
	emitter := &recordingEmitter{}
	m.SetEventEmitter(emitter)
	m.Start()

	ctx := context.Background()
	s, err := m.CreateSession(ctx, types.CreateSessionRequest{OwnerId: "alice"})
	require.NoError(t, err)
	_, err = m.TerminateSession(ctx, s.Id)
	require.NoError(t, err)

	require.NoError(t, m.Stop())

	emitter.mu.Lock()
	defer emitter.mu.Unlock()

	var to []string
	for _, event := range emitter.events {
		assert.Equal(t, s.Id, event["session_id"])
		assert.Equal(t, "alice", event["owner_id"])
		to = append(to, event["to"].(string))
	}
	assert.Equal(t, []string{"running", "terminating", "terminated"}, to)
	assert.Equal(t, "creating", emitter.events[0]["from"])
}

func TestEvictionEventsFlushedOnStop(t *testing.T) {
	m, _ := newTestManager(1)
	m.config.EvictOnCapacity = true
	emitter := &recordingEmitter{}
	m.SetEventEmitter(emitter)
	m.Start()

	ctx := context.Background()
	first, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	require.NoError(t, m.Stop())

	emitter.mu.Lock()
	defer emitter.mu.Unlock()

	var firstTo []string
	for _, event := range emitter.events {
		if event["session_id"] == first.Id {
			firstTo = append(firstTo, event["to"].(string))
		}
	}
	assert.Equal(t, []string{"running", "terminating", "terminated"}, firstTo)
}

func TestEvictionAfterStopRunsInline(t *testing.T) {
	m, orch := newTestManager(1)
	m.config.EvictOnCapacity = true
	m.Start()

	ctx := context.Background()
	first, err := m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())

	_, err = m.CreateSession(ctx, types.CreateSessionRequest{})
	require.NoError(t, err)

	got, err := m.GetSession(first.Id)
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusTerminated, got.Status)

	_, _, deletes := orch.counts()
	assert.Equal(t, 1, deletes)
}
