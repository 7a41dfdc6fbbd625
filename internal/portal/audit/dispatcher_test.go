package audit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/audit"
	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store/drivers/sqlite"
	"github.com/aussiebroadwan/portal/internal/portal/store/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memorySink) Write(_ context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memorySink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func entry(action domain.AuditAction) domain.AuditEntry {
	return domain.AuditEntry{
		OrgID: "org-1", Action: action, ResourceType: domain.ResourceInviteCode,
		ResourceID: "ABC12345", Outcome: domain.OutcomeSuccess,
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := &memorySink{}
	d := audit.NewDispatcher(audit.Config{BufferSize: 256}, sink)

	for range 100 {
		d.Emit(context.Background(), entry(domain.ActionIssue))
	}
	require.NoError(t, d.Close(context.Background()))
	require.Equal(t, 100, sink.Len())
	require.Zero(t, d.Dropped())

	// Emits after close are counted as dropped.
	d.Emit(context.Background(), entry(domain.ActionIssue))
	require.Equal(t, 100, sink.Len())
	require.EqualValues(t, 1, d.Dropped())
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcherCloseRacingEmitsAccountsForEveryEntry(t *testing.T) {
	const workers, perWorker = 8, 200

	sink := &memorySink{}
	d := audit.NewDispatcher(audit.Config{BufferSize: 64}, sink)

	var wg sync.WaitGroup
	started := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-started
			for range perWorker {
				d.Emit(context.Background(), entry(domain.ActionFormAccess))
			}
		}()
	}

	close(started)
	time.Sleep(time.Millisecond)
	require.NoError(t, d.Close(context.Background()))
	wg.Wait()

	assert.EqualValues(t, workers*perWorker, uint64(sink.Len())+d.Dropped(),
		"every entry is either written or counted as dropped")
}

func TestDispatcherFillsIdentity(t *testing.T) {
	sink := &memorySink{}
	d := audit.NewDispatcher(audit.Config{}, sink)
	d.Emit(context.Background(), entry(domain.ActionRedeem))
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, sink.entries, 1)
	got := sink.entries[0]
	id, err := uuid.Parse(got.ID)
	require.NoError(t, err)
	require.EqualValues(t, 7, id.Version())
	require.False(t, got.Timestamp.IsZero())
}

func TestDispatcherNeverBlocksWhenFull(t *testing.T) {
	release := make(chan struct{})
	blocking := audit.SinkFunc(func(context.Context, domain.AuditEntry) error {
		<-release
		return nil
	})

	var onDrop int
	var mu sync.Mutex
	d := audit.NewDispatcher(audit.Config{
		BufferSize: 1,
		DropIfFull: true,
		OnDrop: func(domain.AuditEntry) {
			mu.Lock()
			onDrop++
			mu.Unlock()
		},
	}, blocking)

	start := time.Now()
	for range 20 {
		d.Emit(context.Background(), entry(domain.ActionFormSubmission))
	}
	require.Less(t, time.Since(start), time.Second)

	// At most one entry sits in the worker and one in the buffer.
	require.GreaterOrEqual(t, d.Dropped(), uint64(18))
	mu.Lock()
	require.EqualValues(t, d.Dropped(), onDrop)
	mu.Unlock()

	close(release)
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcherEmitTimeout(t *testing.T) {
	release := make(chan struct{})
	blocking := audit.SinkFunc(func(context.Context, domain.AuditEntry) error {
		<-release
		return nil
	})
	d := audit.NewDispatcher(audit.Config{BufferSize: 1, EmitTimeout: 10 * time.Millisecond}, blocking)

	for range 5 {
		d.Emit(context.Background(), entry(domain.ActionRotate))
	}
	require.GreaterOrEqual(t, d.Dropped(), uint64(3))

	close(release)
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcherCloseHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	blocking := audit.SinkFunc(func(context.Context, domain.AuditEntry) error {
		<-release
		return nil
	})
	d := audit.NewDispatcher(audit.Config{}, blocking)
	d.Emit(context.Background(), entry(domain.ActionRevoke))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
}

func TestDispatcherReportsSinkErrors(t *testing.T) {
	boom := errors.New("disk full")
	var logs bytes.Buffer
	d := audit.NewDispatcher(audit.Config{
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	}, audit.SinkFunc(func(context.Context, domain.AuditEntry) error { return boom }))

	d.Emit(context.Background(), entry(domain.ActionLogin))

	select {
	case err := <-d.Errors():
		require.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("no sink error reported")
	}
	require.NoError(t, d.Close(context.Background()))
	require.Contains(t, logs.String(), "audit sink failed")
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	a, b := &memorySink{}, &memorySink{}
	boom := errors.New("boom")
	multi := audit.MultiSink{a, audit.SinkFunc(func(context.Context, domain.AuditEntry) error { return boom }), b}

	err := multi.Write(context.Background(), entry(domain.ActionIssue))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len(), "later sinks still run")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := audit.LogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	e := entry(domain.ActionRedemptionRejected)
	e.Outcome = domain.OutcomeRejected
	e.Reason = "already consumed"
	require.NoError(t, sink.Write(context.Background(), e))

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"action":"redemption_rejected"`)
	assert.Contains(t, out, `"reason":"already consumed"`)
}

func TestStoreSink(t *testing.T) {
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	fx := storetest.Seed(t, s)

	d := audit.NewDispatcher(audit.Config{}, audit.StoreSink{Log: s.AuditLog()})
	e := entry(domain.ActionSignup)
	e.OrgID = fx.Org.ID
	e.SubjectID = &fx.Admin.ID
	d.Emit(context.Background(), e)
	require.NoError(t, d.Close(context.Background()))

	got, err := s.AuditLog().ListAudit(context.Background(), fx.Org.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, domain.ActionSignup, got[0].Action)
	require.Equal(t, fx.Admin.ID, *got[0].SubjectID)
}
