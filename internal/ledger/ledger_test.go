package ledger

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
)

func elderProfile(email string) domain.Profile {
	return domain.Profile{Email: email, Role: domain.RoleElder, FullName: "Test Elder", Location: "10.0,20.0"}
}

func TestLedger_CreateAndGet(t *testing.T) {
	l := NewLedger(zap.NewNop())

	req, err := l.Create(elderProfile("e1@example.com"), domain.ServiceForm{Description: "groceries"}, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, req.ID, req.Form.ServiceID)
	assert.Equal(t, domain.ServicePending, req.Status)

	got, ok := l.Get(req.ID)
	require.True(t, ok)
	assert.Equal(t, "e1@example.com", got.ElderEmail)

	_, ok = l.Get("missing-id")
	assert.False(t, ok)
}

func TestLedger_DuplicateActiveRequestConflicts(t *testing.T) {
	l := NewLedger(zap.NewNop())
	deadline := time.Now().Add(time.Minute)

	first, err := l.Create(elderProfile("e1@example.com"), domain.ServiceForm{}, deadline)
	require.NoError(t, err)

	_, err = l.Create(elderProfile("e1@example.com"), domain.ServiceForm{}, deadline)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// 终态之后才允许新请求
	require.True(t, l.Transition(first.ID, domain.ServicePending, domain.ServiceAborted))
	_, err = l.Create(elderProfile("e1@example.com"), domain.ServiceForm{}, deadline)
	assert.NoError(t, err)
}

func TestLedger_MarkNotifiedIdempotent(t *testing.T) {
	l := NewLedger(zap.NewNop())
	req, err := l.Create(elderProfile("e1@example.com"), domain.ServiceForm{}, time.Now().Add(time.Minute))
	require.NoError(t, err)

	l.MarkNotified(req.ID, "v1@example.com")
	l.MarkNotified(req.ID, "v1@example.com")
	l.MarkNotified(req.ID, "v2@example.com")

	got, ok := l.Get(req.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"v1@example.com", "v2@example.com"}, got.NotifiedVolunteers)
}

func TestLedger_TransitionCAS(t *testing.T) {
	l := NewLedger(zap.NewNop())
	req, err := l.Create(elderProfile("e1@example.com"), domain.ServiceForm{}, time.Now().Add(time.Minute))
	require.NoError(t, err)

	assert.True(t, l.Transition(req.ID, domain.ServicePending, domain.ServiceAccepted))
	// 已经不是 pending，再 CAS 失败
	assert.False(t, l.Transition(req.ID, domain.ServicePending, domain.ServiceAccepted))
	assert.True(t, l.Transition(req.ID, domain.ServiceAccepted, domain.ServiceCompleted))
	assert.False(t, l.Transition("missing-id", domain.ServicePending, domain.ServiceAccepted))
}

func TestLedger_AcceptExactlyOneWinner(t *testing.T) {
	l := NewLedger(zap.NewNop())
	req, err := l.Create(elderProfile("e1@example.com"), domain.ServiceForm{}, time.Now().Add(time.Minute))
	require.NoError(t, err)

	const n = 32
	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if l.Accept(req.ID, "volunteer@example.com") {
				atomic.AddInt64(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	got, ok := l.Get(req.ID)
	require.True(t, ok)
	assert.Equal(t, domain.ServiceAccepted, got.Status)
	assert.Equal(t, "volunteer@example.com", got.VolunteerEmail)
}

func TestLedger_EvictReturnsEntry(t *testing.T) {
	l := NewLedger(zap.NewNop())
	req, err := l.Create(elderProfile("e1@example.com"), domain.ServiceForm{Documents: []string{"a.pdf"}}, time.Now().Add(time.Minute))
	require.NoError(t, err)

	got, ok := l.Evict(req.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"a.pdf"}, got.Form.Documents)

	_, ok = l.Get(req.ID)
	assert.False(t, ok)
	_, ok = l.Evict(req.ID)
	assert.False(t, ok)

	// 驱逐后允许同一 elder 再建
	_, err = l.Create(elderProfile("e1@example.com"), domain.ServiceForm{}, time.Now().Add(time.Minute))
	assert.NoError(t, err)
}

func TestLedger_PendingFor(t *testing.T) {
	l := NewLedger(zap.NewNop())
	now := time.Now()

	fresh, err := l.Create(elderProfile("e1@example.com"), domain.ServiceForm{}, now.Add(time.Minute))
	require.NoError(t, err)
	stale, err := l.Create(elderProfile("e2@example.com"), domain.ServiceForm{}, now.Add(-time.Second))
	require.NoError(t, err)
	notified, err := l.Create(elderProfile("e3@example.com"), domain.ServiceForm{}, now.Add(time.Minute))
	require.NoError(t, err)
	l.MarkNotified(notified.ID, "v1@example.com")

	visible := l.PendingFor("v1@example.com", now)
	require.Len(t, visible, 1)
	assert.Equal(t, fresh.ID, visible[0].ID)
	_ = stale
}

func TestSweeper_ReclaimsExpiredAndTerminal(t *testing.T) {
	l := NewLedger(zap.NewNop())
	now := time.Now()

	expired, err := l.Create(elderProfile("e1@example.com"), domain.ServiceForm{}, now.Add(-time.Second))
	require.NoError(t, err)
	done, err := l.Create(elderProfile("e2@example.com"), domain.ServiceForm{}, now.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, l.Transition(done.ID, domain.ServicePending, domain.ServiceCompleted))
	alive, err := l.Create(elderProfile("e3@example.com"), domain.ServiceForm{}, now.Add(time.Hour))
	require.NoError(t, err)

	var evicted []string
	s := NewSweeper(l, time.Second, func(req domain.ServiceRequest) {
		evicted = append(evicted, req.ID)
	}, zap.NewNop())

	n := s.SweepOnce(now)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{expired.ID, done.ID}, evicted)

	_, ok := l.Get(alive.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, l.Len())
}
