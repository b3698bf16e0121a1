package orchestrator_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostapkh/cloud-hibernator/internal/cloud"
	"github.com/ostapkh/cloud-hibernator/internal/compute"
	"github.com/ostapkh/cloud-hibernator/internal/dbpower"
	"github.com/ostapkh/cloud-hibernator/internal/metrics"
	"github.com/ostapkh/cloud-hibernator/internal/models"
	"github.com/ostapkh/cloud-hibernator/internal/orchestrator"
	"github.com/ostapkh/cloud-hibernator/internal/replay"
	"github.com/ostapkh/cloud-hibernator/internal/routing"
	"github.com/ostapkh/cloud-hibernator/internal/waiter"
)

// fakeCloud is an in-memory control plane that converges instantly unless
// told otherwise.
type fakeCloud struct {
	mu           sync.Mutex
	rules        []cloud.RoutingRule
	desired      int
	running      int
	dbStatus     cloud.DBInstanceStatus
	dbStopCalls  int
	dbStartCalls int
	scaleErr     error
	listErr      error
	stuckRunning bool
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		rules: []cloud.RoutingRule{
			{ID: "r-be", Priority: 1, Paths: []string{"/*"}, TargetPool: "backend-pool"},
			{ID: "r-ph", Priority: 2, Paths: []string{"/*"}, TargetPool: "placeholder-pool"},
		},
		desired:  1,
		running:  1,
		dbStatus: cloud.DBStatusAvailable,
	}
}

func (f *fakeCloud) ListRules(context.Context) ([]cloud.RoutingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]cloud.RoutingRule, len(f.rules))
	copy(out, f.rules)
	return out, nil
}

func (f *fakeCloud) SetRulePriorities(_ context.Context, assignments []cloud.PriorityAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, as := range assignments {
		for i := range f.rules {
			if f.rules[i].ID == as.RuleID {
				f.rules[i].Priority = as.Priority
			}
		}
	}
	return nil
}

func (f *fakeCloud) DescribeService(context.Context) (cloud.ServiceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloud.ServiceStatus{Desired: f.desired, Running: f.running}, nil
}

func (f *fakeCloud) SetDesiredCount(_ context.Context, desired int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scaleErr != nil {
		return f.scaleErr
	}
	f.desired = desired
	if !f.stuckRunning {
		f.running = desired
	}
	return nil
}

func (f *fakeCloud) DescribeDBInstance(context.Context) (cloud.DBInstanceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dbStatus, nil
}

func (f *fakeCloud) StopDBInstance(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dbStopCalls++
	f.dbStatus = cloud.DBStatusStopped
	return nil
}

func (f *fakeCloud) StartDBInstance(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dbStartCalls++
	f.dbStatus = cloud.DBStatusAvailable
	return nil
}

func (f *fakeCloud) rulePriority(id cloud.RuleID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rule := range f.rules {
		if rule.ID == id {
			return rule.Priority
		}
	}
	return 0
}

type memRecorder struct {
	mu          sync.Mutex
	transitions []models.Transition
}

func (m *memRecorder) RecordTransition(_ context.Context, t models.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, t)
	return nil
}

func (m *memRecorder) last(t *testing.T) models.Transition {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.transitions)
	return m.transitions[len(m.transitions)-1]
}

type harness struct {
	cloud     *fakeCloud
	recorder  *memRecorder
	hibernate *orchestrator.Hibernate
	wake      *orchestrator.Wake
}

func newHarness(t *testing.T, fc *fakeCloud) *harness {
	t.Helper()
	swapper := routing.NewSwapper(fc,
		routing.ManagedRule{Pool: "placeholder-pool"},
		routing.ManagedRule{Pool: "backend-pool"},
	)
	scaler := compute.NewScaler(fc)
	dbctl := dbpower.NewController(fc)
	drain := waiter.NewDrainWaiter(scaler, time.Millisecond, 50*time.Millisecond)
	readiness := waiter.NewReadinessWaiter(scaler, fc, time.Millisecond, time.Second)
	replayer := replay.NewReplayer(time.Millisecond, 5, time.Second)
	recorder := &memRecorder{}

	return &harness{
		cloud:    fc,
		recorder: recorder,
		hibernate: orchestrator.NewHibernate(
			swapper, scaler, drain, dbctl,
			recorder, orchestrator.NopNotifier{}, metrics.Noop{},
		),
		wake: orchestrator.NewWake(
			scaler, dbctl, swapper, readiness, replayer,
			recorder, orchestrator.NopNotifier{}, metrics.Noop{},
			false,
		),
	}
}

func TestHibernateThenWakeRoundTrip(t *testing.T) {
	fc := newFakeCloud()

	var firstReplayBackendPriority int
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if firstReplayBackendPriority == 0 {
			firstReplayBackendPriority = fc.rulePriority("r-be")
		}
		_, _ = w.Write([]byte("hello again"))
	}))
	defer backend.Close()

	h := newHarness(t, fc)
	ctx := context.Background()

	require.NoError(t, h.hibernate.Run(ctx))

	// terminal hibernation state
	assert.Equal(t, 0, fc.desired)
	assert.Equal(t, cloud.DBStatusStopped, fc.dbStatus)
	assert.Equal(t, 1, fc.rulePriority("r-ph"), "placeholder rule holds top priority")
	assert.Equal(t, 2, fc.rulePriority("r-be"))
	assert.Equal(t, models.OutcomeSucceeded, h.recorder.last(t).Outcome)

	resp, err := h.wake.Run(ctx, &replay.Request{
		Method: http.MethodGet,
		URL:    backend.URL + "/",
		Header: http.Header{},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello again", string(resp.Body))

	// all three resources back to their pre-hibernation values
	assert.Equal(t, 1, fc.desired)
	assert.Equal(t, cloud.DBStatusAvailable, fc.dbStatus)
	assert.Equal(t, 1, fc.rulePriority("r-be"))
	assert.Equal(t, 2, fc.rulePriority("r-ph"))

	assert.Equal(t, 1, firstReplayBackendPriority, "backend rule promoted before the first replay attempt")
	wakeRow := h.recorder.last(t)
	assert.Equal(t, models.OutcomeSucceeded, wakeRow.Outcome)
	assert.Equal(t, 0, wakeRow.DesiredBefore)
	assert.Equal(t, 1, wakeRow.DesiredAfter)
}

func TestHibernateProceedsPastStuckDrain(t *testing.T) {
	fc := newFakeCloud()
	fc.stuckRunning = true

	h := newHarness(t, fc)

	require.NoError(t, h.hibernate.Run(context.Background()))

	assert.Equal(t, 0, fc.desired)
	assert.Equal(t, 1, fc.running, "simulated stuck task never drained")
	assert.Equal(t, 1, fc.dbStopCalls, "database still powered down")
}

func TestHibernateAbortsOnScaleFailure(t *testing.T) {
	fc := newFakeCloud()
	fc.scaleErr = errors.New("control plane rejected update")

	h := newHarness(t, fc)

	err := h.hibernate.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, fc.dbStopCalls, "later steps skipped after a required step failed")
	row := h.recorder.last(t)
	assert.Equal(t, models.OutcomeFailed, row.Outcome)
	assert.Equal(t, 1, row.DesiredBefore)
	assert.Equal(t, 1, row.DesiredAfter, "audit row records the live count, not the rejected target")
}

func TestWakeFailsBeforeReplayOnRequiredStep(t *testing.T) {
	fc := newFakeCloud()
	fc.desired = 0
	fc.running = 0
	fc.dbStatus = cloud.DBStatusStopped

	hits := 0
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer backend.Close()

	h := newHarness(t, fc)
	fc.listErr = errors.New("listener unavailable")

	_, err := h.wake.Run(context.Background(), &replay.Request{
		Method: http.MethodGet,
		URL:    backend.URL + "/",
		Header: http.Header{},
	})
	require.Error(t, err)
	assert.Zero(t, hits, "replay never started")
	row := h.recorder.last(t)
	assert.Equal(t, models.OutcomeFailed, row.Outcome)
	assert.Equal(t, 0, row.DesiredBefore)
	assert.Equal(t, 1, row.DesiredAfter, "scale step landed before the promote failure")
}

func TestWakeWithReadinessWait(t *testing.T) {
	fc := newFakeCloud()
	fc.desired = 0
	fc.running = 0
	fc.dbStatus = cloud.DBStatusStopped

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer backend.Close()

	swapper := routing.NewSwapper(fc,
		routing.ManagedRule{Pool: "placeholder-pool"},
		routing.ManagedRule{Pool: "backend-pool"},
	)
	scaler := compute.NewScaler(fc)
	dbctl := dbpower.NewController(fc)
	readiness := waiter.NewReadinessWaiter(scaler, fc, time.Millisecond, time.Second)
	replayer := replay.NewReplayer(time.Millisecond, 5, time.Second)

	wake := orchestrator.NewWake(
		scaler, dbctl, swapper, readiness, replayer,
		orchestrator.NopRecorder{}, orchestrator.NopNotifier{}, metrics.Noop{},
		true,
	)

	resp, err := wake.Run(context.Background(), &replay.Request{
		Method: http.MethodGet,
		URL:    backend.URL + "/",
		Header: http.Header{},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
