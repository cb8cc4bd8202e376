package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceIsMonotonic(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	st := NewState()

	require.True(t, st.Advance(StatusDelivered, t0))
	assert.Equal(t, StatusDelivered, st.Status)
	require.NotNil(t, st.DeliveredAt)
	assert.Equal(t, t0, *st.DeliveredAt)
	assert.Nil(t, st.ReadAt)

	// re-firing is a no-op and keeps the first stamp
	assert.False(t, st.Advance(StatusDelivered, t0.Add(time.Minute)))
	assert.Equal(t, t0, *st.DeliveredAt)

	require.True(t, st.Advance(StatusRead, t0.Add(time.Hour)))
	assert.Equal(t, StatusRead, st.Status)
	assert.Equal(t, t0.Add(time.Hour), *st.ReadAt)

	// read is terminal
	assert.False(t, st.Advance(StatusDelivered, t0.Add(2*time.Hour)))
	assert.False(t, st.Advance(StatusSent, t0.Add(2*time.Hour)))
	assert.False(t, st.Advance(StatusRead, t0.Add(2*time.Hour)))
	assert.Equal(t, StatusRead, st.Status)
	assert.Equal(t, t0.Add(time.Hour), *st.ReadAt)
}

func TestAdvanceSentToReadStampsDelivered(t *testing.T) {
	at := time.Now()
	st := NewState()

	require.True(t, st.Advance(StatusRead, at))
	require.NotNil(t, st.DeliveredAt)
	require.NotNil(t, st.ReadAt)
	assert.Equal(t, at, *st.DeliveredAt)
}

func TestAdvanceRejectsUnknownTarget(t *testing.T) {
	st := NewState()
	assert.False(t, st.Advance(Status("seen"), time.Now()))
	assert.Equal(t, StatusSent, st.Status)
}

func TestParseStatusAndMode(t *testing.T) {
	s, err := ParseStatus("delivered")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, s)

	_, err = ParseStatus("pending")
	assert.Error(t, err)

	m, err := ParseMode("ack")
	require.NoError(t, err)
	assert.Equal(t, ModeAck, m)

	_, err = ParseMode("never")
	assert.Error(t, err)
}

func TestAuthorize(t *testing.T) {
	assert.NoError(t, Authorize("bob", "bob"))
	assert.ErrorIs(t, Authorize("alice", "bob"), ErrNotRecipient)
	assert.ErrorIs(t, Authorize("", ""), ErrNotRecipient)
}

type fakePresence struct {
	online map[string]bool
	err    error
}

func (f fakePresence) IsOnline(_ context.Context, userID string) (bool, error) {
	return f.online[userID], f.err
}

type recorder struct {
	mu  sync.Mutex
	ids []string
	ch  chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 16)}
}

func (r *recorder) confirm(_ context.Context, id string) error {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	r.ch <- id
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func waitConfirm(t *testing.T, r *recorder, want string) {
	t.Helper()
	select {
	case got := <-r.ch:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("confirmation for %s not received", want)
	}
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(nil)
	return &l
}

func TestSchedulerPresenceOnlineConfirmsImmediately(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(ModePresence, time.Hour, fakePresence{online: map[string]bool{"bob": true}}, rec.confirm, testLogger())
	defer s.Close()

	s.Schedule("m1", "bob")
	waitConfirm(t, rec, "m1")
}

func TestSchedulerPresenceOfflineLeavesSent(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(ModePresence, 10*time.Millisecond, fakePresence{}, rec.confirm, testLogger())

	s.Schedule("m1", "bob")
	time.Sleep(50 * time.Millisecond)
	s.Close()

	assert.Equal(t, 0, rec.count())
}

func TestSchedulerPresenceErrorFallsBackToGrace(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(ModePresence, 20*time.Millisecond, fakePresence{err: errors.New("redis down")}, rec.confirm, testLogger())
	defer s.Close()

	s.Schedule("m1", "bob")
	waitConfirm(t, rec, "m1")
}

func TestSchedulerTimerMode(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(ModeTimer, 20*time.Millisecond, nil, rec.confirm, testLogger())
	defer s.Close()

	start := time.Now()
	s.Schedule("m1", "bob")
	waitConfirm(t, rec, "m1")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSchedulerAckModeNeverConfirms(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(ModeAck, time.Millisecond, fakePresence{online: map[string]bool{"bob": true}}, rec.confirm, testLogger())

	s.Schedule("m1", "bob")
	time.Sleep(20 * time.Millisecond)
	s.Close()

	assert.Equal(t, 0, rec.count())
}

func TestSchedulerCloseCancelsPendingTimers(t *testing.T) {
	rec := newRecorder()
	s := NewScheduler(ModeTimer, time.Hour, nil, rec.confirm, testLogger())

	s.Schedule("m1", "bob")
	s.Schedule("m2", "bob")

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}

	s.Schedule("m3", "bob")
	assert.Equal(t, 0, rec.count())
}
