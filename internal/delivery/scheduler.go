package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Mode selects how a sent message becomes delivered.
type Mode string

const (
	// ModePresence confirms immediately when the recipient is online. If presence
	// cannot be determined it falls back to the grace delay. Offline recipients stay
	// at sent until they come back.
	ModePresence Mode = "presence"
	// ModeTimer always confirms after the grace delay.
	ModeTimer Mode = "timer"
	// ModeAck only confirms on an explicit client acknowledgement.
	ModeAck Mode = "ack"
)

// ParseMode converts a config value to a Mode.
func ParseMode(v string) (Mode, error) {
	switch m := Mode(v); m {
	case ModePresence, ModeTimer, ModeAck:
		return m, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q", v)
	}
}

// PresenceChecker answers whether a user currently has a live connection.
type PresenceChecker interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// ConfirmFunc persists the sent -> delivered transition of one message.
type ConfirmFunc func(ctx context.Context, messageID string) error

const confirmTimeout = 5 * time.Second

// Scheduler runs delivery confirmations off the request path.
type Scheduler struct {
	mode     Mode
	grace    time.Duration
	presence PresenceChecker
	confirm  ConfirmFunc
	log      *zerolog.Logger

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler builds a scheduler. presence may be nil outside ModePresence.
func NewScheduler(mode Mode, grace time.Duration, presence PresenceChecker, confirm ConfirmFunc, logger *zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		mode:     mode,
		grace:    grace,
		presence: presence,
		confirm:  confirm,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Mode returns the configured confirmation mode.
func (s *Scheduler) Mode() Mode {
	return s.mode
}

// Schedule arranges the delivery confirmation of messageID, addressed to recipient.
// It never blocks on the confirmation itself.
func (s *Scheduler) Schedule(messageID, recipient string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch s.mode {
	case ModeAck:
		return
	case ModeTimer:
		s.after(s.grace, messageID)
	default:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.confirmIfOnline(messageID, recipient)
		}()
	}
}

func (s *Scheduler) confirmIfOnline(messageID, recipient string) {
	if s.presence == nil {
		s.after(s.grace, messageID)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, confirmTimeout)
	online, err := s.presence.IsOnline(ctx, recipient)
	cancel()
	if err != nil {
		s.log.Warn().Err(err).Str("message_id", messageID).Str("recipient", recipient).
			Msg("presence unavailable, falling back to grace delay")
		s.after(s.grace, messageID)
		return
	}
	if online {
		s.run(messageID)
	}
}

// after must be called while holding mu or from a goroutine already counted in wg.
func (s *Scheduler) after(d time.Duration, messageID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			s.run(messageID)
		case <-s.ctx.Done():
		}
	}()
}

func (s *Scheduler) run(messageID string) {
	ctx, cancel := context.WithTimeout(s.ctx, confirmTimeout)
	defer cancel()

	if err := s.confirm(ctx, messageID); err != nil {
		s.log.Warn().Err(err).Str("message_id", messageID).Msg("delivery confirmation failed")
	}
}

// Close cancels pending timers and waits for in-flight confirmations.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
