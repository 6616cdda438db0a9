package communication

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nphies/bridge/internal/domain/authorization"
	"github.com/nphies/bridge/internal/platform/fhir"
	"github.com/nphies/bridge/internal/platform/nphies"
)

// Scheduler states.
type State string

const (
	StateIdle            State = "idle"
	StatePolling         State = "polling"
	StateQueued          State = "queued"
	StateAckWaitingFinal State = "ack-waiting-final"
	StateDone            State = "done"
	StateError           State = "error"
)

// ErrPollInFlight is returned when a poll is requested for a subject whose
// previous cycle has not finished. The caller retries once it completes.
var ErrPollInFlight = errors.New("poll already in progress for this request")

// PollRunner executes one poll cycle for a subject. Implemented by Service.
type PollRunner interface {
	RunPollCycle(ctx context.Context, authorizationID uuid.UUID) (*PollOutcome, error)
}

// PollResult is what one Poll call reports back to the caller.
type PollResult struct {
	State           State                        `json:"state"`
	ResponseCode    string                       `json:"response_code,omitempty"`
	FinalStatus     string                       `json:"final_status,omitempty"`
	RepollScheduled bool                         `json:"repoll_scheduled"`
	Outcome         *PollOutcome                 `json:"outcome,omitempty"`
	Issues          []fhir.OperationOutcomeIssue `json:"issues,omitempty"`
}

// Scheduler drives the per-subject poll state machine:
//
//	Idle -> Polling -> (Queued | AckWaitingFinal | Done | Error) -> Idle
//
// At most one cycle is in flight per subject, and at most one deferred
// re-poll timer is outstanding per subject. Cancel clears the timer without
// side effects.
type Scheduler struct {
	mu         sync.Mutex
	runner     PollRunner
	retryDelay time.Duration
	logger     zerolog.Logger
	subjects   map[uuid.UUID]*subjectState
}

type subjectState struct {
	state State
	timer *time.Timer
}

func NewScheduler(runner PollRunner, retryDelay time.Duration, logger zerolog.Logger) *Scheduler {
	if retryDelay <= 0 {
		retryDelay = 3 * time.Second
	}
	return &Scheduler{
		runner:     runner,
		retryDelay: retryDelay,
		logger:     logger,
		subjects:   make(map[uuid.UUID]*subjectState),
	}
}

func (s *Scheduler) subject(id uuid.UUID) *subjectState {
	st, ok := s.subjects[id]
	if !ok {
		st = &subjectState{state: StateIdle}
		s.subjects[id] = st
	}
	return st
}

// StateOf reports the current state for a subject.
func (s *Scheduler) StateOf(id uuid.UUID) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject(id).state
}

// Poll runs one cycle for the subject. A concurrent cycle is rejected with
// ErrPollInFlight; any pending deferred re-poll is cleared first so a manual
// poll never races its own timer.
func (s *Scheduler) Poll(ctx context.Context, id uuid.UUID) (*PollResult, error) {
	s.mu.Lock()
	st := s.subject(id)
	if st.state == StatePolling {
		s.mu.Unlock()
		return nil, ErrPollInFlight
	}
	s.clearTimerLocked(st)
	st.state = StatePolling
	s.mu.Unlock()

	outcome, err := s.runner.RunPollCycle(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		var ee *nphies.ExchangeError
		if errors.As(err, &ee) {
			st.state = StateError
			result := &PollResult{State: StateError, ResponseCode: ee.Code, Issues: ee.Issues, Outcome: outcome}
			return result, err
		}
		st.state = StateIdle
		return nil, err
	}

	switch {
	case outcome.ResponseCode == fhir.ResponseCodeQueued:
		// Nothing ready yet; the subject is immediately pollable again.
		st.state = StateIdle
		return &PollResult{State: StateQueued, ResponseCode: outcome.ResponseCode, Outcome: outcome}, nil

	case outcome.HasFinalResponse():
		cr := outcome.ClaimResponses[0]
		st.state = StateDone
		return &PollResult{
			State:        StateDone,
			ResponseCode: outcome.ResponseCode,
			FinalStatus:  authorization.ClassifyFinalStatus(cr.Status, cr.Outcome, cr.Disposition),
			Outcome:      outcome,
		}, nil

	case outcome.HasUnsolicitedAck():
		// An unsolicited communication was acknowledged but not yet
		// adjudicated: schedule exactly one deferred re-poll to fetch
		// the final ClaimResponse. A solicited reply's ack is terminal
		// and falls through to Idle.
		st.state = StateAckWaitingFinal
		st.timer = time.AfterFunc(s.retryDelay, func() { s.autoRepoll(id) })
		return &PollResult{
			State:           StateAckWaitingFinal,
			ResponseCode:    outcome.ResponseCode,
			RepollScheduled: true,
			Outcome:         outcome,
		}, nil

	default:
		st.state = StateIdle
		return &PollResult{State: StateIdle, ResponseCode: outcome.ResponseCode, Outcome: outcome}, nil
	}
}

func (s *Scheduler) autoRepoll(id uuid.UUID) {
	s.mu.Lock()
	st := s.subject(id)
	st.timer = nil
	if st.state != StateAckWaitingFinal {
		s.mu.Unlock()
		return
	}
	st.state = StateIdle
	s.mu.Unlock()

	// The originating HTTP request is long gone; run with a background
	// context so the deferred cycle is not tied to it.
	if _, err := s.Poll(context.Background(), id); err != nil && !errors.Is(err, ErrPollInFlight) {
		s.logger.Error().Err(err).Str("authorization_id", id.String()).Msg("deferred re-poll failed")
	}
}

// Cancel clears any pending deferred re-poll and returns the subject to
// Idle. In-flight HTTP calls are not aborted.
func (s *Scheduler) Cancel(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.subject(id)
	s.clearTimerLocked(st)
	if st.state != StatePolling {
		st.state = StateIdle
	}
}

func (s *Scheduler) clearTimerLocked(st *subjectState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
}
