package client

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateFailure    State = "failure"
)

// ErrSubmissionPending is returned when Submit is called while a previous
// call on the same form is still in flight.
var ErrSubmissionPending = errors.New("submission already in progress")

// Submission tracks one filled-in form: idle, submitting, then success or
// failure. It never retries by itself. Every call reuses the same
// idempotency key, so a resubmit after an ambiguous failure cannot create a
// second lead; Reset starts a new form.
type Submission struct {
	client *Client

	mu     sync.Mutex
	state  State
	key    string
	result *Result
	err    error
}

func (c *Client) NewSubmission() *Submission {
	return &Submission{client: c, state: StateIdle, key: uuid.NewString()}
}

func (s *Submission) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending reports whether the submit control should be disabled.
func (s *Submission) Pending() bool {
	return s.State() == StateSubmitting
}

func (s *Submission) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Result returns the outcome of the last completed call.
func (s *Submission) Result() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// Submit sends lead. After a success it returns the stored result without
// calling the server again.
func (s *Submission) Submit(ctx context.Context, lead domain.Lead) (*Result, error) {
	s.mu.Lock()
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return nil, ErrSubmissionPending
	case StateSuccess:
		res := s.result
		s.mu.Unlock()
		return res, nil
	}
	s.state = StateSubmitting
	key := s.key
	s.mu.Unlock()

	res, err := s.client.SubmitLead(ctx, lead, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.result, s.err = res, err
	if err != nil {
		s.state = StateFailure
		return nil, err
	}
	s.state = StateSuccess
	return res, nil
}

// Reset returns to idle with a fresh idempotency key.
func (s *Submission) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return
	}
	s.state = StateIdle
	s.key = uuid.NewString()
	s.result, s.err = nil, nil
}
