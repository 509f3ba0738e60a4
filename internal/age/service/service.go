// Package service implements the age verification mediator: it brokers the
// two-step disclosure dialogue with the upstream proof server, binds each
// upstream session to the caller that started it, and records the verified
// outcome exactly once per user.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agegate/internal/age/models"
	"agegate/internal/age/tracer"
	"agegate/internal/age/yivi"
	"agegate/internal/sentinel"
	dErrors "agegate/pkg/domain-errors"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks SessionStore,OutcomeStore,Client

// SessionStore persists the handle to upstream-token mapping.
// Error Contract:
// - CreateSession returns sentinel.ErrDuplicateToken when the upstream token is already live
// - FindByHandle returns sentinel.ErrNotFound when the handle is unknown
// - other failures are wrapped infrastructure errors
type SessionStore interface {
	CreateSession(ctx context.Context, upstreamToken, userID string) (*models.Session, error)
	FindByHandle(ctx context.Context, handle string) (*models.Session, error)
	DeleteByHandle(ctx context.Context, handle string) error
}

// OutcomeStore persists the write-once verification assertion per user.
type OutcomeStore interface {
	AssertVerified(ctx context.Context, userID string) (*models.VerificationOutcome, error)
	IsVerified(ctx context.Context, userID string) (bool, error)
}

// Client talks to the upstream proof server. Implementations return domain
// errors carrying the upstream error taxonomy.
type Client interface {
	Start(ctx context.Context, request models.DisclosureRequest) (*yivi.SessionPackage, error)
	Result(ctx context.Context, upstreamToken string) (*models.DisclosureResult, error)
}

// Metrics is the subset of the metrics collectors the service records.
type Metrics interface {
	IncrementSessionsStarted()
	IncrementStartShortCircuited()
	IncrementVerificationsCompleted()
	IncrementProofsRejected()
	IncrementResultsPending()
	IncrementUpstreamErrors(operation string)
	ObserveStartLatency(durationSeconds float64)
	ObserveResultLatency(durationSeconds float64)
}

// StartResponse is the outcome of a start attempt. When Verified is true the
// caller was already verified and no upstream session was opened.
type StartResponse struct {
	Verified       bool
	Handle         string
	SessionPointer models.SessionPointer
}

// Option configures the Service.
type Option func(*Service)

// Service mediates age verification between callers and the proof server.
type Service struct {
	sessions  SessionStore
	outcomes  OutcomeStore
	client    Client
	attribute string
	metrics   Metrics
	tracer    tracer.Tracer
	logger    *slog.Logger
}

// NewService constructs a Service for the configured age attribute.
func NewService(sessions SessionStore, outcomes OutcomeStore, client Client, attribute string, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		sessions:  sessions,
		outcomes:  outcomes,
		client:    client,
		attribute: attribute,
		tracer:    tracer.NewNoop(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithMetrics sets the metrics collectors for the service.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer for the service.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// Start opens an upstream disclosure session for the caller and returns the
// mediator handle plus the session pointer for the caller's Yivi app. Callers
// that already hold a verification outcome are answered without contacting
// the proof server.
func (s *Service) Start(ctx context.Context, userID string) (*StartResponse, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveStartLatency(time.Since(start).Seconds())
		}
	}()

	ctx, span := s.tracer.Start(ctx, tracer.SpanStart)
	var spanErr error
	defer func() { span.End(spanErr) }()

	verified, err := s.outcomes.IsVerified(ctx, userID)
	if err != nil {
		spanErr = err
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check existing verification")
	}
	if verified {
		if s.metrics != nil {
			s.metrics.IncrementStartShortCircuited()
		}
		span.SetAttributes(tracer.Bool(tracer.AttrVerified, true))
		return &StartResponse{Verified: true}, nil
	}

	request := models.NewDisclosureRequest(s.attribute)

	// One retry on a token collision: request a fresh upstream session and try
	// to persist that one. A second collision means something is badly wrong
	// with upstream token generation.
	var session *models.Session
	for attempt := 0; attempt < 2; attempt++ {
		pkg, err := s.startUpstream(ctx, request)
		if err != nil {
			spanErr = err
			return nil, err
		}

		session, err = s.sessions.CreateSession(ctx, pkg.Token, userID)
		if err != nil {
			if errors.Is(err, sentinel.ErrDuplicateToken) {
				s.logger.WarnContext(ctx, "upstream token collision, retrying", "attempt", attempt+1)
				session = nil
				continue
			}
			// The upstream session leaks here; its own timeout will clean it
			// up. We cannot cancel it because the token is the only handle
			// and we just failed to store it.
			spanErr = err
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist session")
		}

		span.SetAttributes(tracer.String(tracer.AttrHandle, session.Handle))
		s.logger.InfoContext(ctx, "verification session started", "handle", session.Handle)
		return &StartResponse{
			Handle:         session.Handle,
			SessionPointer: pkg.SessionPtr,
		}, nil
	}

	spanErr = dErrors.New(dErrors.CodeInternal, "repeated upstream token collision")
	return nil, spanErr
}

func (s *Service) startUpstream(ctx context.Context, request models.DisclosureRequest) (*yivi.SessionPackage, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanUpstreamStart)
	pkg, err := s.client.Start(ctx, request)
	span.End(err)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementUpstreamErrors("start")
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementSessionsStarted()
	}
	return pkg, nil
}

// Result resolves a handle, polls the upstream session it maps to, and on a
// valid proof of the configured attribute records the verification outcome.
// Repeated successful calls are idempotent.
func (s *Service) Result(ctx context.Context, userID, handle string) error {
	if userID == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}
	if handle == "" {
		return dErrors.New(dErrors.CodeBadRequest, "handle is required")
	}

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveResultLatency(time.Since(start).Seconds())
		}
	}()

	ctx, span := s.tracer.Start(ctx, tracer.SpanResult, tracer.String(tracer.AttrHandle, handle))
	var spanErr error
	defer func() { span.End(spanErr) }()

	session, err := s.sessions.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			spanErr = dErrors.New(dErrors.CodeNotFound, "unknown handle")
			return spanErr
		}
		spanErr = err
		return dErrors.Wrap(err, dErrors.CodeInternal, "resolve handle")
	}

	// A handle only resolves for the user that started the session. This
	// blocks handle hijacking across accounts.
	if session.UserID != userID {
		s.logger.WarnContext(ctx, "handle owner mismatch", "handle", handle)
		spanErr = dErrors.New(dErrors.CodeForbidden, "handle belongs to another user")
		return spanErr
	}

	result, err := s.resultUpstream(ctx, session.UpstreamToken)
	if err != nil {
		spanErr = err
		return err
	}

	span.SetAttributes(
		tracer.String(tracer.AttrStatus, string(result.Status)),
		tracer.String(tracer.AttrProofStatus, string(result.ProofStatus)),
	)

	if result.Status != models.StatusDone {
		if !result.Status.Terminal() {
			if s.metrics != nil {
				s.metrics.IncrementResultsPending()
			}
			spanErr = dErrors.New(dErrors.CodeNotYetComplete, "disclosure not finished, poll again")
			return spanErr
		}
		// CANCELLED or TIMEOUT: permanent failure for this handle.
		if s.metrics != nil {
			s.metrics.IncrementProofsRejected()
		}
		spanErr = dErrors.New(dErrors.CodeProofRejected, "disclosure ended without a proof")
		return spanErr
	}

	if result.ProofStatus != models.ProofStatusValid {
		if s.metrics != nil {
			s.metrics.IncrementProofsRejected()
		}
		spanErr = dErrors.New(dErrors.CodeProofRejected, "proof was not valid")
		return spanErr
	}

	if _, ok := result.Attribute(s.attribute); !ok {
		if s.metrics != nil {
			s.metrics.IncrementProofsRejected()
		}
		spanErr = dErrors.New(dErrors.CodeProofRejected, "expected attribute missing or empty")
		return spanErr
	}

	if _, err := s.outcomes.AssertVerified(ctx, userID); err != nil {
		spanErr = err
		return dErrors.Wrap(err, dErrors.CodeInternal, "record verification")
	}
	if s.metrics != nil {
		s.metrics.IncrementVerificationsCompleted()
	}

	// The outcome is the durable record; the session must not be reusable.
	if err := s.sessions.DeleteByHandle(ctx, handle); err != nil {
		s.logger.WarnContext(ctx, "failed to delete completed session", "handle", handle, "error", err)
	}

	s.logger.InfoContext(ctx, "verification completed", "handle", handle)
	return nil
}

func (s *Service) resultUpstream(ctx context.Context, upstreamToken string) (*models.DisclosureResult, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanUpstreamResult)
	result, err := s.client.Result(ctx, upstreamToken)
	span.End(err)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementUpstreamErrors("result")
		}
		return nil, err
	}
	return result, nil
}

// Verified reports whether the user already holds a verification outcome.
func (s *Service) Verified(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}
	verified, err := s.outcomes.IsVerified(ctx, userID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "check verification")
	}
	return verified, nil
}
