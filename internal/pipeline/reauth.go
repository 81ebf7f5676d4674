package pipeline

import (
	"context"
	"fmt"

	"studentevals-backend/internal/assert"
	"studentevals-backend/internal/components/telemetry"
	"studentevals-backend/internal/evals"
)

const report_session_refresh = "session.refresh"

type Authenticator interface {
	Refresh(ctx context.Context) error
}

type CookieReloader interface {
	ReloadCookies() error
}

// Session refreshes the upstream cookies and makes the client pick them up.
// Refresh must not run while a batch is in flight.
type Session struct {
	auth   Authenticator
	client CookieReloader
	tel    telemetry.API
}

func NewSession(auth Authenticator, client CookieReloader, tel telemetry.API) Session {
	assert.NotNil(auth)
	assert.NotNil(client)
	assert.NotNil(tel)

	return Session{
		auth:   auth,
		client: client,
		tel:    telemetry.NewScopedAPI("pipeline", tel),
	}
}

func (s Session) Refresh(ctx context.Context) error {
	err := s.auth.Refresh(ctx)
	if err != nil {
		s.tel.ReportBroken(report_session_refresh, err)
		return fmt.Errorf("refresh cookies: %w", err)
	}
	err = s.client.ReloadCookies()
	if err != nil {
		s.tel.ReportBroken(report_session_refresh, err)
		return fmt.Errorf("reload cookies: %w", err)
	}
	return nil
}

type PendingFunc func(ctx context.Context) ([]evals.SectionId, error)

// IngestPending ingests the pending sids. When a batch fails because the
// session expired and session is not nil, the session is refreshed and the
// sids that are still pending are ingested again, at most maxReauth times.
// The failures in the result are those of the last batch.
func IngestPending(
	ctx context.Context,
	ingestor Ingestor,
	pending PendingFunc,
	session *Session,
	maxReauth int,
) (IngestResult, error) {
	var total IngestResult
	for attempt := 0; ; attempt++ {
		sids, err := pending(ctx)
		if err != nil {
			return total, err
		}
		if len(sids) == 0 {
			total.add(IngestResult{})
			return total, nil
		}

		result, err := ingestor.Ingest(ctx, sids)
		total.add(result)
		if err != nil {
			return total, err
		}
		if !result.NeedsReauth || session == nil || attempt >= maxReauth {
			return total, nil
		}

		ingestor.tel.ReportWarning(report_session_refresh, fmt.Errorf("session expired, reauthenticating"), attempt+1)
		err = session.Refresh(ctx)
		if err != nil {
			return total, err
		}
	}
}
