package services

import (
	"context"
	"errors"
	"time"

	"marketchat/internal/domain/persona"
	"marketchat/internal/repository"
	marketchat_errors "marketchat/pkg/errors"
	"marketchat/pkg/logger"

	"github.com/google/uuid"
)

var errMembershipNotVerified = errors.New("membership write not visible on read-back")

const (
	DefaultLinkAttempts = 3
	DefaultLinkBackoff  = 500 * time.Millisecond
)

// MembershipLinker adds a room to a persona's index with bounded retries.
// Every attempt is an idempotent append followed by a separate read-back.
type MembershipLinker struct {
	repo     repository.MembershipRepository
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	log      *logger.Logger
}

func NewMembershipLinker(repo repository.MembershipRepository, attempts int, backoff time.Duration, l *logger.Logger) *MembershipLinker {
	if attempts <= 0 {
		attempts = DefaultLinkAttempts
	}
	if backoff < 0 {
		backoff = DefaultLinkBackoff
	}
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &MembershipLinker{repo: repo, attempts: attempts, backoff: backoff, sleep: sleepContext, log: l}
}

// SetSleep replaces the wait between attempts.
func (l *MembershipLinker) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	l.sleep = fn
}

// VerifyMembership reports whether roomID is visible in the persona's index.
func VerifyMembership(ctx context.Context, repo repository.MembershipRepository, ref persona.Ref, roomID uuid.UUID) (bool, error) {
	return repo.Contains(ctx, ref, roomID)
}

// Link appends and verifies, waiting attempt x backoff between attempts.
func (l *MembershipLinker) Link(ctx context.Context, ref persona.Ref, roomID uuid.UUID) error {
	var lastErr error
	for attempt := 1; attempt <= l.attempts; attempt++ {
		lastErr = l.tryOnce(ctx, ref, roomID)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, marketchat_errors.ErrNotFound) || errors.Is(lastErr, marketchat_errors.ErrInvalidInput) {
			return lastErr
		}
		if attempt == l.attempts {
			break
		}
		wait := time.Duration(attempt) * l.backoff
		l.log.Ctx(ctx).Sugar().Warnf("link room %s to %s attempt %d failed, retrying in %s: %v", roomID, ref.ID, attempt, wait, lastErr)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func (l *MembershipLinker) tryOnce(ctx context.Context, ref persona.Ref, roomID uuid.UUID) error {
	if err := l.repo.Append(ctx, ref, roomID); err != nil {
		return err
	}
	ok, err := VerifyMembership(ctx, l.repo, ref, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return errMembershipNotVerified
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
