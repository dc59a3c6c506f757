// Package service holds the seating use cases: importing seating
// tables, student lookup, seat assignment, export and admin login.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/exam-seating/internal/model"
	"github.com/iliyamo/exam-seating/internal/queue"
	"github.com/iliyamo/exam-seating/internal/repository"
)

var (
	ErrNotFound           = errors.New("seat not found")
	ErrEnrolmentRequired  = errors.New("enrolment number is required")
	ErrMalformedInput     = errors.New("malformed input")
	ErrEmptyExtraction    = errors.New("no rows extracted")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrConflict     = repository.ErrConflict
	ErrSeatNotFound = repository.ErrSeatNotFound
	ErrRoomNotFound = repository.ErrRoomNotFound
)

// RoomStore is the room side of the storage contract.
type RoomStore interface {
	FindByCode(ctx context.Context, code string) (*model.Room, error)
	GetByID(ctx context.Context, id uint64) (*model.Room, error)
	List(ctx context.Context) ([]model.Room, error)
}

// SeatStore is the seat side of the storage contract.
type SeatStore interface {
	Find(ctx context.Context, roomID uint64, seatNo string) (*model.Seat, error)
	FindByEnrolment(ctx context.Context, enrolmentNo string) (*model.Seat, error)
	ListByRoom(ctx context.Context, roomID uint64) ([]model.Seat, error)
	ApplyImport(ctx context.Context, records []model.SeatRecord) (repository.ImportStats, error)
	Assign(ctx context.Context, roomID uint64, seatNo string, enrolmentNo, studentName *string) (*model.Seat, error)
}

// EventPublisher delivers audit events.  Implementations are best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuditEvent) error
}

// CacheInvalidator drops cached lookup responses after the seating plan
// changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// AdminDirectory resolves named admin accounts.
type AdminDirectory interface {
	GetAdminByEmail(ctx context.Context, email string) (*model.User, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.AuditEvent) error { return nil }

type nopCache struct{}

func (nopCache) Invalidate(context.Context) error { return nil }

// notifier runs the side effects that follow every successful change.
// Failures are logged and never reach the caller.
type notifier struct {
	cache CacheInvalidator
	pub   EventPublisher
	log   *zap.Logger
}

func newNotifier(cache CacheInvalidator, pub EventPublisher, log *zap.Logger) notifier {
	if cache == nil {
		cache = nopCache{}
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return notifier{cache: cache, pub: pub, log: log}
}

func (n notifier) changed(ctx context.Context, ev queue.AuditEvent) {
	if err := n.cache.Invalidate(ctx); err != nil {
		n.log.Warn("lookup cache invalidation failed", zap.Error(err))
	}
	if err := n.pub.Publish(ctx, ev.Stamp()); err != nil {
		n.log.Warn("audit event not published", zap.String("type", ev.Type), zap.Error(err))
	}
}
