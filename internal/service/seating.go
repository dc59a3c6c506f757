package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iliyamo/exam-seating/internal/model"
	"github.com/iliyamo/exam-seating/internal/queue"
)

// AssignOutcome tells whether an assignment set or cleared a seat.
type AssignOutcome string

const (
	Updated    AssignOutcome = "updated"
	Unassigned AssignOutcome = "unassigned"
)

// AssignRequest changes the occupant of one seat.  An empty EnrolmentNo
// unassigns the seat.
type AssignRequest struct {
	RoomID      uint64
	SeatNo      string
	EnrolmentNo string
	StudentName string
	Actor       string
}

// SeatingService answers lookups and applies admin edits.
type SeatingService struct {
	rooms  RoomStore
	seats  SeatStore
	notify notifier
	log    *zap.Logger
}

func NewSeatingService(rooms RoomStore, seats SeatStore, cache CacheInvalidator, pub EventPublisher, log *zap.Logger) *SeatingService {
	n := newNotifier(cache, pub, log)
	return &SeatingService{rooms: rooms, seats: seats, notify: n, log: n.log}
}

// Lookup finds the seat held by enrolmentNo.  Matching is exact after
// trimming and case-sensitive.  A seat whose room row is missing is
// reported in room "Unknown".
func (s *SeatingService) Lookup(ctx context.Context, enrolmentNo string) (*model.Placement, error) {
	enrol := strings.TrimSpace(enrolmentNo)
	if enrol == "" {
		return nil, ErrEnrolmentRequired
	}
	seat, err := s.seats.FindByEnrolment(ctx, enrol)
	if err != nil {
		if errors.Is(err, ErrSeatNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	room, err := s.rooms.GetByID(ctx, seat.RoomID)
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) {
			return nil, err
		}
		room = &model.Room{ID: seat.RoomID, Code: model.UnknownRoomCode}
	}
	return &model.Placement{Room: *room, Seat: *seat}, nil
}

// ListRooms returns every room ordered by code.
func (s *SeatingService) ListRooms(ctx context.Context) ([]model.Room, error) {
	return s.rooms.List(ctx)
}

// ListSeats returns a room and its seats ordered by seat number.
func (s *SeatingService) ListSeats(ctx context.Context, roomID uint64) (*model.Room, []model.Seat, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	seats, err := s.seats.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	return room, seats, nil
}

// Assign gives a seat to an enrolment or, with an empty enrolment,
// clears both enrolment and name.  It fails with ErrConflict when a
// different seat already holds the enrolment and with ErrSeatNotFound
// when the seat does not exist.
func (s *SeatingService) Assign(ctx context.Context, req AssignRequest) (AssignOutcome, *model.Seat, error) {
	room, err := s.rooms.GetByID(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return "", nil, ErrSeatNotFound
		}
		return "", nil, err
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.EnrolmentNo)) > model.MaxKeyLen {
		return "", nil, fmt.Errorf("%w: enrolment number longer than %d characters", ErrMalformedInput, model.MaxKeyLen)
	}
	enrol := model.Optional(strings.TrimSpace(req.EnrolmentNo))
	name := model.Optional(strings.TrimSpace(req.StudentName))

	seat, err := s.seats.Assign(ctx, req.RoomID, req.SeatNo, enrol, name)
	if err != nil {
		return "", nil, err
	}

	outcome, evType := Updated, queue.EventAssign
	if enrol == nil {
		outcome, evType = Unassigned, queue.EventUnassign
	}
	s.log.Info("seat "+string(outcome),
		zap.String("room", room.Code),
		zap.String("seat_no", seat.SeatNo),
		zap.String("actor", req.Actor),
	)
	s.notify.changed(ctx, queue.AuditEvent{
		Type:        evType,
		RoomCode:    room.Code,
		SeatNo:      seat.SeatNo,
		EnrolmentNo: model.Value(enrol),
		Actor:       req.Actor,
	})
	return outcome, seat, nil
}

// ExportRoom returns one tabular row per seat of the room.  Absent
// enrolment and name are rendered as empty strings.
func (s *SeatingService) ExportRoom(ctx context.Context, roomID uint64) (*model.Room, []model.SeatRow, error) {
	room, seats, err := s.ListSeats(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	rows := make([]model.SeatRow, 0, len(seats))
	for _, seat := range seats {
		rows = append(rows, model.SeatRow{
			Room:        room.Code,
			SeatNo:      seat.SeatNo,
			EnrolmentNo: model.Value(seat.EnrolmentNo),
			StudentName: model.Value(seat.StudentName),
		})
	}
	return room, rows, nil
}

// ExportRoomByCode is ExportRoom for a room code.
func (s *SeatingService) ExportRoomByCode(ctx context.Context, code string) (*model.Room, []model.SeatRow, error) {
	room, err := s.rooms.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, nil, err
	}
	return s.ExportRoom(ctx, room.ID)
}
