package repository // repository defines data access for seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"errors"       // errors for sentinel comparison
	"fmt"

	"github.com/iliyamo/exam-seating/internal/model"
)

// SeatRepo provides methods to work with seats in the database.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

const seatColumns = `id, room_id, seat_no, enrolment_no, student_name`

func scanSeat(s scanner) (*model.Seat, error) {
	var (
		seat        model.Seat
		enrol, name sql.NullString
	)
	if err := s.Scan(&seat.ID, &seat.RoomID, &seat.SeatNo, &enrol, &name); err != nil {
		return nil, err
	}
	seat.EnrolmentNo = stringPtr(enrol)
	seat.StudentName = stringPtr(name)
	return &seat, nil
}

// Find retrieves the seat identified by (roomID, seatNo).
func (r *SeatRepo) Find(ctx context.Context, roomID uint64, seatNo string) (*model.Seat, error) {
	const q = `SELECT ` + seatColumns + ` FROM seats WHERE room_id = ? AND seat_no = ?`
	seat, err := scanSeat(r.db.QueryRowContext(ctx, q, roomID, seatNo))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeatNotFound
		}
		return nil, err
	}
	return seat, nil
}

// Upsert creates the seat or overwrites its enrolment and name.
func (r *SeatRepo) Upsert(ctx context.Context, roomID uint64, seatNo string, enrolmentNo, studentName *string) (*model.Seat, error) {
	if _, err := upsertSeat(ctx, r.db, roomID, seatNo, enrolmentNo, studentName); err != nil {
		return nil, err
	}
	return r.Find(ctx, roomID, seatNo)
}

// FindByEnrolment returns the seat currently holding the enrolment
// number.  Matching is exact; the column uses a binary collation.
func (r *SeatRepo) FindByEnrolment(ctx context.Context, enrolmentNo string) (*model.Seat, error) {
	const q = `SELECT ` + seatColumns + ` FROM seats WHERE enrolment_no = ? ORDER BY id LIMIT 1`
	seat, err := scanSeat(r.db.QueryRowContext(ctx, q, enrolmentNo))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeatNotFound
		}
		return nil, err
	}
	return seat, nil
}

// ListByRoom retrieves all seats of a room ordered by seat_no.
func (r *SeatRepo) ListByRoom(ctx context.Context, roomID uint64) ([]model.Seat, error) {
	const q = `SELECT ` + seatColumns + ` FROM seats WHERE room_id = ? ORDER BY seat_no`
	rows, err := r.db.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Seat
	for rows.Next() {
		seat, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *seat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyImport upserts the records in order inside one transaction.
// Rooms are created on first sight; a later record for the same seat
// key overwrites an earlier one.  Nothing is written if any statement
// fails.
func (r *SeatRepo) ApplyImport(ctx context.Context, records []model.SeatRecord) (ImportStats, error) {
	var stats ImportStats
	if len(records) == 0 {
		return stats, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer func() { _ = tx.Rollback() }()

	roomIDs := make(map[string]uint64)
	for i, rec := range records {
		roomID, ok := roomIDs[rec.RoomCode]
		if !ok {
			id, created, err := getOrCreateRoom(ctx, tx, rec.RoomCode)
			if err != nil {
				return ImportStats{}, fmt.Errorf("row %d: room %q: %w", i+1, rec.RoomCode, err)
			}
			if created {
				stats.RoomsCreated++
			}
			roomIDs[rec.RoomCode] = id
			roomID = id
		}
		n, err := upsertSeat(ctx, tx, roomID, rec.SeatNo, rec.EnrolmentNo, rec.StudentName)
		if err != nil {
			return ImportStats{}, fmt.Errorf("row %d: seat %q: %w", i+1, rec.SeatNo, err)
		}
		switch n {
		case 1:
			stats.SeatsCreated++
		case 2:
			stats.SeatsUpdated++
		default:
			stats.SeatsUnchanged++
		}
	}
	if err := tx.Commit(); err != nil {
		return ImportStats{}, err
	}
	return stats, nil
}

// Assign sets or clears the enrolment of the seat (roomID, seatNo).
// A nil enrolmentNo unassigns the seat and also clears the name.  The
// seat row and any row holding the same enrolment are locked for the
// duration of the check so two admins cannot hand out one enrolment
// twice.
func (r *SeatRepo) Assign(ctx context.Context, roomID uint64, seatNo string, enrolmentNo, studentName *string) (*model.Seat, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	const qSeat = `SELECT ` + seatColumns + ` FROM seats WHERE room_id = ? AND seat_no = ? FOR UPDATE`
	seat, err := scanSeat(tx.QueryRowContext(ctx, qSeat, roomID, seatNo))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeatNotFound
		}
		return nil, err
	}

	if enrolmentNo == nil {
		studentName = nil
	} else {
		const qHolder = `SELECT id FROM seats WHERE enrolment_no = ? AND id <> ? LIMIT 1 FOR UPDATE`
		var holder uint64
		err := tx.QueryRowContext(ctx, qHolder, *enrolmentNo, seat.ID).Scan(&holder)
		switch {
		case err == nil:
			return nil, ErrConflict
		case !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}
	}

	const qUpdate = `UPDATE seats SET enrolment_no = ?, student_name = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, qUpdate, nullString(enrolmentNo), nullString(studentName), seat.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	seat.EnrolmentNo = enrolmentNo
	seat.StudentName = studentName
	return seat, nil
}

// upsertSeat returns MySQL's affected-row count: 1 for an insert, 2 for
// an update that changed the row, 0 when the row already matched.
func upsertSeat(ctx context.Context, q querier, roomID uint64, seatNo string, enrolmentNo, studentName *string) (int64, error) {
	const stmt = `INSERT INTO seats (room_id, seat_no, enrolment_no, student_name)
	              VALUES (?, ?, ?, ?)
	              ON DUPLICATE KEY UPDATE enrolment_no = VALUES(enrolment_no), student_name = VALUES(student_name)`
	res, err := q.ExecContext(ctx, stmt, roomID, seatNo, nullString(enrolmentNo), nullString(studentName))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
