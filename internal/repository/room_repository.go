package repository // repository holds data access logic for domain entities

import (
	"context"      // context is used to manage deadlines and cancellation
	"database/sql" // sql provides DB primitives
	"errors"       // errors is used to compare sentinel values

	"github.com/iliyamo/exam-seating/internal/model"
)

// RoomRepo provides methods to create and retrieve rooms.
type RoomRepo struct {
	db *sql.DB // db is the underlying database connection
}

// NewRoomRepo constructs a RoomRepo with the given DB handle.
func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `id, room_code, capacity, layout_meta`

func scanRoom(s scanner) (*model.Room, error) {
	var (
		r    model.Room
		meta sql.NullString
	)
	if err := s.Scan(&r.ID, &r.Code, &r.Capacity, &meta); err != nil {
		return nil, err
	}
	r.LayoutMeta = stringPtr(meta)
	return &r, nil
}

// FindByCode retrieves a room by its exact code.  It returns
// ErrRoomNotFound when no row matches.
func (r *RoomRepo) FindByCode(ctx context.Context, code string) (*model.Room, error) {
	const q = `SELECT ` + roomColumns + ` FROM rooms WHERE room_code = ?`
	room, err := scanRoom(r.db.QueryRowContext(ctx, q, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// GetByID retrieves a room by primary key.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (*model.Room, error) {
	const q = `SELECT ` + roomColumns + ` FROM rooms WHERE id = ?`
	room, err := scanRoom(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// Create inserts a new room with default capacity.  A room whose code
// already exists yields ErrDuplicateKey.
func (r *RoomRepo) Create(ctx context.Context, code string) (*model.Room, error) {
	const q = `INSERT INTO rooms (room_code) VALUES (?)`
	res, err := r.db.ExecContext(ctx, q, code)
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.Room{ID: uint64(id), Code: code}, nil
}

// GetOrCreate returns the room with the given code, creating it when
// missing.  The insert and the lookup are a single statement so two
// concurrent callers cannot both create the room.
func (r *RoomRepo) GetOrCreate(ctx context.Context, code string) (*model.Room, bool, error) {
	id, created, err := getOrCreateRoom(ctx, r.db, code)
	if err != nil {
		return nil, false, err
	}
	room, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return room, created, nil
}

// List returns all rooms ordered by room_code ascending.
func (r *RoomRepo) List(ctx context.Context) ([]model.Room, error) {
	const q = `SELECT ` + roomColumns + ` FROM rooms ORDER BY room_code`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// getOrCreateRoom relies on LAST_INSERT_ID(id) so that the existing
// row's id is reported when the unique key on room_code is hit.  MySQL
// reports 1 affected row for a fresh insert and 0 for an untouched
// duplicate.
func getOrCreateRoom(ctx context.Context, q querier, code string) (uint64, bool, error) {
	const stmt = `INSERT INTO rooms (room_code) VALUES (?)
	              ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id)`
	res, err := q.ExecContext(ctx, stmt, code)
	if err != nil {
		return 0, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	return uint64(id), n == 1, nil
}
