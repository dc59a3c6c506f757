package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/iliyamo/exam-seating/internal/model"
)

// MemoryRoomRepo and MemorySeatRepo mirror RoomRepo and SeatRepo over a
// shared in-process store.  They back STORE_DRIVER=memory and tests.
type MemoryRoomRepo struct{ m *memoryDB }

type MemorySeatRepo struct{ m *memoryDB }

type seatKey struct {
	roomID uint64
	seatNo string
}

type memoryDB struct {
	mu         sync.RWMutex
	rooms      map[uint64]model.Room
	roomByCode map[string]uint64
	seats      map[uint64]model.Seat
	seatByKey  map[seatKey]uint64
	nextRoomID uint64
	nextSeatID uint64
}

// NewMemoryStore returns room and seat repositories sharing one store.
func NewMemoryStore() (*MemoryRoomRepo, *MemorySeatRepo) {
	m := &memoryDB{
		rooms:      map[uint64]model.Room{},
		roomByCode: map[string]uint64{},
		seats:      map[uint64]model.Seat{},
		seatByKey:  map[seatKey]uint64{},
	}
	return &MemoryRoomRepo{m: m}, &MemorySeatRepo{m: m}
}

func (r *MemoryRoomRepo) FindByCode(_ context.Context, code string) (*model.Room, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	id, ok := r.m.roomByCode[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	room := r.m.rooms[id]
	return &room, nil
}

func (r *MemoryRoomRepo) GetByID(_ context.Context, id uint64) (*model.Room, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	room, ok := r.m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

func (r *MemoryRoomRepo) Create(_ context.Context, code string) (*model.Room, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.roomByCode[code]; ok {
		return nil, ErrDuplicateKey
	}
	room := r.m.createRoomLocked(code)
	return &room, nil
}

func (r *MemoryRoomRepo) GetOrCreate(_ context.Context, code string) (*model.Room, bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if id, ok := r.m.roomByCode[code]; ok {
		room := r.m.rooms[id]
		return &room, false, nil
	}
	room := r.m.createRoomLocked(code)
	return &room, true, nil
}

func (r *MemoryRoomRepo) List(_ context.Context) ([]model.Room, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]model.Room, 0, len(r.m.rooms))
	for _, room := range r.m.rooms {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *MemorySeatRepo) Find(_ context.Context, roomID uint64, seatNo string) (*model.Seat, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	id, ok := r.m.seatByKey[seatKey{roomID, seatNo}]
	if !ok {
		return nil, ErrSeatNotFound
	}
	seat := r.m.seats[id]
	return &seat, nil
}

func (r *MemorySeatRepo) Upsert(_ context.Context, roomID uint64, seatNo string, enrolmentNo, studentName *string) (*model.Seat, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}
	seat, _ := r.m.upsertSeatLocked(roomID, seatNo, enrolmentNo, studentName)
	return &seat, nil
}

func (r *MemorySeatRepo) FindByEnrolment(_ context.Context, enrolmentNo string) (*model.Seat, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var found *model.Seat
	for _, seat := range r.m.seats {
		if seat.EnrolmentNo == nil || *seat.EnrolmentNo != enrolmentNo {
			continue
		}
		if found == nil || seat.ID < found.ID {
			s := seat
			found = &s
		}
	}
	if found == nil {
		return nil, ErrSeatNotFound
	}
	return found, nil
}

func (r *MemorySeatRepo) ListByRoom(_ context.Context, roomID uint64) ([]model.Seat, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []model.Seat
	for _, seat := range r.m.seats {
		if seat.RoomID == roomID {
			out = append(out, seat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNo < out[j].SeatNo })
	return out, nil
}

func (r *MemorySeatRepo) ApplyImport(_ context.Context, records []model.SeatRecord) (ImportStats, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var stats ImportStats
	for _, rec := range records {
		roomID, ok := r.m.roomByCode[rec.RoomCode]
		if !ok {
			roomID = r.m.createRoomLocked(rec.RoomCode).ID
			stats.RoomsCreated++
		}
		_, n := r.m.upsertSeatLocked(roomID, rec.SeatNo, rec.EnrolmentNo, rec.StudentName)
		switch n {
		case 1:
			stats.SeatsCreated++
		case 2:
			stats.SeatsUpdated++
		default:
			stats.SeatsUnchanged++
		}
	}
	return stats, nil
}

func (r *MemorySeatRepo) Assign(_ context.Context, roomID uint64, seatNo string, enrolmentNo, studentName *string) (*model.Seat, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	id, ok := r.m.seatByKey[seatKey{roomID, seatNo}]
	if !ok {
		return nil, ErrSeatNotFound
	}
	if enrolmentNo == nil {
		studentName = nil
	} else {
		for _, other := range r.m.seats {
			if other.ID != id && other.EnrolmentNo != nil && *other.EnrolmentNo == *enrolmentNo {
				return nil, ErrConflict
			}
		}
	}
	seat := r.m.seats[id]
	seat.EnrolmentNo = copyPtr(enrolmentNo)
	seat.StudentName = copyPtr(studentName)
	r.m.seats[id] = seat
	return &seat, nil
}

func (m *memoryDB) createRoomLocked(code string) model.Room {
	m.nextRoomID++
	room := model.Room{ID: m.nextRoomID, Code: code}
	m.rooms[room.ID] = room
	m.roomByCode[code] = room.ID
	return room
}

// upsertSeatLocked reports affected rows the way MySQL does for
// INSERT ... ON DUPLICATE KEY UPDATE so both stores count alike.
func (m *memoryDB) upsertSeatLocked(roomID uint64, seatNo string, enrolmentNo, studentName *string) (model.Seat, int) {
	key := seatKey{roomID, seatNo}
	if id, ok := m.seatByKey[key]; ok {
		seat := m.seats[id]
		if equalPtr(seat.EnrolmentNo, enrolmentNo) && equalPtr(seat.StudentName, studentName) {
			return seat, 0
		}
		seat.EnrolmentNo = copyPtr(enrolmentNo)
		seat.StudentName = copyPtr(studentName)
		m.seats[id] = seat
		return seat, 2
	}
	m.nextSeatID++
	seat := model.Seat{
		ID:          m.nextSeatID,
		RoomID:      roomID,
		SeatNo:      seatNo,
		EnrolmentNo: copyPtr(enrolmentNo),
		StudentName: copyPtr(studentName),
	}
	m.seats[seat.ID] = seat
	m.seatByKey[key] = seat.ID
	return seat, 1
}

func copyPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
