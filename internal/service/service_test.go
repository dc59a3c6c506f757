package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/exam-seating/internal/model"
	"github.com/iliyamo/exam-seating/internal/queue"
	"github.com/iliyamo/exam-seating/internal/repository"
)

// ── fakes ──

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AuditEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type countingCache struct{ n int }

func (c *countingCache) Invalidate(context.Context) error {
	c.n++
	return nil
}

type fixture struct {
	rooms    *repository.MemoryRoomRepo
	seats    *repository.MemorySeatRepo
	importer *Importer
	seating  *SeatingService
	pub      *recordingPublisher
	cache    *countingCache
}

func newFixture() *fixture {
	rooms, seats := repository.NewMemoryStore()
	pub := &recordingPublisher{}
	cache := &countingCache{}
	return &fixture{
		rooms:    rooms,
		seats:    seats,
		importer: NewImporter(rooms, seats, cache, pub, zap.NewNop()),
		seating:  NewSeatingService(rooms, seats, cache, pub, zap.NewNop()),
		pub:      pub,
		cache:    cache,
	}
}

func row(room, seat, enrol, name string) model.SeatRow {
	return model.SeatRow{Room: room, SeatNo: seat, EnrolmentNo: enrol, StudentName: name}
}

func (f *fixture) snapshot(t *testing.T) map[string]model.SeatRow {
	t.Helper()
	ctx := context.Background()
	rooms, err := f.seating.ListRooms(ctx)
	require.NoError(t, err)
	out := map[string]model.SeatRow{}
	for _, r := range rooms {
		_, rows, err := f.seating.ExportRoom(ctx, r.ID)
		require.NoError(t, err)
		for _, sr := range rows {
			out[sr.Room+"/"+sr.SeatNo] = sr
		}
	}
	return out
}

// ── importer ──

func TestNormalizeRow(t *testing.T) {
	rec := NormalizeRow(row("  ", " 7 ", "  ", " Ann "))
	assert.Equal(t, model.UnknownRoomCode, rec.RoomCode)
	assert.Equal(t, "7", rec.SeatNo)
	assert.Nil(t, rec.EnrolmentNo)
	assert.Equal(t, "Ann", model.Value(rec.StudentName))

	rec = NormalizeRow(row("R1", "", "E1", ""))
	assert.Equal(t, "", rec.SeatNo)
	assert.Nil(t, rec.StudentName)
}

func TestImportThenLookup(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.importer.Import(ctx, []model.SeatRow{row("R1", "1", "E100", "Alice")}, ImportOptions{Source: "csv"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SeatsCreated)
	assert.Equal(t, 1, res.RoomsCreated)
	assert.NotEmpty(t, res.BatchID)

	p, err := f.seating.Lookup(ctx, " E100 ")
	require.NoError(t, err)
	assert.Equal(t, "R1", p.Room.Code)
	assert.Equal(t, "1", p.Seat.SeatNo)
	assert.Equal(t, "Alice", model.Value(p.Seat.StudentName))

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, queue.EventImport, f.pub.events[0].Type)
	assert.Equal(t, res.BatchID, f.pub.events[0].BatchID)
	assert.NotEmpty(t, f.pub.events[0].At)
	assert.Equal(t, 1, f.cache.n)
}

func TestImport_LastRowWins(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.importer.Import(ctx, []model.SeatRow{row("R1", "1", "E100", "Alice")}, ImportOptions{})
	require.NoError(t, err)
	res, err := f.importer.Import(ctx, []model.SeatRow{row("R1", "1", "E100", "Alicia")}, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SeatsUpdated)

	p, err := f.seating.Lookup(ctx, "E100")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", model.Value(p.Seat.StudentName))
}

func TestImport_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rows := []model.SeatRow{
		row("R1", "1", "E100", "Alice"),
		row("R1", "2", "", ""),
		row("", "3", "E300", "Nobody"),
		row("R2", "1", "E200", "Bob"),
	}

	_, err := f.importer.Import(ctx, rows, ImportOptions{})
	require.NoError(t, err)
	once := f.snapshot(t)

	res, err := f.importer.Import(ctx, rows, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.SeatsCreated)
	assert.Equal(t, 0, res.SeatsUpdated)
	assert.Equal(t, once, f.snapshot(t))
	assert.Contains(t, once, "Unknown/3")
}

func TestImport_Empty(t *testing.T) {
	f := newFixture()
	res, err := f.importer.Import(context.Background(), nil, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rows)
	assert.Empty(t, f.snapshot(t))
	assert.Empty(t, f.pub.events)
	assert.Zero(t, f.cache.n)
}

func TestImport_LenientAllowsDuplicateEnrolment(t *testing.T) {
	f := newFixture()
	res, err := f.importer.Import(context.Background(), []model.SeatRow{
		row("R1", "1", "E100", ""),
		row("R1", "2", "E100", ""),
	}, ImportOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, 2, res.SeatsCreated)
}

func TestImport_StrictRejectsAndWritesNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.importer.Import(ctx, []model.SeatRow{row("R9", "1", "E900", "")}, ImportOptions{})
	require.NoError(t, err)
	before := f.snapshot(t)

	res, err := f.importer.Import(ctx, []model.SeatRow{
		row("", "1", "E100", ""),     // empty room
		row("R1", "", "E101", ""),    // empty seat
		row("R1", "2", "E102", ""),   // fine
		row("R1", "3", "E102", ""),   // repeated on another seat
		row("R1", "4", "E900", "X"),  // already held in storage
		row("R1", "2", "E102", "Bo"), // same seat again is fine
	}, ImportOptions{Strict: true})
	require.ErrorIs(t, err, ErrMalformedInput)
	require.NotNil(t, res)

	var got []int
	for _, d := range res.Diagnostics {
		got = append(got, d.Row)
	}
	assert.Equal(t, []int{1, 2, 4, 5}, got)
	assert.Equal(t, before, f.snapshot(t))
}

func TestImport_StrictAllowsMovingEnrolment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.importer.Import(ctx, []model.SeatRow{row("R1", "1", "E100", "")}, ImportOptions{})
	require.NoError(t, err)

	_, err = f.importer.Import(ctx, []model.SeatRow{
		row("R1", "1", "E555", ""),
		row("R1", "2", "E100", ""),
	}, ImportOptions{Strict: true})
	require.NoError(t, err)

	p, err := f.seating.Lookup(ctx, "E100")
	require.NoError(t, err)
	assert.Equal(t, "2", p.Seat.SeatNo)
}

func TestExportReimportRoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.importer.Import(ctx, []model.SeatRow{
		row("R1", "1", "E100", "Alice"),
		row("R1", "2", "", ""),
		row("R1", "3", "E300", ""),
	}, ImportOptions{})
	require.NoError(t, err)

	room, exported, err := f.seating.ExportRoomByCode(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, exported, 3)
	assert.Equal(t, model.SeatRow{Room: "R1", SeatNo: "2"}, exported[1])

	g := newFixture()
	_, err = g.importer.Import(ctx, exported, ImportOptions{})
	require.NoError(t, err)
	_, again, err := g.seating.ExportRoomByCode(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, exported, again)
}

// ── lookup / assign ──

func TestLookup_Errors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.importer.Import(ctx, []model.SeatRow{row("R1", "1", "abc123", "")}, ImportOptions{})
	require.NoError(t, err)

	_, err = f.seating.Lookup(ctx, "   ")
	assert.ErrorIs(t, err, ErrEnrolmentRequired)
	_, err = f.seating.Lookup(ctx, "ABC123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssign_Conflict(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.importer.Import(ctx, []model.SeatRow{
		row("R1", "2", "", ""),
		row("R1", "3", "", ""),
	}, ImportOptions{})
	require.NoError(t, err)
	room, err := f.rooms.FindByCode(ctx, "R1")
	require.NoError(t, err)

	outcome, seat, err := f.seating.Assign(ctx, AssignRequest{RoomID: room.ID, SeatNo: "2", EnrolmentNo: " E200 ", StudentName: "Bob", Actor: "admin"})
	require.NoError(t, err)
	assert.Equal(t, Updated, outcome)
	assert.Equal(t, "E200", model.Value(seat.EnrolmentNo))

	_, _, err = f.seating.Assign(ctx, AssignRequest{RoomID: room.ID, SeatNo: "3", EnrolmentNo: "E200"})
	assert.ErrorIs(t, err, ErrConflict)
	seat3, err := f.seats.Find(ctx, room.ID, "3")
	require.NoError(t, err)
	assert.Nil(t, seat3.EnrolmentNo)

	last := f.pub.events[len(f.pub.events)-1]
	assert.Equal(t, queue.EventAssign, last.Type)
	assert.Equal(t, "R1", last.RoomCode)
	assert.Equal(t, "admin", last.Actor)
}

func TestAssign_EmptyEnrolmentUnassigns(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.importer.Import(ctx, []model.SeatRow{row("R1", "2", "E200", "Bob")}, ImportOptions{})
	require.NoError(t, err)
	room, err := f.rooms.FindByCode(ctx, "R1")
	require.NoError(t, err)

	outcome, seat, err := f.seating.Assign(ctx, AssignRequest{RoomID: room.ID, SeatNo: "2", EnrolmentNo: "  ", StudentName: "kept?"})
	require.NoError(t, err)
	assert.Equal(t, Unassigned, outcome)
	assert.Nil(t, seat.EnrolmentNo)
	assert.Nil(t, seat.StudentName)

	_, err = f.seating.Lookup(ctx, "E200")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssign_MissingSeatOrRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.importer.Import(ctx, []model.SeatRow{row("R1", "1", "", "")}, ImportOptions{})
	require.NoError(t, err)
	room, err := f.rooms.FindByCode(ctx, "R1")
	require.NoError(t, err)

	_, _, err = f.seating.Assign(ctx, AssignRequest{RoomID: room.ID, SeatNo: "99", EnrolmentNo: "E1"})
	assert.ErrorIs(t, err, ErrSeatNotFound)
	_, _, err = f.seating.Assign(ctx, AssignRequest{RoomID: 999, SeatNo: "1", EnrolmentNo: "E1"})
	assert.ErrorIs(t, err, ErrSeatNotFound)
}

func TestListSeats_UnknownRoom(t *testing.T) {
	f := newFixture()
	_, _, err := f.seating.ListSeats(context.Background(), 42)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestImport_OverLongFields(t *testing.T) {
	long := strings.Repeat("9", model.MaxKeyLen+20)
	rows := []model.SeatRow{
		row("R1", "1", "E1", "Ann"),
		row("R1", long, "E2", "Seating Plan 2024 Semester 1 Block A Hall 3"),
	}

	t.Run("strict reports the row", func(t *testing.T) {
		f := newFixture()
		res, err := f.importer.Import(context.Background(), rows, ImportOptions{Strict: true})
		require.ErrorIs(t, err, ErrMalformedInput)
		require.Len(t, res.Diagnostics, 1)
		assert.Equal(t, 2, res.Diagnostics[0].Row)
		assert.Equal(t, "seat_no", res.Diagnostics[0].Field)
		assert.Empty(t, f.snapshot(t))
	})

	t.Run("lenient shortens and imports", func(t *testing.T) {
		f := newFixture()
		res, err := f.importer.Import(context.Background(), rows, ImportOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, res.SeatsCreated)

		p, err := f.seating.Lookup(context.Background(), "E2")
		require.NoError(t, err)
		assert.Equal(t, long[:model.MaxKeyLen], p.Seat.SeatNo)
	})
}

func TestAssign_OverLongEnrolment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.importer.Import(ctx, []model.SeatRow{row("R1", "1", "", "")}, ImportOptions{})
	require.NoError(t, err)
	room, err := f.rooms.FindByCode(ctx, "R1")
	require.NoError(t, err)

	_, _, err = f.seating.Assign(ctx, AssignRequest{RoomID: room.ID, SeatNo: "1", EnrolmentNo: strings.Repeat("E", model.MaxKeyLen+1)})
	assert.ErrorIs(t, err, ErrMalformedInput)
}
