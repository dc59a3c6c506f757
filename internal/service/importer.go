package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/exam-seating/internal/model"
	"github.com/iliyamo/exam-seating/internal/queue"
)

// ImportOptions controls a single import run.
type ImportOptions struct {
	// Strict rejects the whole batch when any row has a problem.
	Strict bool
	// Source names where the rows came from (csv, xlsx, pdf).
	Source string
	// Actor identifies who started the import, for the audit trail.
	Actor string
}

// RowDiagnostic reports a problem with one input row.  Row is the
// 1-based position among the data rows.
type RowDiagnostic struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ImportResult summarises an import.
type ImportResult struct {
	BatchID        string          `json:"batch_id"`
	Rows           int             `json:"rows"`
	RoomsSeen      int             `json:"rooms_seen"`
	RoomsCreated   int             `json:"rooms_created"`
	SeatsCreated   int             `json:"seats_created"`
	SeatsUpdated   int             `json:"seats_updated"`
	SeatsUnchanged int             `json:"seats_unchanged"`
	Diagnostics    []RowDiagnostic `json:"diagnostics,omitempty"`
}

// Importer loads seating rows into storage.
type Importer struct {
	rooms  RoomStore
	seats  SeatStore
	notify notifier
	log    *zap.Logger
}

func NewImporter(rooms RoomStore, seats SeatStore, cache CacheInvalidator, pub EventPublisher, log *zap.Logger) *Importer {
	n := newNotifier(cache, pub, log)
	return &Importer{rooms: rooms, seats: seats, notify: n, log: n.log}
}

// NormalizeRow trims every field.  An empty room becomes "Unknown", an
// empty seat number stays empty and empty enrolment or name become nil.
func NormalizeRow(r model.SeatRow) model.SeatRecord {
	room := strings.TrimSpace(r.Room)
	if room == "" {
		room = model.UnknownRoomCode
	}
	return model.SeatRecord{
		RoomCode:    room,
		SeatNo:      strings.TrimSpace(r.SeatNo),
		EnrolmentNo: model.Optional(strings.TrimSpace(r.EnrolmentNo)),
		StudentName: model.Optional(strings.TrimSpace(r.StudentName)),
	}
}

// Import upserts rows in order, keyed by room and seat number, so a
// later row for the same seat overwrites an earlier one and importing
// the same rows twice leaves storage as after the first run.  The
// whole batch commits or nothing does.
//
// In strict mode every row is checked first and the batch is refused
// with ErrMalformedInput if any check fails; the returned result then
// carries the diagnostics.  Lenient mode accepts every row.
func (im *Importer) Import(ctx context.Context, rows []model.SeatRow, opts ImportOptions) (*ImportResult, error) {
	res := &ImportResult{BatchID: uuid.NewString(), Rows: len(rows)}
	if len(rows) == 0 {
		return res, nil
	}

	records := make([]model.SeatRecord, len(rows))
	rooms := make(map[string]struct{})
	for i, r := range rows {
		records[i] = NormalizeRow(r)
		rooms[records[i].RoomCode] = struct{}{}
	}
	res.RoomsSeen = len(rooms)

	if opts.Strict {
		diags, err := im.check(ctx, rows, records)
		if err != nil {
			return nil, err
		}
		if len(diags) > 0 {
			res.Diagnostics = diags
			return res, fmt.Errorf("%w: %d problem(s) in %d rows", ErrMalformedInput, len(diags), len(rows))
		}
	}

	if n := clipRecords(records); n > 0 {
		im.log.Warn("over-long fields shortened",
			zap.String("batch_id", res.BatchID),
			zap.Int("rows", n),
			zap.Int("max_len", model.MaxKeyLen),
		)
	}

	stats, err := im.seats.ApplyImport(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	res.RoomsCreated = stats.RoomsCreated
	res.SeatsCreated = stats.SeatsCreated
	res.SeatsUpdated = stats.SeatsUpdated
	res.SeatsUnchanged = stats.SeatsUnchanged

	im.log.Info("seating imported",
		zap.String("batch_id", res.BatchID),
		zap.String("source", opts.Source),
		zap.Int("rows", res.Rows),
		zap.Int("rooms_created", res.RoomsCreated),
		zap.Int("seats_created", res.SeatsCreated),
		zap.Int("seats_updated", res.SeatsUpdated),
	)
	im.notify.changed(ctx, queue.AuditEvent{
		Type:    queue.EventImport,
		BatchID: res.BatchID,
		Source:  opts.Source,
		Rows:    res.Rows,
		Actor:   opts.Actor,
	})
	return res, nil
}

type seatKey struct{ room, seat string }

// check runs the strict-mode row checks without writing anything.
func (im *Importer) check(ctx context.Context, rows []model.SeatRow, records []model.SeatRecord) ([]RowDiagnostic, error) {
	var diags []RowDiagnostic
	add := func(row int, field, format string, args ...any) {
		diags = append(diags, RowDiagnostic{Row: row, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// final enrolment per seat key once the batch is applied
	final := make(map[seatKey]string)
	for _, rec := range records {
		final[seatKey{rec.RoomCode, rec.SeatNo}] = model.Value(rec.EnrolmentNo)
	}

	type firstUse struct {
		row int
		key seatKey
	}
	seen := make(map[string]firstUse)
	roomCodes := make(map[uint64]string)

	for i, rec := range records {
		row := i + 1
		key := seatKey{rec.RoomCode, rec.SeatNo}
		if strings.TrimSpace(rows[i].Room) == "" {
			add(row, "room", "room is empty; it would be filed under %q", model.UnknownRoomCode)
		}
		if rec.SeatNo == "" {
			add(row, "seat_no", "seat number is empty")
		}
		for _, f := range []struct{ name, value string }{
			{"room", rec.RoomCode},
			{"seat_no", rec.SeatNo},
			{"enrolment_no", model.Value(rec.EnrolmentNo)},
		} {
			if utf8.RuneCountInString(f.value) > model.MaxKeyLen {
				add(row, f.name, "longer than %d characters", model.MaxKeyLen)
			}
		}
		if rec.EnrolmentNo == nil {
			continue
		}
		enrol := *rec.EnrolmentNo

		if prev, ok := seen[enrol]; ok {
			if prev.key != key {
				add(row, "enrolment_no", "enrolment %q is also given to room %q seat %q on row %d",
					enrol, prev.key.room, prev.key.seat, prev.row)
			}
			continue
		}
		seen[enrol] = firstUse{row: row, key: key}

		holder, err := im.seats.FindByEnrolment(ctx, enrol)
		if errors.Is(err, ErrSeatNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		code, ok := roomCodes[holder.RoomID]
		if !ok {
			room, err := im.rooms.GetByID(ctx, holder.RoomID)
			switch {
			case err == nil:
				code = room.Code
			case errors.Is(err, ErrRoomNotFound):
				code = model.UnknownRoomCode
			default:
				return nil, err
			}
			roomCodes[holder.RoomID] = code
		}
		held := seatKey{code, holder.SeatNo}
		if held == key {
			continue
		}
		// the batch moves the enrolment off its current seat
		if next, ok := final[held]; ok && next != enrol {
			continue
		}
		add(row, "enrolment_no", "enrolment %q is already assigned to room %q seat %q", enrol, held.room, held.seat)
	}
	return diags, nil
}

// clipRecords shortens keys wider than storage accepts and returns how
// many records changed.  Clipping can merge two long seat numbers into
// one key; the later row then wins as for any repeated key.
func clipRecords(records []model.SeatRecord) int {
	n := 0
	for i := range records {
		r := &records[i]
		var c1, c2, c3 bool
		r.RoomCode, c1 = model.Clip(r.RoomCode, model.MaxKeyLen)
		r.SeatNo, c2 = model.Clip(r.SeatNo, model.MaxKeyLen)
		if r.EnrolmentNo != nil {
			var e string
			e, c3 = model.Clip(*r.EnrolmentNo, model.MaxKeyLen)
			r.EnrolmentNo = &e
		}
		if c1 || c2 || c3 {
			n++
		}
	}
	return n
}
