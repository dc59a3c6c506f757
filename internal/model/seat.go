package model

import "unicode/utf8"

// Seat describes one seat inside a room.  Seats are uniquely
// identified by their room and seat number; that pair is the key
// imports upsert on.  EnrolmentNo and StudentName are nil while the
// seat is unassigned.
//
// Fields:
//  ID          – primary key identifier.
//  RoomID      – room to which this seat belongs.
//  SeatNo      – seat number as printed on the seating plan (may be empty).
//  EnrolmentNo – enrolment number of the assigned student (nullable).
//  StudentName – display name of the assigned student (nullable).
type Seat struct {
    ID          uint64  // seats.id
    RoomID      uint64  // seats.room_id
    SeatNo      string  // seats.seat_no
    EnrolmentNo *string // seats.enrolment_no (nullable)
    StudentName *string // seats.student_name (nullable)
}

// Placement pairs a seat with the room that holds it.  It is the
// answer to a student's lookup.
type Placement struct {
    Room Room
    Seat Seat
}

// SeatRow is one row of a seating table as exchanged with CSV, XLSX
// and PDF extraction.  All fields are raw strings; empty means absent.
type SeatRow struct {
    Room        string
    SeatNo      string
    EnrolmentNo string
    StudentName string
}

// SeatRecord is a normalized SeatRow ready to be upserted.
type SeatRecord struct {
    RoomCode    string
    SeatNo      string
    EnrolmentNo *string
    StudentName *string
}

// Optional returns nil for the empty string and a pointer to s otherwise.
func Optional(s string) *string {
    if s == "" {
        return nil
    }
    return &s
}

// Value dereferences p, returning "" for nil.
func Value(p *string) string {
    if p == nil {
        return ""
    }
    return *p
}

// MaxKeyLen is the widest room code, seat number or enrolment number
// storage accepts, counted in characters.  Student names are unbounded.
const MaxKeyLen = 255

// Clip shortens s to at most n characters.
func Clip(s string, n int) (string, bool) {
    if utf8.RuneCountInString(s) <= n {
        return s, false
    }
    return string([]rune(s)[:n]), true
}
