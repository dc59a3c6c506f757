package model

// Room represents an examination room.  Rooms are created on demand
// the first time an import mentions their code and are never deleted.
// This struct corresponds to a row in the `rooms` table.
//
// Fields:
//  ID         – primary key identifier.
//  Code       – unique room code as it appears in seating sheets.
//  Capacity   – number of seats the room holds (0 when unknown).
//  LayoutMeta – optional free text describing the room layout.
type Room struct {
    ID         uint64  // rooms.id
    Code       string  // rooms.room_code
    Capacity   int     // rooms.capacity
    LayoutMeta *string // rooms.layout_meta (nullable)
}

// UnknownRoomCode is used for rows that do not name a room.
const UnknownRoomCode = "Unknown"
