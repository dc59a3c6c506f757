package handler

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/exam-seating/internal/extractor"
    "github.com/iliyamo/exam-seating/internal/middleware"
    "github.com/iliyamo/exam-seating/internal/model"
    "github.com/iliyamo/exam-seating/internal/seatfile"
    "github.com/iliyamo/exam-seating/internal/service"
)

// AdminHandler bundles the admin endpoints: browsing rooms and seats,
// editing a seat, importing seating files and exporting a room.
type AdminHandler struct {
    Seating  *service.SeatingService
    Importer *service.Importer
    MaxBytes int64   // upload limit for imports
    CellGap  float64 // PDF cell split threshold, 0 for the default
    Log      *zap.Logger
}

func NewAdminHandler(s *service.SeatingService, im *service.Importer, maxBytes int64, cellGap float64, log *zap.Logger) *AdminHandler {
    if s == nil || im == nil {
        panic("nil service passed to NewAdminHandler")
    }
    return &AdminHandler{Seating: s, Importer: im, MaxBytes: maxBytes, CellGap: cellGap, Log: log}
}

// errTooLarge is returned by readUpload when the file exceeds MaxBytes.
var errTooLarge = errors.New("file too large")

// ----- DTOs -----

type roomResp struct {
    ID         uint64  `json:"id"`
    Code       string  `json:"room_code"`
    Capacity   int     `json:"capacity"`
    LayoutMeta *string `json:"layout_meta,omitempty"`
}

type seatResp struct {
    ID          uint64  `json:"id"`
    SeatNo      string  `json:"seat_no"`
    EnrolmentNo *string `json:"enrolment_no"`
    StudentName *string `json:"student_name"`
}

type assignReq struct {
    SeatNo      *string `json:"seat_no"`
    EnrolmentNo string  `json:"enrolment_no"`
    StudentName string  `json:"student_name"`
}

type importResp struct {
    *service.ImportResult
    DryRun     bool                   `json:"dry_run,omitempty"`
    Extraction []extractor.Diagnostic `json:"extraction,omitempty"`
    Preview    []rowResp              `json:"preview,omitempty"`
}

type rowResp struct {
    Room        string `json:"room"`
    SeatNo      string `json:"seat_no"`
    EnrolmentNo string `json:"enrolment_no"`
    StudentName string `json:"student_name"`
}

func toRoomResp(r model.Room) roomResp {
    return roomResp{ID: r.ID, Code: r.Code, Capacity: r.Capacity, LayoutMeta: r.LayoutMeta}
}

// ListRooms: GET /v1/admin/rooms
func (h *AdminHandler) ListRooms(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    rooms, err := h.Seating.ListRooms(ctx)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    out := make([]roomResp, 0, len(rooms))
    for _, r := range rooms {
        out = append(out, toRoomResp(r))
    }
    return c.JSON(http.StatusOK, out)
}

// ListSeats: GET /v1/admin/rooms/:id/seats
func (h *AdminHandler) ListSeats(c echo.Context) error {
    roomID, err := parseID(c, "id")
    if err != nil {
        return respondError(c, h.Log, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    room, seats, err := h.Seating.ListSeats(ctx, roomID)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    out := make([]seatResp, 0, len(seats))
    for _, s := range seats {
        out = append(out, seatResp{ID: s.ID, SeatNo: s.SeatNo, EnrolmentNo: s.EnrolmentNo, StudentName: s.StudentName})
    }
    return c.JSON(http.StatusOK, echo.Map{"room": toRoomResp(*room), "seats": out})
}

// AssignSeat: PUT /v1/admin/rooms/:id/seats/:seat_no
// An empty enrolment_no unassigns the seat.  A seat number containing
// "/" must be percent-encoded.
func (h *AdminHandler) AssignSeat(c echo.Context) error {
    seatNo := c.Param("seat_no")
    if c.Request().URL.RawPath != "" {
        // the router matched on the escaped path
        unescaped, err := url.PathUnescape(seatNo)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat number"})
        }
        seatNo = unescaped
    }
    var req assignReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    return h.assign(c, seatNo, req)
}

// AssignSeatByBody: PUT /v1/admin/rooms/:id/seats
// Same as AssignSeat with seat_no in the body, which also reaches
// seats whose number is empty.
func (h *AdminHandler) AssignSeatByBody(c echo.Context) error {
    var req assignReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if req.SeatNo == nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_no is required"})
    }
    return h.assign(c, *req.SeatNo, req)
}

func (h *AdminHandler) assign(c echo.Context, seatNo string, req assignReq) error {
    roomID, err := parseID(c, "id")
    if err != nil {
        return respondError(c, h.Log, err)
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    outcome, seat, err := h.Seating.Assign(ctx, service.AssignRequest{
        RoomID:      roomID,
        SeatNo:      seatNo,
        EnrolmentNo: req.EnrolmentNo,
        StudentName: req.StudentName,
        Actor:       middleware.Subject(c),
    })
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "result": outcome,
        "seat":   seatResp{ID: seat.ID, SeatNo: seat.SeatNo, EnrolmentNo: seat.EnrolmentNo, StudentName: seat.StudentName},
    })
}

// ImportCSV: POST /v1/admin/import/csv
func (h *AdminHandler) ImportCSV(c echo.Context) error {
    return h.importTable(c, "csv", func(data []byte) ([]model.SeatRow, error) {
        return seatfile.ReadCSV(bytes.NewReader(data))
    })
}

// ImportXLSX: POST /v1/admin/import/xlsx
func (h *AdminHandler) ImportXLSX(c echo.Context) error {
    return h.importTable(c, "xlsx", func(data []byte) ([]model.SeatRow, error) {
        return seatfile.ReadXLSX(bytes.NewReader(data))
    })
}

func (h *AdminHandler) importTable(c echo.Context, source string, parse func([]byte) ([]model.SeatRow, error)) error {
    data, err := h.readUpload(c)
    if err != nil {
        return h.uploadError(c, err)
    }
    rows, err := parse(data)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": fmt.Sprintf("cannot read %s file: %v", source, err)})
    }
    return h.runImport(c, rows, source, nil)
}

// ImportPDF: POST /v1/admin/import/pdf
// Rows carry no room in a PDF; ?room= files them under that room code.
// ?dry_run=true returns the extracted rows without importing them.
func (h *AdminHandler) ImportPDF(c echo.Context) error {
    data, err := h.readUpload(c)
    if err != nil {
        return h.uploadError(c, err)
    }
    rows, diags, err := extractor.Extract(data, h.CellGap)
    if err != nil {
        if errors.Is(err, extractor.ErrNotPDF) || errors.Is(err, extractor.ErrUnreadablePDF) {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
        }
        return respondError(c, h.Log, err)
    }
    if len(rows) == 0 {
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{
            "error":      service.ErrEmptyExtraction.Error(),
            "extraction": diags,
        })
    }
    if room := strings.TrimSpace(c.QueryParam("room")); room != "" {
        for i := range rows {
            if strings.TrimSpace(rows[i].Room) == "" {
                rows[i].Room = room
            }
        }
    }
    if queryBool(c, "dry_run") {
        preview := make([]rowResp, 0, len(rows))
        for _, r := range rows {
            preview = append(preview, rowResp(r))
        }
        return c.JSON(http.StatusOK, importResp{
            ImportResult: &service.ImportResult{Rows: len(rows)},
            DryRun:       true,
            Extraction:   diags,
            Preview:      preview,
        })
    }
    return h.runImport(c, rows, "pdf", diags)
}

func (h *AdminHandler) runImport(c echo.Context, rows []model.SeatRow, source string, diags []extractor.Diagnostic) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 60*time.Second)
    defer cancel()

    res, err := h.Importer.Import(ctx, rows, service.ImportOptions{
        Strict: queryBool(c, "strict"),
        Source: source,
        Actor:  middleware.Subject(c),
    })
    if err != nil {
        if errors.Is(err, service.ErrMalformedInput) && res != nil {
            return c.JSON(http.StatusUnprocessableEntity, echo.Map{
                "error":       err.Error(),
                "diagnostics": res.Diagnostics,
            })
        }
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, importResp{ImportResult: res, Extraction: diags})
}

// ExportRoom: GET /v1/admin/rooms/:id/export?format=csv|xlsx
func (h *AdminHandler) ExportRoom(c echo.Context) error {
    roomID, err := parseID(c, "id")
    if err != nil {
        return respondError(c, h.Log, err)
    }
    format := strings.ToLower(c.QueryParam("format"))
    if format == "" {
        format = "csv"
    }
    if format != "csv" && format != "xlsx" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "format must be csv or xlsx"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()

    room, rows, err := h.Seating.ExportRoom(ctx, roomID)
    if err != nil {
        return respondError(c, h.Log, err)
    }

    var (
        buf         bytes.Buffer
        contentType string
    )
    switch format {
    case "xlsx":
        err = seatfile.WriteXLSX(&buf, rows)
        contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
    default:
        err = seatfile.WriteCSV(&buf, rows)
        contentType = "text/csv; charset=utf-8"
    }
    if err != nil {
        return respondError(c, h.Log, err)
    }
    name := fmt.Sprintf("export_%s.%s", safeFileName(room.Code), format)
    c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
    return c.Blob(http.StatusOK, contentType, buf.Bytes())
}

// readUpload returns the multipart "file" field, at most MaxBytes long.
func (h *AdminHandler) readUpload(c echo.Context) ([]byte, error) {
    fh, err := c.FormFile("file")
    if err != nil {
        return nil, err
    }
    if h.MaxBytes > 0 && fh.Size > h.MaxBytes {
        return nil, errTooLarge
    }
    f, err := fh.Open()
    if err != nil {
        return nil, err
    }
    defer f.Close()

    limit := h.MaxBytes
    if limit <= 0 {
        limit = 1 << 62
    }
    data, err := io.ReadAll(io.LimitReader(f, limit+1))
    if err != nil {
        return nil, err
    }
    if int64(len(data)) > limit {
        return nil, errTooLarge
    }
    return data, nil
}

func (h *AdminHandler) uploadError(c echo.Context, err error) error {
    if errors.Is(err, errTooLarge) {
        return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": fmt.Sprintf("file exceeds %d bytes", h.MaxBytes)})
    }
    return c.JSON(http.StatusBadRequest, echo.Map{"error": "multipart field \"file\" is required"})
}

func queryBool(c echo.Context, name string) bool {
    b, _ := strconv.ParseBool(c.QueryParam(name))
    return b
}
