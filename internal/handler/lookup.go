package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/exam-seating/internal/model"
    "github.com/iliyamo/exam-seating/internal/service"
)

// LookupHandler serves the public "where do I sit" endpoint.
type LookupHandler struct {
    Seating *service.SeatingService
    Log     *zap.Logger
}

func NewLookupHandler(s *service.SeatingService, log *zap.Logger) *LookupHandler {
    return &LookupHandler{Seating: s, Log: log}
}

type lookupResp struct {
    Room        string `json:"room"`
    SeatNo      string `json:"seat_no"`
    EnrolmentNo string `json:"enrolment_no"`
    StudentName string `json:"student_name"`
}

// Lookup: GET /v1/lookup?enrolment_no=...
func (h *LookupHandler) Lookup(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    p, err := h.Seating.Lookup(ctx, c.QueryParam("enrolment_no"))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, lookupResp{
        Room:        p.Room.Code,
        SeatNo:      p.Seat.SeatNo,
        EnrolmentNo: model.Value(p.Seat.EnrolmentNo),
        StudentName: model.Value(p.Seat.StudentName),
    })
}
