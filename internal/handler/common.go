package handler // handler defines http handlers

import (
    "errors"   // errors matches service sentinels
    "net/http" // net/http provides status codes
    "strconv"  // strconv parses path ids
    "strings"  // strings builds download file names

    "github.com/labstack/echo/v4" // echo defines request context types
    "go.uber.org/zap"

    "github.com/iliyamo/exam-seating/internal/service"
)

// errBadID is returned by parseID for a missing or non-numeric id.
var errBadID = errors.New("invalid id")

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
    n, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || n == 0 {
        return 0, errBadID
    }
    return n, nil
}

// respondError maps domain errors onto HTTP statuses.  Anything it does
// not recognise is logged and reported as a 500 without details.
func respondError(c echo.Context, log *zap.Logger, err error) error {
    switch {
    case errors.Is(err, service.ErrNotFound),
        errors.Is(err, service.ErrSeatNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
    case errors.Is(err, service.ErrRoomNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
    case errors.Is(err, service.ErrConflict):
        return c.JSON(http.StatusConflict, echo.Map{"error": "enrolment is already assigned to another seat; unassign it there first"})
    case errors.Is(err, service.ErrEnrolmentRequired):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrMalformedInput),
        errors.Is(err, service.ErrEmptyExtraction):
        return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
    case errors.Is(err, service.ErrInvalidCredentials):
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    case errors.Is(err, errBadID):
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    log.Error("request failed",
        zap.String("method", c.Request().Method),
        zap.String("route", c.Path()),
        zap.Error(err),
    )
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// safeFileName keeps letters, digits, dash and underscore so a room code
// can be used in a Content-Disposition file name.
func safeFileName(s string) string {
    var b strings.Builder
    for _, r := range s {
        switch {
        case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
            b.WriteRune(r)
        default:
            b.WriteRune('_')
        }
    }
    if b.Len() == 0 {
        return "room"
    }
    return b.String()
}
