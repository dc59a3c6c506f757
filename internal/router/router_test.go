package router

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/exam-seating/internal/handler"
	"github.com/iliyamo/exam-seating/internal/repository"
	"github.com/iliyamo/exam-seating/internal/service"
	"github.com/iliyamo/exam-seating/internal/utils"
)

const (
	testSecret   = "router-test-secret"
	testPassword = "letmein"
)

type testServer struct {
	e     *echo.Echo
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()
	rooms, seats := repository.NewMemoryStore()
	hash, err := utils.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	seating := service.NewSeatingService(rooms, seats, nil, nil, log)
	importer := service.NewImporter(rooms, seats, nil, nil, log)
	auth := service.NewAuthService(hash, nil, testSecret, 5, log)

	e := echo.New()
	Setup(e, Handlers{
		Health: handler.NewHealthHandler(nil),
		Lookup: handler.NewLookupHandler(seating, log),
		Auth:   handler.NewAuthHandler(auth, log),
		Admin:  handler.NewAdminHandler(seating, importer, 1<<20, 0, log),
	}, Options{JWTSecret: testSecret}, log)
	return &testServer{e: e}
}

func (s *testServer) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if s.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) json(method, target string, v any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(v)
	return s.do(method, target, bytes.NewReader(b), echo.MIMEApplicationJSON)
}

func (s *testServer) upload(target, name string, content []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", name)
	_, _ = fw.Write(content)
	_ = mw.Close()
	return s.do(http.MethodPost, target, &buf, mw.FormDataContentType())
}

func (s *testServer) login(t *testing.T) {
	t.Helper()
	rec := s.json(http.MethodPost, "/v1/admin/login", map[string]string{"password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Access struct {
			Token string `json:"token"`
		} `json:"access"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Access.Token)
	s.token = resp.Access.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

const seatingCSV = "room,seat_no,enrolment_no,student_name\n" +
	"R1,1,E100,Alice\n" +
	"R1,2,,\n" +
	"R1,3,,\n"

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized,
		s.json(http.MethodPost, "/v1/admin/login", map[string]string{"password": "wrong"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		s.json(http.MethodPost, "/v1/admin/login", map[string]string{}).Code)
	assert.Equal(t, http.StatusUnauthorized,
		s.json(http.MethodPost, "/v1/admin/login", map[string]string{"email": "a@b.c", "password": testPassword}).Code)
	s.login(t)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/admin/rooms", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.upload("/v1/admin/import/csv", "s.csv", []byte(seatingCSV)).Code)
}

func TestImportLookupAssignExport(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	rec := s.upload("/v1/admin/import/csv", "seating.csv", []byte(seatingCSV))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 3, body["seats_created"])
	assert.NotEmpty(t, body["batch_id"])

	// public lookup
	s.token = ""
	rec = s.do(http.MethodGet, "/v1/lookup?enrolment_no=E100", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"room":"R1","seat_no":"1","enrolment_no":"E100","student_name":"Alice"}`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/lookup?enrolment_no=e100", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/lookup", nil, "").Code)
	s.login(t)

	rec = s.do(http.MethodGet, "/v1/admin/rooms", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rooms []struct {
		ID   uint64 `json:"id"`
		Code string `json:"room_code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	roomURL := "/v1/admin/rooms/" + jsonID(rooms[0].ID)

	rec = s.json(http.MethodPut, roomURL+"/seats/2", map[string]string{"enrolment_no": "E200", "student_name": "Bob"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "updated", decode(t, rec)["result"])

	rec = s.json(http.MethodPut, roomURL+"/seats/3", map[string]string{"enrolment_no": "E200"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.json(http.MethodPut, roomURL+"/seats/1", map[string]string{"enrolment_no": "", "student_name": "ignored"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unassigned", decode(t, rec)["result"])

	rec = s.json(http.MethodPut, roomURL+"/seats/99", map[string]string{"enrolment_no": "E999"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, roomURL+"/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "export_R1.csv")
	assert.Equal(t,
		"room,seat_no,enrolment_no,student_name\nR1,1,,\nR1,2,E200,Bob\nR1,3,,\n",
		rec.Body.String())

	rec = s.do(http.MethodGet, roomURL+"/export?format=xlsx", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, roomURL+"/export?format=pdf", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/admin/rooms/999/seats", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/admin/rooms/abc/seats", nil, "").Code)
}

func TestAssignSeatsWithAwkwardNumbers(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	csv := "room,seat_no,enrolment_no,student_name\nR1,A/12,,\nR1,,,\nR1,Seat 5,,\n"
	rec := s.upload("/v1/admin/import/csv", "s.csv", []byte(csv))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 3, decode(t, rec)["seats_created"])

	rec = s.do(http.MethodGet, "/v1/admin/rooms", nil, "")
	var rooms []struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	roomURL := "/v1/admin/rooms/" + jsonID(rooms[0].ID)

	rec = s.json(http.MethodPut, roomURL+"/seats/A%2F12", map[string]string{"enrolment_no": "E1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.json(http.MethodPut, roomURL+"/seats/Seat%205", map[string]string{"enrolment_no": "E3"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the empty seat number is only reachable with seat_no in the body
	rec = s.json(http.MethodPut, roomURL+"/seats", map[string]string{"seat_no": "", "enrolment_no": "E2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "updated", decode(t, rec)["result"])
	rec = s.json(http.MethodPut, roomURL+"/seats", map[string]string{"enrolment_no": "E2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, roomURL+"/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"room,seat_no,enrolment_no,student_name\nR1,,E2,\nR1,A/12,E1,\nR1,Seat 5,E3,\n",
		rec.Body.String())
}

func TestStrictImportRejected(t *testing.T) {
	s := newTestServer(t)
	s.login(t)

	csv := "room,seat_no,enrolment_no\nR1,,E1\nR1,2,E2\n"
	rec := s.upload("/v1/admin/import/csv?strict=true", "s.csv", []byte(csv))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	diags, ok := decode(t, rec)["diagnostics"].([]any)
	require.True(t, ok)
	assert.Len(t, diags, 1)

	rec = s.do(http.MethodGet, "/v1/admin/rooms", nil, "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestImportPDFRejectsNonPDF(t *testing.T) {
	s := newTestServer(t)
	s.login(t)
	rec := s.upload("/v1/admin/import/pdf", "s.pdf", []byte(seatingCSV))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportRequiresFile(t *testing.T) {
	s := newTestServer(t)
	s.login(t)
	rec := s.do(http.MethodPost, "/v1/admin/import/csv", strings.NewReader(""), echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonID(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
