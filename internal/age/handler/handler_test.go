package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"agegate/internal/age/handler/mocks"
	"agegate/internal/age/models"
	"agegate/internal/age/service"
	"agegate/internal/platform/middleware"
	dErrors "agegate/pkg/domain-errors"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)

	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

// request builds an authenticated request the way the auth middleware would
// hand it to the handler.
func (s *HandlerSuite) request(method, target, userID string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if userID != "" {
		ctx := context.WithValue(req.Context(), middleware.ContextKeyUserID, userID)
		req = req.WithContext(ctx)
	}
	return req
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// =============================================================================
// POST /age/start
// =============================================================================

func (s *HandlerSuite) TestStart_NewSession() {
	s.service.EXPECT().Start(gomock.Any(), "user-7").Return(&service.StartResponse{
		Handle: "handle-1",
		SessionPointer: models.SessionPointer{
			U:      "https://yivi.example.com/irma/session/tkn",
			IrmaQR: "disclosing",
		},
	}, nil)

	rec := s.do(s.request(http.MethodPost, "/age/start", "user-7", nil))

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(false, body["verified"])
	s.Equal("handle-1", body["handle"])
	ptr, ok := body["session_pointer"].(map[string]any)
	s.Require().True(ok)
	s.Equal("https://yivi.example.com/irma/session/tkn", ptr["u"])
	s.Equal("disclosing", ptr["irmaqr"])
}

func (s *HandlerSuite) TestStart_AlreadyVerified() {
	s.service.EXPECT().Start(gomock.Any(), "user-7").Return(&service.StartResponse{Verified: true}, nil)

	rec := s.do(s.request(http.MethodPost, "/age/start", "user-7", nil))

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(true, body["verified"])
	s.NotContains(body, "handle")
	s.NotContains(body, "session_pointer")
}

func (s *HandlerSuite) TestStart_Unauthenticated() {
	s.service.EXPECT().Start(gomock.Any(), "").Return(nil, dErrors.New(dErrors.CodeUnauthorized, "missing user context"))

	rec := s.do(s.request(http.MethodPost, "/age/start", "", nil))

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal(string(dErrors.CodeUnauthorized), s.decode(rec)["error"])
}

func (s *HandlerSuite) TestStart_UpstreamUnavailable() {
	s.service.EXPECT().Start(gomock.Any(), "user-7").Return(nil, dErrors.New(dErrors.CodeUpstreamUnavailable, "proof server unreachable"))

	rec := s.do(s.request(http.MethodPost, "/age/start", "user-7", nil))

	s.Equal(http.StatusBadGateway, rec.Code)
}

// =============================================================================
// POST /age/result
// =============================================================================

func (s *HandlerSuite) TestResult_Success() {
	s.service.EXPECT().Result(gomock.Any(), "user-7", "handle-1").Return(nil)

	rec := s.do(s.request(http.MethodPost, "/age/result", "user-7", map[string]string{"handle": "handle-1"}))

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(true, s.decode(rec)["verified"])
}

func (s *HandlerSuite) TestResult_BadJSON() {
	req := httptest.NewRequest(http.MethodPost, "/age/result", bytes.NewBufferString("{nope"))
	req = req.WithContext(context.WithValue(req.Context(), middleware.ContextKeyUserID, "user-7"))

	rec := s.do(req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestResult_MissingHandle() {
	rec := s.do(s.request(http.MethodPost, "/age/result", "user-7", map[string]string{}))

	s.Equal(http.StatusBadRequest, rec.Code)
}

// TestResult_ErrorMapping exercises the full error taxonomy of the result
// endpoint through the shared error writer.
func (s *HandlerSuite) TestResult_ErrorMapping() {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown handle", dErrors.New(dErrors.CodeNotFound, "unknown handle"), http.StatusNotFound},
		{"foreign handle", dErrors.New(dErrors.CodeForbidden, "handle belongs to another user"), http.StatusForbidden},
		{"still pending", dErrors.New(dErrors.CodeNotYetComplete, "disclosure not finished, poll again"), http.StatusConflict},
		{"proof rejected", dErrors.New(dErrors.CodeProofRejected, "proof was not valid"), http.StatusUnprocessableEntity},
		{"session expired", dErrors.New(dErrors.CodeSessionExpired, "proof server does not know this session"), http.StatusGone},
		{"upstream unavailable", dErrors.New(dErrors.CodeUpstreamUnavailable, "proof server unreachable"), http.StatusBadGateway},
		{"upstream rejected", dErrors.New(dErrors.CodeUpstreamRejected, "proof server rejected the request"), http.StatusBadGateway},
		{"malformed upstream", dErrors.New(dErrors.CodeMalformedUpstream, "unparseable upstream response"), http.StatusBadGateway},
	}

	for _, tc := range cases {
		s.T().Run(tc.name, func(t *testing.T) {
			s.service.EXPECT().Result(gomock.Any(), "user-7", "handle-1").Return(tc.err)

			rec := s.do(s.request(http.MethodPost, "/age/result", "user-7", map[string]string{"handle": "handle-1"}))

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rec.Code, rec.Body.String())
			}
			body := s.decode(rec)
			if body["error"] == "" {
				t.Fatal("expected error code in body")
			}
		})
	}
}

// TestResult_PollUntilDone walks the poll loop a client would run: two pending
// answers, then success. The second success is idempotent.
func (s *HandlerSuite) TestResult_PollUntilDone() {
	pending := dErrors.New(dErrors.CodeNotYetComplete, "disclosure not finished, poll again")
	first := s.service.EXPECT().Result(gomock.Any(), "user-7", "handle-1").Return(pending)
	second := s.service.EXPECT().Result(gomock.Any(), "user-7", "handle-1").Return(pending).After(first)
	s.service.EXPECT().Result(gomock.Any(), "user-7", "handle-1").Return(nil).Times(2).After(second)

	body := map[string]string{"handle": "handle-1"}
	s.Equal(http.StatusConflict, s.do(s.request(http.MethodPost, "/age/result", "user-7", body)).Code)
	s.Equal(http.StatusConflict, s.do(s.request(http.MethodPost, "/age/result", "user-7", body)).Code)
	s.Equal(http.StatusOK, s.do(s.request(http.MethodPost, "/age/result", "user-7", body)).Code)
	s.Equal(http.StatusOK, s.do(s.request(http.MethodPost, "/age/result", "user-7", body)).Code)
}

// =============================================================================
// GET /age/status
// =============================================================================

func (s *HandlerSuite) TestStatus() {
	s.service.EXPECT().Verified(gomock.Any(), "user-7").Return(false, nil)

	rec := s.do(s.request(http.MethodGet, "/age/status", "user-7", nil))

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(false, s.decode(rec)["verified"])
}
