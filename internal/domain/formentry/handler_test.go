package formentry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/rehab/clinic/internal/platform/errs"
	"github.com/rehab/clinic/internal/platform/middleware"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc), env, echo.New()
}

func jsonContext(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func asHTTPError(t *testing.T, err error) *errs.HTTPError {
	t.Helper()
	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *errs.HTTPError, got %v", err)
	}
	return httpErr
}

func TestCreateEntry_Success(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := jsonContext(e, http.MethodPost,
		`{"formId":"`+lfkID.String()+`","clientId":"`+activeClient.String()+`","data":{"complaints":"back pain"}}`)

	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got Entry
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusInProgress || got.Data["complaints"] != "back pain" {
		t.Errorf("unexpected entry %+v", got)
	}
	if c.Get(middleware.AuditClientKey) != activeClient.String() {
		t.Error("expected audit client to be set")
	}
}

func TestCreateEntry_Validation(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodPost, `{"formId":"nope"}`)

	httpErr := asHTTPError(t, h.Create(c))
	if httpErr.Code != "VALIDATION_FAILED" || len(httpErr.Errors) != 2 {
		t.Errorf("unexpected error %+v", httpErr)
	}
}

func TestCreateEntry_DataErrors(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodPost,
		`{"formId":"`+fimID.String()+`","clientId":"`+activeClient.String()+`","data":{"eating":8}}`)

	httpErr := asHTTPError(t, h.Create(c))
	if httpErr.Status != http.StatusBadRequest || httpErr.Errors[0].Field != "data.eating" {
		t.Errorf("unexpected error %+v", httpErr)
	}
}

func TestCreateEntry_DischargedClient(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodPost,
		`{"formId":"`+fimID.String()+`","clientId":"`+dischargedClient.String()+`"}`)

	if httpErr := asHTTPError(t, h.Create(c)); httpErr.Code != "CLIENT_DISCHARGED" {
		t.Errorf("expected CLIENT_DISCHARGED, got %s", httpErr.Code)
	}
}

func TestCompleteAndArchive(t *testing.T) {
	h, env, e := newTestHandler()
	entry := env.start(t, fimID, nil)

	answers, _ := json.Marshal(map[string]any{"data": fimAnswers(7, 6)})
	c, rec := jsonContext(e, http.MethodPost, string(answers))
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())
	if err := h.Complete(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Entry
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Score == nil || *got.Score != 121 {
		t.Errorf("unexpected score %v", got.Score)
	}

	c, rec = jsonContext(e, http.MethodGet, "")
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())
	if err := h.Archive(c); err != nil {
		t.Fatal(err)
	}
	if rec.Header().Get(echo.HeaderContentType) != "application/json" || rec.Header().Get("ETag") == "" {
		t.Errorf("unexpected headers %v", rec.Header())
	}
	if !strings.Contains(rec.Body.String(), `"status":"completed"`) {
		t.Errorf("unexpected archive %s", rec.Body.String())
	}
}

func TestDeleteCompleted_Conflict(t *testing.T) {
	h, env, e := newTestHandler()
	entry := env.start(t, fimID, fimAnswers(5, 5))
	if _, err := env.svc.Complete(context.Background(), entry.ID, Patch{}); err != nil {
		t.Fatal(err)
	}

	c, _ := jsonContext(e, http.MethodDelete, "")
	c.SetParamNames("id")
	c.SetParamValues(entry.ID.String())
	httpErr := asHTTPError(t, h.Delete(c))
	if httpErr.Status != http.StatusConflict || httpErr.Code != "ENTRY_COMPLETED" {
		t.Errorf("unexpected error %+v", httpErr)
	}
}

func TestListEntries_Filters(t *testing.T) {
	h, env, e := newTestHandler()
	env.start(t, fimID, nil)
	env.start(t, lfkID, nil)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?formId="+lfkID.String(), nil), rec)
	if err := h.List(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?clientId=bad", nil), httptest.NewRecorder())
	if httpErr := asHTTPError(t, h.List(c)); httpErr.Code != "INVALID_ID" {
		t.Errorf("expected INVALID_ID, got %s", httpErr.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?status=done", nil), httptest.NewRecorder())
	if httpErr := asHTTPError(t, h.List(c)); httpErr.Code != "INVALID_STATUS" {
		t.Errorf("expected INVALID_STATUS, got %s", httpErr.Code)
	}
}

func TestListForClient_Handler(t *testing.T) {
	h, env, e := newTestHandler()
	env.start(t, lfkID, nil)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(activeClient.String())
	if err := h.ListForClient(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
