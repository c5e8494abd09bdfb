package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/inspector-vouchers/internal/container"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/workflow"
	"github.com/garyjia/inspector-vouchers/pkg/utils"
)

type fixture struct {
	t      *testing.T
	server *Server
	c      *container.Container

	alice, sup, otherSup, fleet, admin *entity.Person
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	cfg := container.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "vouchers.db")
	cfg.Storage.ExportDir = filepath.Join(dir, "exports")
	cfg.Reminder.Enabled = false

	c, err := container.NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	f := &fixture{t: t, c: c}
	f.sup = f.person("sup", entity.RoleSupervisor, "SCSI", nil)
	f.otherSup = f.person("other", entity.RoleSupervisor, "SCSI", nil)
	f.fleet = f.person("fleet", entity.RoleFleetManager, "Fleet Manager", nil)
	f.admin = f.person("admin", entity.RoleAdmin, "Administrator", nil)
	f.alice = f.person("alice", entity.RoleInspector, "CSI", &f.sup.ID)

	services := c.Services()
	cfgHTTP := DefaultServerConfig()
	cfgHTTP.Mode = gin.TestMode
	f.server = NewServer(cfgHTTP, Services{
		Voucher:    services.Voucher,
		Assignment: services.Assignment,
		Export:     services.Export,
	}, c, utils.NewKVLogger(zap.NewNop()))
	return f
}

func (f *fixture) person(name string, role entity.Role, title string, supervisor *int64) *entity.Person {
	at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p := &entity.Person{
		Name:                 name,
		Role:                 role,
		PositionTitle:        title,
		AssignedSupervisorID: supervisor,
		Active:               true,
		FullName:             name + " Example",
		EmployeeNumber:       "E-" + name,
		DutyStation:          "Est. 12",
		HomeAddress:          "2 Side St",
		CertifiedAt:          &at,
	}
	require.NoError(f.t, f.c.Repositories().Person.Create(context.Background(), p))
	return p
}

func (f *fixture) do(method, path string, actor int64, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != 0 {
		req.Header.Set(headerActorID, strconv.FormatInt(actor, 10))
	}

	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.True(t, resp.Success, w.Body.String())
	return resp.Data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	assert.False(t, resp.Success)
	return resp
}

func voucherPath(id int64, suffix string) string {
	return "/api/vouchers/" + strconv.FormatInt(id, 10) + suffix
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	status := decode[container.HealthStatus](t, w)
	assert.True(t, status.Overall)
	assert.True(t, status.Components["database"].Healthy)
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-123")
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(headerRequestID))
}

func TestActorHeaderRequired(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{"", "abc", "-3", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/api/approvals/pending", nil)
		if raw != "" {
			req.Header.Set(headerActorID, raw)
		}
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, raw)
		assert.Equal(t, "unauthenticated", decodeError(t, w).Kind)
	}
}

func TestVoucherLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/trips", f.alice.ID, map[string]interface{}{
		"trip_date": "2024-03-04",
		"miles":     "100.0",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	trip := decode[entity.Trip](t, w)
	id := trip.VoucherID

	w = f.do(http.MethodPost, voucherPath(id, "/submit"), f.alice.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v := decode[entity.Voucher](t, w)
	assert.Equal(t, workflow.StateSubmitted, v.Status)
	assert.Equal(t, "67.00", v.TotalAmount.StringFixed(2))

	// a supervisor with no relation to alice
	w = f.do(http.MethodPost, voucherPath(id, "/approve/supervisor"), f.otherSup.ID, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, "authorization", e.Kind)
	assert.EqualValues(t, f.otherSup.ID, e.Details["actor_id"])

	w = f.do(http.MethodGet, "/api/approvals/pending", f.sup.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]entity.Voucher](t, w), 1)

	w = f.do(http.MethodPost, voucherPath(id, "/approve/supervisor"), f.sup.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(http.MethodPost, voucherPath(id, "/approve/supervisor"), f.sup.ID, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	e = decodeError(t, w)
	assert.Equal(t, "invalid_transition", e.Kind)
	assert.Equal(t, "supervisor_approved", e.Details["status"])

	w = f.do(http.MethodPost, voucherPath(id, "/approve/fleet"), f.fleet.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, workflow.StateApproved, decode[entity.Voucher](t, w).Status)

	w = f.do(http.MethodGet, voucherPath(id, ""), f.alice.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"allowed_actions":[]`)

	w = f.do(http.MethodPost, voucherPath(id, "/reject"), f.fleet.ID, map[string]string{"reason": "late"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodGet, voucherPath(id, "/certifications"), f.alice.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]entity.CertificationEntry](t, w), 3)

	w = f.do(http.MethodGet, "/api/exports/vouchers?month=3&year=2024", f.fleet.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "vouchers_2024_03.xlsx")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestRejectAndReopenOverHTTP(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/vouchers", f.alice.ID, map[string]int{"month": 4, "year": 2024})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := decode[entity.Voucher](t, w).ID

	w = f.do(http.MethodPost, "/api/trips", f.alice.ID, map[string]interface{}{
		"trip_date": "2024-04-10",
		"miles":     12,
		"meals":     "8.50",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, id, decode[entity.Trip](t, w).VoucherID)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, voucherPath(id, "/submit"), f.alice.ID, nil).Code)

	// no reason
	w = f.do(http.MethodPost, voucherPath(id, "/reject"), f.sup.ID, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decodeError(t, w).Kind)

	w = f.do(http.MethodPost, voucherPath(id, "/reject"), f.sup.ID, map[string]string{"reason": "missing receipt"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v := decode[entity.Voucher](t, w)
	assert.Equal(t, workflow.StateRejected, v.Status)
	assert.Equal(t, "missing receipt", v.RejectionReason)

	w = f.do(http.MethodGet, voucherPath(id, ""), f.alice.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[VoucherView](t, w)
	assert.Equal(t, workflow.StateRejected, view.Status)
	assert.Equal(t, []workflow.Trigger{workflow.TriggerReopen, workflow.TriggerSubmit}, view.AllowedActions)

	w = f.do(http.MethodPost, voucherPath(id, "/reopen"), f.alice.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, workflow.StateDraft, decode[entity.Voucher](t, w).Status)
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   string
	}{
		{"non-numeric id", http.MethodGet, "/api/vouchers/abc", nil, http.StatusBadRequest, "validation"},
		{"unknown voucher", http.MethodGet, "/api/vouchers/999", nil, http.StatusNotFound, "not_found"},
		{"bad trip date", http.MethodPost, "/api/trips", map[string]string{"trip_date": "04/10/2024"}, http.StatusBadRequest, "validation"},
		{"month out of range", http.MethodPost, "/api/vouchers", map[string]int{"month": 13, "year": 2024}, http.StatusBadRequest, "validation"},
		{"export without period", http.MethodGet, "/api/exports/vouchers", nil, http.StatusBadRequest, "validation"},
		{"bad decision", http.MethodPost, "/api/assignment-requests/1/resolve", map[string]string{"decision": "maybe"}, http.StatusBadRequest, "validation"},
		{"unknown assignment", http.MethodGet, "/api/assignment-requests/42", nil, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.path, f.alice.ID, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.kind, decodeError(t, w).Kind)
		})
	}
}

func TestAssignmentFlowOverHTTP(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/assignment-requests", f.otherSup.ID, map[string]interface{}{
		"inspector_id": f.alice.ID,
		"reason":       "moved to district 4",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := decode[entity.AssignmentRequest](t, w)
	assert.Equal(t, entity.AssignmentPending, req.Status)
	path := "/api/assignment-requests/" + strconv.FormatInt(req.ID, 10)

	w = f.do(http.MethodGet, "/api/assignment-requests/pending", f.admin.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]entity.AssignmentRequest](t, w), 1)

	// the peer supervisor cannot decide
	w = f.do(http.MethodPost, path+"/resolve", f.sup.ID, map[string]string{"decision": "approve"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, path+"/resolve", f.admin.ID, map[string]string{"decision": "approve", "notes": "ok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, entity.AssignmentApproved, decode[entity.AssignmentRequest](t, w).Status)

	w = f.do(http.MethodPost, path+"/cancel", f.otherSup.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	updated, err := f.c.Repositories().Person.GetByID(context.Background(), f.alice.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedSupervisorID)
	assert.Equal(t, f.otherSup.ID, *updated.AssignedSupervisorID)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor("validation"))
	assert.Equal(t, http.StatusConflict, statusFor("invalid_transition"))
	assert.Equal(t, http.StatusForbidden, statusFor("authorization"))
	assert.Equal(t, http.StatusNotFound, statusFor("not_found"))
	assert.Equal(t, http.StatusInternalServerError, statusFor("internal"))
}
