package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tableservice-platform/internal/abuse"
	"tableservice-platform/internal/auth"
	"tableservice-platform/internal/calls"
	"tableservice-platform/internal/config"
	"tableservice-platform/internal/realtime"
	"tableservice-platform/internal/reporting"
	"tableservice-platform/internal/silence"
	"tableservice-platform/internal/tables"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	h        Handlers
	router   *gin.Engine
	calls    *calls.MemoryRepo
	silences *silence.MemoryRepo
	disp     *realtime.Dispatcher
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		calls:    calls.NewMemoryRepo(),
		silences: silence.NewMemoryRepo(),
		now:      time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	dir := tables.NewMemoryDirectory(
		tables.Table{ID: "T1", BusinessID: "B1", NotificationsEnabled: true, AssignedStaffID: "S1"},
		tables.Table{ID: "T2", BusinessID: "B1", NotificationsEnabled: false, AssignedStaffID: "S1"},
		tables.Table{ID: "T9", BusinessID: "B2", NotificationsEnabled: true, AssignedStaffID: "S9"},
	)

	hub := realtime.NewHub(16)
	f.disp = realtime.NewDispatcher(hub)
	f.disp.Now = clock
	t.Cleanup(f.disp.Wait)

	sil := silence.NewService(f.silences)
	sil.Publisher = f.disp
	sil.Now = clock

	blocks := abuse.NewMemoryOriginBlocks(abuse.OriginBlock{OriginID: "10.9.9.9", BusinessID: "B1", Active: true})
	guard := abuse.NewGuard(blocks, abuse.NewHistoryCounter(f.calls, time.Minute), sil,
		abuse.Policy{Threshold: 5, Window: time.Minute})
	guard.Now = clock

	mgr := calls.NewManager(f.calls, dir)
	mgr.Guard = guard
	mgr.Silences = sil
	mgr.Dispatcher = f.disp
	mgr.Now = clock
	var n atomic.Int32
	mgr.NewID = func() string { return fmt.Sprintf("call-%d", n.Add(1)) }

	am, err := auth.NewManager(config.AuthConfig{
		JWTSecret: "secret", JWTIssuer: "issuer", JWTAudience: "aud",
		AccessTokenTTL: time.Hour, RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	f.h = Handlers{
		Auth: am, Calls: mgr, Tables: dir, Silences: sil, Hub: hub,
		Reports: reporting.NewService(f.calls), Now: clock,
	}

	r := gin.New()
	r.POST("/tables/:table_id/calls", f.h.CreateCall)
	r.GET("/ws", f.h.Subscribe)
	staff := r.Group("/", identityFromHeaders)
	staff.GET("/calls/:call_id", f.h.GetCall)
	staff.POST("/calls/:call_id/acknowledge", f.h.AcknowledgeCall)
	staff.POST("/calls/:call_id/complete", f.h.CompleteCall)
	staff.POST("/calls/:call_id/cancel", f.h.CancelCall)
	staff.GET("/tables/:table_id/status", f.h.TableStatus)
	staff.POST("/tables/:table_id/silence", f.h.SilenceTable)
	staff.DELETE("/tables/:table_id/silence", f.h.UnsilenceTable)
	staff.GET("/summary", f.h.CallsSummary)
	f.router = r
	return f
}

// identityFromHeaders stands in for the token middleware.
func identityFromHeaders(c *gin.Context) {
	ctx := auth.WithIdentity(c.Request.Context(),
		c.GetHeader("X-Staff"), c.GetHeader("X-Business"), c.GetHeader("X-Role"))
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

type caller struct{ staff, business, role string }

var (
	waiterS1  = caller{"S1", "B1", "waiter"}
	waiterS2  = caller{"S2", "B1", "waiter"}
	managerB1 = caller{"M1", "B1", "manager"}
	managerB2 = caller{"M2", "B2", "manager"}
)

func (f *fixture) do(t *testing.T, method, path string, as *caller, body any, remoteAddr string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req.ContentLength = 0
	}
	req.Header.Set("Content-Type", "application/json")
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	if as != nil {
		req.Header.Set("X-Staff", as.staff)
		req.Header.Set("X-Business", as.business)
		req.Header.Set("X-Role", as.role)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func (f *fixture) create(t *testing.T, table string) string {
	t.Helper()
	code, out := f.do(t, http.MethodPost, "/tables/"+table+"/calls", nil, map[string]any{"message": "menu please"}, "1.2.3.4:5555")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, out["success"])
	return out["call"].(map[string]any)["id"].(string)
}

func TestCreateCall_Success(t *testing.T) {
	f := newFixture(t)
	code, out := f.do(t, http.MethodPost, "/tables/T1/calls", nil, map[string]any{"message": "menu please"}, "1.2.3.4:5555")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, calls.MsgCallCreated, out["message"])
	call := out["call"].(map[string]any)
	assert.Equal(t, "pending", call["status"])
	assert.Equal(t, "S1", call["staff_id"])
	assert.NotContains(t, out, "blocked")
}

func TestCreateCall_BlockedOriginLooksLikeSuccess(t *testing.T) {
	f := newFixture(t)
	code, out := f.do(t, http.MethodPost, "/tables/T1/calls", nil, nil, "10.9.9.9:4000")

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])
	assert.Contains(t, out, "call")
	assert.Nil(t, out["call"])
	assert.NotContains(t, out, "blocked")

	n, err := f.calls.CountSince(context.Background(), "T1", f.now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateCall_Unavailable(t *testing.T) {
	f := newFixture(t)
	for _, table := range []string{"T2", "nope"} {
		code, out := f.do(t, http.MethodPost, "/tables/"+table+"/calls", nil, nil, "1.2.3.4:1")
		require.Equal(t, http.StatusOK, code, table)
		assert.Equal(t, false, out["success"], table)
		assert.Equal(t, calls.MsgUnavailable, out["message"], table)
	}
}

func TestCreateCall_InvalidJSON(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/tables/T1/calls", strings.NewReader("{"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransitions_StatusMapping(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "T1")

	code, out := f.do(t, http.MethodPost, "/calls/"+id+"/acknowledge", &waiterS2, nil, "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, calls.MsgNotAuthorized, out["message"])

	f.now = f.now.Add(30 * time.Second)
	code, out = f.do(t, http.MethodPost, "/calls/"+id+"/acknowledge", &waiterS1, nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "acknowledged", out["call"].(map[string]any)["status"])

	code, out = f.do(t, http.MethodPost, "/calls/"+id+"/acknowledge", &waiterS1, nil, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, calls.MsgAlreadyHandled, out["message"])

	f.now = f.now.Add(60 * time.Second)
	code, out = f.do(t, http.MethodPost, "/calls/"+id+"/complete", &waiterS1, nil, "")
	require.Equal(t, http.StatusOK, code)
	m := out["metrics"].(map[string]any)
	assert.InDelta(t, 30.0, m["response_time_seconds"], 0.001)
	assert.InDelta(t, 90.0, m["total_time_seconds"], 0.001)

	code, _ = f.do(t, http.MethodPost, "/calls/missing/complete", &waiterS1, nil, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCancelCall_BusinessScoped(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "T1")

	code, _ := f.do(t, http.MethodPost, "/calls/"+id+"/cancel", &managerB2, map[string]string{"reason": "x"}, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, out := f.do(t, http.MethodPost, "/calls/"+id+"/cancel", &managerB1, map[string]string{"reason": "guest left"}, "")
	require.Equal(t, http.StatusOK, code)
	call := out["call"].(map[string]any)
	assert.Equal(t, "cancelled", call["status"])
	assert.Equal(t, "guest left", call["cancel_reason"])

	code, _ = f.do(t, http.MethodPost, "/calls/"+id+"/acknowledge", &waiterS1, nil, "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestGetCall_HidesOtherBusinesses(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "T1")

	code, out := f.do(t, http.MethodGet, "/calls/"+id, &waiterS1, nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, out["call"].(map[string]any)["id"])

	code, _ = f.do(t, http.MethodGet, "/calls/"+id, &managerB2, nil, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSilence_RoundTrip(t *testing.T) {
	f := newFixture(t)

	code, out := f.do(t, http.MethodPost, "/tables/T1/silence", &managerB1, map[string]string{"notes": "private party"}, "")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, out["created"])

	code, out = f.do(t, http.MethodPost, "/tables/T1/silence", &managerB1, nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["created"])

	code, out = f.do(t, http.MethodGet, "/tables/T1/status", &waiterS1, nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["silenced"])

	code, out = f.do(t, http.MethodPost, "/tables/T1/calls", nil, nil, "1.2.3.4:1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["success"])

	code, _ = f.do(t, http.MethodDelete, "/tables/T1/silence", &managerB1, nil, "")
	require.Equal(t, http.StatusOK, code)

	code, out = f.do(t, http.MethodDelete, "/tables/T1/silence", &managerB1, nil, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, out["success"])

	f.create(t, "T1")
}

func TestSilence_Errors(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, "/tables/T1/silence", &managerB2, nil, "")
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(t, http.MethodPost, "/tables/missing/silence", &managerB1, nil, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/tables/T1/status", &managerB2, nil, "")
	assert.Equal(t, http.StatusForbidden, code)
}

func TestCallsSummary(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "T1")
	f.create(t, "T1")
	f.now = f.now.Add(20 * time.Second)
	f.do(t, http.MethodPost, "/calls/"+id+"/acknowledge", &waiterS1, nil, "")

	code, out := f.do(t, http.MethodGet, "/summary", &managerB1, nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, out["total_calls"])
	assert.Equal(t, 1.0, out["pending_calls"])
	assert.InDelta(t, 20.0, out["average_response_seconds"], 0.001)

	// a manager cannot read another business
	code, out = f.do(t, http.MethodGet, "/summary?business_id=B1", &managerB2, nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "B2", out["business_id"])
	assert.Equal(t, 0.0, out["total_calls"])

	code, _ = f.do(t, http.MethodGet, "/summary?from=yesterday", &managerB1, nil, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSubscribe_Authorization(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?channel="

	pair, err := f.h.Auth.IssuePair(f.now, "S1", "B1", "waiter")
	require.NoError(t, err)

	for _, tc := range []struct {
		name    string
		channel string
		token   string
		want    int
	}{
		{"bad channel", "kitchen:K1", "", http.StatusBadRequest},
		{"unknown table", "table:nope", "", http.StatusNotFound},
		{"waiter without token", "waiter:S1", "", http.StatusUnauthorized},
		{"other waiter", "waiter:S2", pair.AccessToken, http.StatusForbidden},
		{"other business", "business:B2", pair.AccessToken, http.StatusForbidden},
		{"garbage token", "business:B1", "nope", http.StatusUnauthorized},
	} {
		url := base + tc.channel
		if tc.token != "" {
			url += "&access_token=" + tc.token
		}
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err, tc.name)
		require.NotNil(t, resp, tc.name)
		assert.Equal(t, tc.want, resp.StatusCode, tc.name)
		resp.Body.Close()
	}
}

func TestSubscribe_WaiterReceivesCall(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	pair, err := f.h.Auth.IssuePair(f.now, "S1", "B1", "waiter")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?channel=waiter:S1&access_token=" + pair.AccessToken
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return f.h.Hub.Subscribers("waiter:S1") == 1 }, time.Second, 5*time.Millisecond)
	id := f.create(t, "T1")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev realtime.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, realtime.EventCallCreated, ev.Type)
	assert.Equal(t, id, ev.Call.CallID)
	assert.Equal(t, "menu please", ev.Call.Message)
}

func TestMayWatch(t *testing.T) {
	c := auth.Claims{StaffID: "S1", BusinessID: "B1", Role: "waiter"}
	assert.True(t, mayWatch(c, realtime.KindWaiter, "S1"))
	assert.False(t, mayWatch(c, realtime.KindWaiter, "S2"))
	assert.True(t, mayWatch(c, realtime.KindBusiness, "B1"))
	assert.False(t, mayWatch(c, realtime.KindBusiness, "B2"))
	assert.True(t, mayWatch(auth.Claims{Role: "super_admin"}, realtime.KindBusiness, "B2"))
}
