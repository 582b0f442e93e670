package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/swctools/swctools/internal/config"
	"github.com/swctools/swctools/internal/db"
	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/protocol"
	"github.com/swctools/swctools/internal/session"
	"github.com/swctools/swctools/internal/testutil/fakeserver"
	"github.com/swctools/swctools/internal/testutil/testlog"
)

func newTestServer(t *testing.T, fake *fakeserver.Server, cfg config.APIConfig) (*Server, *db.Store) {
	t.Helper()
	store, err := db.NewStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	runner := session.NewLocked(session.New(session.Config{RetryCount: 2}, fake))
	return NewServer(cfg, runner, store, events.NewEventBus(), "test"), store
}

func do(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestPublicRoutes(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t, fakeserver.New(), config.APIConfig{AuthToken: "secret"})

	rec := do(t, s, http.MethodGet, "/api/public/ping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ping code=%d", rec.Code)
	}
	if got := rec.Header().Get("Server"); got != "swctools" {
		t.Fatalf("server header=%q", got)
	}

	rec = do(t, s, http.MethodGet, "/api/public/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code=%d", rec.Code)
	}
	body := decode(t, rec)
	sess, ok := body["session"].(map[string]any)
	if !ok || sess["live"] != false || body["version"] != "test" {
		t.Fatalf("status body=%v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	testlog.Start(t)
	fake := fakeserver.New()
	s, _ := newTestServer(t, fake, config.APIConfig{AuthToken: "secret"})

	if rec := do(t, s, http.MethodGet, "/api/player", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token code=%d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/player", "", "Authorization", "Bearer nope"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token code=%d", rec.Code)
	}
	if fake.Total() != 0 {
		t.Fatalf("server contacted without a valid token")
	}

	rec := do(t, s, http.MethodGet, "/api/player", "", "Authorization", "Bearer secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("player code=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["playerId"]; got != fakeserver.GeneratedPlayerID {
		t.Fatalf("playerId=%v", got)
	}
}

func TestBuildingsAndSquadSearch(t *testing.T) {
	testlog.Start(t)
	fake := fakeserver.New()
	fake.Sequence(protocol.ActionSearchSquads, []protocol.Squad{{ID: "sq1", Name: "Rogue"}}, protocol.StatusTimestampTooEarly)
	s, _ := newTestServer(t, fake, config.APIConfig{})

	rec := do(t, s, http.MethodGet, "/api/buildings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("buildings code=%d", rec.Code)
	}
	var buildings []protocol.Building
	if err := json.Unmarshal(rec.Body.Bytes(), &buildings); err != nil || len(buildings) != len(fakeserver.DefaultBuildings) {
		t.Fatalf("buildings=%s err=%v", rec.Body.String(), err)
	}

	if rec := do(t, s, http.MethodGet, "/api/squads?q=", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty search code=%d", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/squads?q=rogue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search code=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := fake.Calls(protocol.ActionSearchSquads); got != 2 {
		t.Fatalf("search calls=%d want 2", got)
	}
	status := decode(t, do(t, s, http.MethodGet, "/api/public/status", ""))
	if drift := status["session"].(map[string]any)["drift_offset"]; drift != float64(1) {
		t.Fatalf("drift=%v want 1", drift)
	}
}

func TestSessionErrorsMapToStatusCodes(t *testing.T) {
	testlog.Start(t)

	fake := fakeserver.New()
	fake.Always(protocol.ActionGetSquadDetails, 1500)
	s, _ := newTestServer(t, fake, config.APIConfig{})
	rec := do(t, s, http.MethodGet, "/api/squads/sq1", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("fatal status code=%d", rec.Code)
	}
	if got := decode(t, rec)["status"]; got != float64(1500) {
		t.Fatalf("status=%v", got)
	}

	fake = fakeserver.New()
	fake.Always(protocol.ActionGetAuthToken, protocol.StatusAuthenticationFailed)
	s, _ = newTestServer(t, fake, config.APIConfig{})
	rec = do(t, s, http.MethodGet, "/api/war/participant", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("auth failure code=%d", rec.Code)
	}
	if got := decode(t, rec)["step"]; got != session.StepAuthToken {
		t.Fatalf("step=%v", got)
	}
}

func TestLayoutValidation(t *testing.T) {
	testlog.Start(t)
	fake := fakeserver.New()
	fake.Sequence(protocol.ActionUpdateLayout, map[string]protocol.Building{"bld-hq": {Key: "hq", UID: "bld-hq", X: 3, Z: 4}})
	s, _ := newTestServer(t, fake, config.APIConfig{})

	if rec := do(t, s, http.MethodPost, "/api/layout", `{"positions":{}}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty positions code=%d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/layout", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body code=%d", rec.Code)
	}
	if fake.Total() != 0 {
		t.Fatalf("invalid requests reached the server")
	}

	rec := do(t, s, http.MethodPost, "/api/layout", `{"positions":{"bld-hq":{"x":3,"z":4}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("layout code=%d body=%s", rec.Code, rec.Body.String())
	}
	if _, ok := decode(t, rec)["bld-hq"]; !ok {
		t.Fatalf("layout body=%s", rec.Body.String())
	}
}

func TestNeighborVisitIsArchived(t *testing.T) {
	testlog.Start(t)
	fake := fakeserver.New()
	fake.Handle(protocol.ActionVisitNeighbor, func(c fakeserver.Call) (protocol.StatusCode, any) {
		return protocol.StatusSuccess, protocol.PlayerWrapper{Player: protocol.Player{PlayerID: c.Arg("neighborId"), Name: "Neighbor"}}
	})
	s, store := newTestServer(t, fake, config.APIConfig{})

	rec := do(t, s, http.MethodGet, "/api/neighbors/n-42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("visit code=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["playerId"]; got != "n-42" {
		t.Fatalf("playerId=%v", got)
	}

	stored, err := store.ListSnapshots(db.SnapshotNeighbor, 10)
	if err != nil || len(stored) != 1 || stored[0].SubjectID != "n-42" {
		t.Fatalf("stored=%+v err=%v", stored, err)
	}

	rec = do(t, s, http.MethodGet, "/api/snapshots?kind=neighbor", "")
	if rec.Code != http.StatusOK || decode(t, rec)["count"] != float64(1) {
		t.Fatalf("snapshots code=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, http.MethodGet, "/api/snapshots?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit code=%d", rec.Code)
	}
}

func TestRefreshReinitializes(t *testing.T) {
	testlog.Start(t)
	fake := fakeserver.New()
	s, _ := newTestServer(t, fake, config.APIConfig{})

	for i := 0; i < 2; i++ {
		if rec := do(t, s, http.MethodPost, "/api/session/refresh", ""); rec.Code != http.StatusOK {
			t.Fatalf("refresh %d code=%d", i+1, rec.Code)
		}
	}
	if got := fake.Calls(protocol.ActionGeneratePlayer); got != 1 {
		t.Fatalf("generate calls=%d want 1", got)
	}
	if got := fake.Calls(protocol.ActionPlayerLogin); got != 2 {
		t.Fatalf("login calls=%d want 2", got)
	}
}

func TestRateLimiter(t *testing.T) {
	testlog.Start(t)
	now := time.Unix(1700000000, 0)
	rl := NewRateLimiter(1)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("burst should allow two requests")
	}
	if rl.Allow("a") {
		t.Fatalf("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatalf("clients are limited independently")
	}
	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Fatalf("bucket should refill")
	}
	if !NewRateLimiter(0).Allow("a") {
		t.Fatalf("zero rate disables limiting")
	}
}

func TestExtractBearerToken(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"":               "",
		"Bearer abc":     "abc",
		"bearer  abc ":   "abc",
		"Basic abc":      "",
		"Bearerabc":      "",
	}
	for in, want := range cases {
		if got := extractBearerToken(in); got != want {
			t.Fatalf("extractBearerToken(%q)=%q want %q", in, got, want)
		}
	}
}
