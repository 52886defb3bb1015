package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tianlai/party-server/internal/config"
	"github.com/tianlai/party-server/internal/logging"
	"github.com/tianlai/party-server/internal/party"
)

// memoryBackend keeps saved snapshots in memory for handler tests.
type memoryBackend struct {
	state *party.State
	saves int
}

func (m *memoryBackend) Name() string { return "memory" }

func (m *memoryBackend) Load(_ context.Context) (*party.State, error) {
	if m.state == nil {
		return nil, party.ErrSnapshotMissing
	}
	return m.state.Clone(), nil
}

func (m *memoryBackend) Save(_ context.Context, state *party.State) error {
	m.saves++
	m.state = state.Clone()
	return nil
}

func newTestServer(t *testing.T) (*Server, *memoryBackend) {
	t.Helper()
	backend := &memoryBackend{}
	log := logging.New("test", "error")
	store := party.NewStore(party.StoreConfig{Backend: backend, Log: log})
	if err := store.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate() err = %v", err)
	}
	cfg := &config.Config{Port: 3000, AdminPort: 3001, AllowedOrigins: "*"}
	return New(store, cfg, config.ModeFileOnly, log), backend
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestRootAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "GET", "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Fatalf("root body = %v", body)
	}

	rec = doJSON(t, router, "GET", "/health", nil)
	body = decodeBody(t, rec)
	if body["status"] != "healthy" || body["backend"] != "file-only" {
		t.Fatalf("health body = %v", body)
	}
}

func TestHealth_ReportsResolvedBackendMode(t *testing.T) {
	// Credentials are configured but the process degraded to file-only at
	// startup; health must report the mode actually in use.
	backend := &memoryBackend{}
	log := logging.New("test", "error")
	store := party.NewStore(party.StoreConfig{Backend: backend, Log: log})
	if err := store.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate() err = %v", err)
	}
	cfg := &config.Config{
		Port:           3000,
		AdminPort:      3001,
		AllowedOrigins: "*",
		SupabaseURL:    "https://example.supabase.co",
		SupabaseKey:    "service-key",
	}
	srv := New(store, cfg, config.ModeFileOnly, log)

	rec := doJSON(t, srv.Router(), "GET", "/health", nil)
	body := decodeBody(t, rec)
	if body["backend"] != "file-only" {
		t.Fatalf("backend = %v, want file-only after degradation", body["backend"])
	}
}

func TestGetData_ReturnsFullState(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	doJSON(t, router, "POST", "/api/foodies", map[string]string{"name": "Momo"})

	rec := doJSON(t, router, "GET", "/api/data", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var state party.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.Foodies) != 1 || state.Foodies[0] != "Momo" {
		t.Fatalf("foodies = %v", state.Foodies)
	}
}

func TestMergeData_IgnoresUnknownKeys(t *testing.T) {
	srv, backend := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "POST", "/api/data", map[string]any{
		"krystalLikes": 9,
		"mystery":      "ignored",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if backend.state.KrystalLikes != 9 {
		t.Fatalf("krystalLikes = %d, want 9", backend.state.KrystalLikes)
	}
}

func TestAddFoodie_DuplicateIs400(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "POST", "/api/foodies", map[string]string{"name": "Momo"})
	if rec.Code != http.StatusOK {
		t.Fatalf("first add status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("body = %v", body)
	}

	rec = doJSON(t, router, "POST", "/api/foodies", map[string]string{"name": "Momo"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate status = %d, want 400", rec.Code)
	}
}

func TestAddFoodie_MalformedBodyIs400(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/foodies", strings.NewReader("{oops"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpsertDrinker_ResponseSorted(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	doJSON(t, router, "POST", "/api/drinkers", map[string]any{"name": "A", "count": 2})
	rec := doJSON(t, router, "POST", "/api/drinkers", map[string]any{"name": "B", "count": 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Drinkers []party.Drinker `json:"drinkers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Drinkers[0].Name != "B" || resp.Drinkers[1].Name != "A" {
		t.Fatalf("drinkers = %v, want sorted descending", resp.Drinkers)
	}
}

func TestVisit_RecordsClientIP(t *testing.T) {
	srv, backend := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/visit", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if backend.state.Visits != 1 {
		t.Fatalf("visits = %d", backend.state.Visits)
	}
	v := backend.state.VisitHistory[0]
	if v.IP != "203.0.113.7" || v.UserAgent != "test-agent" {
		t.Fatalf("visit = %+v", v)
	}
}

func TestVibeVote_UnknownTagIs400(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "POST", "/api/vibe-votes", map[string]any{
		"name":  "A",
		"vibes": []string{"karaoke"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, "POST", "/api/vibe-votes", map[string]any{
		"name":  "A",
		"vibes": []string{"drinking", "chill"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMemberLikesAndComments(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "POST", "/api/member-likes", map[string]any{"memberId": "m1", "likes": 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("likes status = %d", rec.Code)
	}

	rec = doJSON(t, router, "POST", "/api/member-comments", map[string]any{
		"memberId": "m1",
		"comments": []map[string]any{{"author": "A", "text": "cheers"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("comments status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "POST", "/api/member-comments", map[string]any{
		"memberId": "m1",
		"comments": []map[string]any{{"author": "A", "text": strings.Repeat("x", 201)}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overlong comment status = %d, want 400", rec.Code)
	}
}

// =============================================================================
// Lobbies
// =============================================================================

func TestLobbyScenario(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "POST", "/api/game-lobbies", map[string]string{
		"organizer": "@A",
		"game":      "Mahjong",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Lobby party.Lobby `json:"lobby"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(created.Lobby.Participants) != 1 || created.Lobby.Participants[0] != "@A" {
		t.Fatalf("participants = %v, want organizer auto-joined", created.Lobby.Participants)
	}

	join := fmt.Sprintf("/api/game-lobbies/%s/join", created.Lobby.ID)
	rec = doJSON(t, router, "POST", join, map[string]string{"userName": "@B"})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d: %s", rec.Code, rec.Body.String())
	}

	// Joining twice is a validation failure.
	rec = doJSON(t, router, "POST", join, map[string]string{"userName": "@B"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate join status = %d, want 400", rec.Code)
	}

	del := "/api/game-lobbies/" + created.Lobby.ID
	rec = doJSON(t, router, "DELETE", del, map[string]string{"organizer": "@B"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-organizer delete status = %d, want 403", rec.Code)
	}

	rec = doJSON(t, router, "DELETE", del, map[string]string{"organizer": "@A"})
	if rec.Code != http.StatusOK {
		t.Fatalf("organizer delete status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "GET", "/api/game-lobbies", nil)
	var list struct {
		Lobbies []party.Lobby `json:"lobbies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Lobbies) != 0 {
		t.Fatalf("lobbies = %v, want empty after delete", list.Lobbies)
	}
}

func TestJoinLobby_UnknownIDIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "POST", "/api/game-lobbies/lobby_0/join", map[string]string{"userName": "@B"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteLobby_EmptyBodyIsForbidden(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "POST", "/api/game-lobbies", map[string]string{
		"organizer": "@A",
		"game":      "Poker",
	})
	var created struct {
		Lobby party.Lobby `json:"lobby"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	req := httptest.NewRequest("DELETE", "/api/game-lobbies/"+created.Lobby.ID, nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 when organizer missing", rec2.Code)
	}
}

// =============================================================================
// Stats & Admin
// =============================================================================

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	doJSON(t, router, "POST", "/api/foodies", map[string]string{"name": "A"})
	doJSON(t, router, "POST", "/api/drinkers", map[string]any{"name": "A", "count": 3})
	for i := 0; i < 12; i++ {
		doJSON(t, router, "POST", "/api/visit", nil)
	}

	rec := doJSON(t, router, "GET", "/api/stats", nil)
	var stats party.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalVisits != 12 || stats.FoodiesCount != 1 || stats.TotalDrinks != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(stats.RecentVisits) != 10 {
		t.Fatalf("recentVisits = %d, want 10", len(stats.RecentVisits))
	}
}

func TestAdminExport_AttachmentHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "GET", "/api/admin/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := fmt.Sprintf(`attachment; filename="party-data-%s.json"`, time.Now().UTC().Format("2006-01-02"))
	if got := rec.Header().Get("Content-Disposition"); got != want {
		t.Fatalf("Content-Disposition = %q, want %q", got, want)
	}
	var state party.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("export body is not a state snapshot: %v", err)
	}
}

func TestAdminClear_RestoresDefaults(t *testing.T) {
	srv, backend := newTestServer(t)
	router := srv.Router()

	doJSON(t, router, "POST", "/api/foodies", map[string]string{"name": "Momo"})
	doJSON(t, router, "POST", "/api/like-krystal", nil)

	rec := doJSON(t, router, "POST", "/api/admin/clear", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doJSON(t, router, "GET", "/api/admin/full-data", nil)
	var state party.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(state.Foodies) != 0 || state.KrystalLikes != 0 {
		t.Fatalf("state after clear = %+v", state)
	}
	if backend.state == nil || len(backend.state.Foodies) != 0 {
		t.Fatalf("cleared state was not persisted")
	}
}

// =============================================================================
// Party Scene
// =============================================================================

func createCharacter(t *testing.T, router http.Handler, name string) party.Character {
	t.Helper()
	rec := doJSON(t, router, "POST", "/api/party-scene/characters", map[string]string{
		"displayName": name,
		"avatarUrl":   "https://cdn.example/avatar.png",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create character status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Character party.Character `json:"character"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Character
}

func TestCharacterLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	ch := createCharacter(t, router, "Tianlai")
	if ch.BodyStyle != party.BodyStyleCasual {
		t.Fatalf("default bodyStyle = %s", ch.BodyStyle)
	}

	base := "/api/party-scene/characters/" + ch.ID

	rec := doJSON(t, router, "PATCH", base, map[string]any{
		"action":   party.ActionDance,
		"position": map[string]int{"x": 10, "y": 20},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "POST", base+"/like", nil)
	body := decodeBody(t, rec)
	if body["likes"] != float64(1) {
		t.Fatalf("likes = %v", body["likes"])
	}

	rec = doJSON(t, router, "POST", base+"/messages", map[string]string{"content": "hi all"})
	if rec.Code != http.StatusOK {
		t.Fatalf("message status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "GET", base, nil)
	var got struct {
		Character party.Character `json:"character"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Character.Action != party.ActionDance || got.Character.Likes != 1 || len(got.Character.Messages) != 1 {
		t.Fatalf("character = %+v", got.Character)
	}

	rec = doJSON(t, router, "DELETE", base, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, router, "GET", base, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestCreateCharacter_Validation(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "POST", "/api/party-scene/characters", map[string]string{
		"displayName": strings.Repeat("n", 21),
		"avatarUrl":   "u",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overlong name status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, "POST", "/api/party-scene/characters", map[string]string{
		"displayName": "A",
		"avatarUrl":   "u",
		"transport":   "rocket",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown transport status = %d, want 400", rec.Code)
	}
}

func TestListCharacters_Count(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	createCharacter(t, router, "A")
	createCharacter(t, router, "B")

	rec := doJSON(t, router, "GET", "/api/party-scene/characters", nil)
	body := decodeBody(t, rec)
	if body["count"] != float64(2) {
		t.Fatalf("count = %v, want 2", body["count"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, "DELETE", "/api/foodies", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
