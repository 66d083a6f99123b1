package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/system-design/connect-four/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOrigins = []string{"https://front4p.vercel.app", "http://localhost:3000"}

func setupHandler() (http.Handler, *internal.Registry) {
	logger := testLogger()
	registry := internal.NewRegistry(logger)
	handler := internal.NewHandler(registry, testOrigins, logger)
	return handler.Routes(), registry
}

// TestHandler_Liveness 測試存活檢查
func TestHandler_Liveness(t *testing.T) {
	routes, _ := setupHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, internal.LivenessMessage, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

// TestHandler_UnknownPath 測試未定義的路徑
func TestHandler_UnknownPath(t *testing.T) {
	routes, _ := setupHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	w = httptest.NewRecorder()
	routes.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// TestHandler_Health 測試健康檢查
func TestHandler_Health(t *testing.T) {
	routes, _ := setupHandler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.NotZero(t, resp["time"])
}

// TestHandler_Stats 測試統計資訊
func TestHandler_Stats(t *testing.T) {
	routes, registry := setupHandler()

	registry.Join("A", "x", nil)
	registry.Join("A", "y", nil)
	registry.Join("B", "z", nil)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		TotalRooms   int                    `json:"total_rooms"`
		TotalPlayers int                    `json:"total_players"`
		ByStatus     map[string]int         `json:"by_status"`
		Rooms        []internal.RoomSummary `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.TotalRooms)
	assert.Equal(t, 3, resp.TotalPlayers)
	assert.Equal(t, 2, resp.ByStatus["in_progress"])
	require.Len(t, resp.Rooms, 2)
	assert.Equal(t, "A", resp.Rooms[0].ID)
	assert.Equal(t, 2, resp.Rooms[0].Participants)
}

// TestHandler_CORS 測試 CORS
func TestHandler_CORS(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		origin         string
		expectedStatus int
		expectedOrigin string
	}{
		{
			name:           "allowed origin",
			method:         http.MethodGet,
			origin:         "http://localhost:3000",
			expectedStatus: http.StatusOK,
			expectedOrigin: "http://localhost:3000",
		},
		{
			name:           "disallowed origin gets no cors headers",
			method:         http.MethodGet,
			origin:         "http://evil.example",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "no origin",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "preflight allowed",
			method:         http.MethodOptions,
			origin:         "https://front4p.vercel.app",
			expectedStatus: http.StatusNoContent,
			expectedOrigin: "https://front4p.vercel.app",
		},
		{
			name:           "preflight disallowed",
			method:         http.MethodOptions,
			origin:         "http://evil.example",
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routes, _ := setupHandler()

			req := httptest.NewRequest(tt.method, "/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			routes.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.expectedOrigin != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		origin   string
		expected bool
	}{
		{name: "empty origin", allowed: testOrigins, origin: "", expected: true},
		{name: "exact match", allowed: testOrigins, origin: "http://localhost:3000", expected: true},
		{name: "case insensitive", allowed: testOrigins, origin: "HTTPS://FRONT4P.VERCEL.APP", expected: true},
		{name: "trailing slash in list", allowed: []string{"http://localhost:3000/"}, origin: "http://localhost:3000", expected: true},
		{name: "other port", allowed: testOrigins, origin: "http://localhost:3001", expected: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://anything.example", expected: true},
		{name: "empty list", allowed: nil, origin: "http://localhost:3000", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, internal.OriginAllowed(tt.allowed, tt.origin))
		})
	}
}

// TestNewRouter 測試 WebSocket 入口只接受升級請求
func TestNewRouter(t *testing.T) {
	logger := testLogger()
	registry := internal.NewRegistry(logger)
	hub := internal.NewWebSocketHub(internal.HubOptionsFromConfig(internal.DefaultConfig()), logger)
	router := internal.NewRouter(internal.NewHandler(registry, testOrigins, logger), hub)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, hub.ConnectionCount())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, internal.LivenessMessage, w.Body.String())
}
