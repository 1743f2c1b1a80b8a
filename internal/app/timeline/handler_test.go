package timeline

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"client/internal/app/message"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, s *Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api"), NewHandler(s, "http://media"))
	return r
}

func TestHandler_ListResolvesMedia(t *testing.T) {
	s := newTestStore(t, nil)
	s.Append(message.SourceResponse, userMsg, agentMsg)

	w := httptest.NewRecorder()
	newTestRouter(t, s).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/timeline", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GET /timeline = %d", w.Code)
	}
	var got ListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 2 || got.Messages[0].ImageURL != "http://media/uploads/a.png" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.AwaitingReply {
		t.Errorf("AwaitingReply = true with the agent reply last")
	}
	if s.Messages()[0].ImageURL != "/uploads/a.png" {
		t.Errorf("List mutated the stored entry")
	}
}

func TestHandler_Refresh(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		fetch  func(t *testing.T, userID string) ([]message.Message, error)
		want   int
	}{
		{name: "OK", userID: "u1", fetch: fixed(userMsg), want: http.StatusOK},
		{name: "NoSession", want: http.StatusUnauthorized},
		{
			name:   "RemoteError",
			userID: "u1",
			fetch: func(t *testing.T, userID string) ([]message.Message, error) {
				return nil, errors.New("boom")
			},
			want: http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, &testsource{fetch: tt.fetch})
			s.userID = tt.userID

			w := httptest.NewRecorder()
			newTestRouter(t, s).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/timeline/refresh", nil))
			if w.Code != tt.want {
				t.Errorf("POST /timeline/refresh = %d, want %d: %s", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestHandler_Rate(t *testing.T) {
	tests := []struct {
		name string
		id   string
		body string
		want int
	}{
		{name: "OK", id: "1-bot", body: `{"rating": 4}`, want: http.StatusOK},
		{name: "OutOfRange", id: "1-bot", body: `{"rating": 6}`, want: http.StatusBadRequest},
		{name: "Unknown", id: "9-bot", body: `{"rating": 3}`, want: http.StatusNotFound},
		{name: "Provisional", id: "local-abc", body: `{"rating": 3}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, &testsource{
				rate: func(t *testing.T, messageID string, rating int) error { return nil },
			})
			s.Append(message.SourceResponse, userMsg, agentMsg)

			req := httptest.NewRequest(http.MethodPost, "/api/timeline/"+tt.id+"/rating", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			newTestRouter(t, s).ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("POST rating = %d, want %d: %s", w.Code, tt.want, w.Body)
			}
			if tt.want == http.StatusOK {
				if r := s.Messages()[1].Rating; r == nil || *r != 4 {
					t.Errorf("rating = %v, want 4", r)
				}
			}
		})
	}
}
