package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t, newAuthServer(t))
	r := gin.New()
	RegisterRoutes(r.Group("/api"), NewHandler(svc))

	steps := []struct {
		name     string
		method   string
		path     string
		body     string
		want     int
		wantBody string
	}{
		{name: "NoSession", method: http.MethodGet, path: "/api/session", want: http.StatusUnauthorized},
		{name: "BadLoginBody", method: http.MethodPost, path: "/api/session/login", body: `{"email": "nope"}`, want: http.StatusBadRequest},
		{name: "WrongPassword", method: http.MethodPost, path: "/api/session/login", body: `{"email": "a@b.c", "password": "x"}`, want: http.StatusUnauthorized},
		{name: "Login", method: http.MethodPost, path: "/api/session/login", body: `{"email": "a@b.c", "password": "pw"}`, want: http.StatusOK, wantBody: `"userId":"42"`},
		{name: "Current", method: http.MethodGet, path: "/api/session", want: http.StatusOK, wantBody: `"username":"ann"`},
		{name: "Logout", method: http.MethodPost, path: "/api/session/logout", want: http.StatusNoContent},
		{name: "LogoutAgain", method: http.MethodPost, path: "/api/session/logout", want: http.StatusUnauthorized},
		{name: "RestoreMissingToken", method: http.MethodPost, path: "/api/session/restore", body: `{}`, want: http.StatusBadRequest},
		{name: "Restore", method: http.MethodPost, path: "/api/session/restore", body: `{"token": "tok-7"}`, want: http.StatusOK, wantBody: `"userId":"7"`},
	}
	for _, st := range steps {
		req := httptest.NewRequest(st.method, st.path, strings.NewReader(st.body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != st.want {
			t.Fatalf("%s: %s %s = %d, want %d: %s", st.name, st.method, st.path, w.Code, st.want, w.Body)
		}
		if !strings.Contains(w.Body.String(), st.wantBody) {
			t.Errorf("%s: body %s does not contain %s", st.name, w.Body, st.wantBody)
		}
		if strings.Contains(w.Body.String(), "tok-") {
			t.Errorf("%s: token leaked in body %s", st.name, w.Body)
		}
	}
}
