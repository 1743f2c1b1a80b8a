package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"client/internal/providers/remote"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

type testhook struct {
	name string
	log  *[]string
	mu   *sync.Mutex
}

func (h testhook) SessionStarted(_ context.Context, s Session) {
	h.mu.Lock()
	*h.log = append(*h.log, h.name+":start:"+s.UserID)
	h.mu.Unlock()
}

func (h testhook) SessionEnded(context.Context) {
	h.mu.Lock()
	*h.log = append(*h.log, h.name+":end")
	h.mu.Unlock()
}

func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/direct/auth/login", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) != `{"email":"a@b.c","password":"pw"}` {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"message": "Invalid credentials"}`)
			return
		}
		io.WriteString(w, `{"_id": "42", "username": "ann", "email": "a@b.c", "token": "tok-42"}`)
	})
	mux.HandleFunc("/direct/auth/check", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-7" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"message": "Invalid token. Please log in again."}`)
			return
		}
		io.WriteString(w, `{"_id": "7", "username": "bob", "email": "b@b.c"}`)
	})
	mux.HandleFunc("/direct/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, srv *httptest.Server) (Service, *[]string) {
	t.Helper()
	var svc Service
	client := remote.NewClient(remote.Options{
		BaseURL: srv.URL,
		Tokens:  remote.TokenFunc(func() string { return svc.Token() }),
	}, zaptest.NewLogger(t))
	svc = NewService(client, "/direct", nil, zaptest.NewLogger(t))

	var (
		log []string
		mu  sync.Mutex
	)
	svc.AddHook(testhook{name: "timeline", log: &log, mu: &mu})
	svc.AddHook(testhook{name: "realtime", log: &log, mu: &mu})
	return svc, &log
}

func TestService_LoginLogout(t *testing.T) {
	svc, log := newTestService(t, newAuthServer(t))
	ctx := context.Background()

	if _, ok := svc.Current(); ok {
		t.Fatal("Current() reported a session before login")
	}
	if err := svc.Logout(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Logout() without session = %v, want ErrNoSession", err)
	}

	sess, err := svc.Login(ctx, "a@b.c", "pw")
	if err != nil {
		t.Fatalf("Login() = %v", err)
	}
	if sess.UserID != "42" || sess.Token != "tok-42" || svc.Token() != "tok-42" {
		t.Errorf("Login() session = %+v", sess)
	}

	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("Logout() = %v", err)
	}
	if svc.Token() != "" {
		t.Errorf("Token() = %q after logout", svc.Token())
	}

	want := []string{"timeline:start:42", "realtime:start:42", "realtime:end", "timeline:end"}
	if diff := cmp.Diff(want, *log); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}
}

func TestService_Restore(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		wantUser   string
		wantStatus int
		wantErr    error
	}{
		{name: "Valid", token: "tok-7", wantUser: "7"},
		{name: "Invalid", token: "nope", wantStatus: http.StatusUnauthorized},
		{name: "Empty", token: "", wantErr: ErrNoSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, log := newTestService(t, newAuthServer(t))
			sess, err := svc.Restore(context.Background(), tt.token)

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Restore() error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantStatus != 0:
				var se *remote.StatusError
				if !errors.As(err, &se) || se.Code != tt.wantStatus {
					t.Fatalf("Restore() error = %v, want status %d", err, tt.wantStatus)
				}
				if len(*log) != 0 {
					t.Errorf("hooks ran for a failed restore: %v", *log)
				}
			default:
				if err != nil {
					t.Fatalf("Restore() = %v", err)
				}
				if sess.UserID != tt.wantUser || sess.Token != tt.token {
					t.Errorf("Restore() session = %+v", sess)
				}
			}
		})
	}
}

func TestService_SecondLoginEndsFirst(t *testing.T) {
	svc, log := newTestService(t, newAuthServer(t))
	ctx := context.Background()

	if _, err := svc.Restore(ctx, "tok-7"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(ctx, "a@b.c", "pw"); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"timeline:start:7", "realtime:start:7",
		"realtime:end", "timeline:end",
		"timeline:start:42", "realtime:start:42",
	}
	if diff := cmp.Diff(want, *log); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}
}

func TestService_CloseKeepsRemoteSession(t *testing.T) {
	var logouts int
	srv := newAuthServer(t)
	mux := srv.Config.Handler.(*http.ServeMux)
	counting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/direct/auth/logout" {
			logouts++
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(counting.Close)
	svc, log := newTestService(t, counting)
	ctx := context.Background()

	svc.Close(ctx)
	if len(*log) != 0 {
		t.Fatalf("Close() without session ran hooks: %v", *log)
	}

	if _, err := svc.Restore(ctx, "tok-7"); err != nil {
		t.Fatal(err)
	}
	svc.Close(ctx)

	if _, ok := svc.Current(); ok {
		t.Error("Current() reported a session after Close")
	}
	if logouts != 0 {
		t.Errorf("Close() called the remote logout %d times", logouts)
	}
	want := []string{"timeline:start:7", "realtime:start:7", "realtime:end", "timeline:end"}
	if diff := cmp.Diff(want, *log); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}
}
