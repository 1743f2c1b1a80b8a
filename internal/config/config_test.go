package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://api.local:8080/")

	cfg := LoadConfig()

	if cfg.APIBaseURL != "http://api.local:8080" {
		t.Errorf("APIBaseURL = %q, want trailing slash trimmed", cfg.APIBaseURL)
	}
	if cfg.MediaBaseURL != cfg.APIBaseURL || cfg.SocketURL != cfg.APIBaseURL {
		t.Errorf("media/socket urls should default to the api base, got %q and %q", cfg.MediaBaseURL, cfg.SocketURL)
	}
	if cfg.PushProtocol != "socketio" {
		t.Errorf("PushProtocol = %q, want socketio", cfg.PushProtocol)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.SendTimeout <= cfg.ReadTimeout {
		t.Errorf("SendTimeout %s should exceed ReadTimeout %s", cfg.SendTimeout, cfg.ReadTimeout)
	}
	if diff := cmp.Diff([]string{"audio/webm", "audio/ogg"}, cfg.RecorderTypes); diff != "" {
		t.Errorf("RecorderTypes mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("RETRY_DELAY", "250ms")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("RECORDER_TYPES", " audio/ogg , audio/wav ")
	t.Setenv("READ_TIMEOUT", "not-a-duration")

	cfg := LoadConfig()

	if cfg.RetryDelay != 250*time.Millisecond {
		t.Errorf("RetryDelay = %s, want 250ms", cfg.RetryDelay)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %s, want fallback 10s", cfg.ReadTimeout)
	}
	if diff := cmp.Diff([]string{"audio/ogg", "audio/wav"}, cfg.RecorderTypes); diff != "" {
		t.Errorf("RecorderTypes mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "Valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "BadProtocol",
			mutate:  func(c *Config) { c.PushProtocol = "longpoll" },
			wantErr: "PushProtocol",
		},
		{
			name:    "SendTimeoutNotLonger",
			mutate:  func(c *Config) { c.SendTimeout = c.ReadTimeout },
			wantErr: "SendTimeout",
		},
		{
			name:    "BadBaseURL",
			mutate:  func(c *Config) { c.APIBaseURL = "not a url" },
			wantErr: "APIBaseURL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_APIPath(t *testing.T) {
	cfg := Config{APIPrefix: "/direct/"}
	if got := cfg.APIPath("/messages/7"); got != "/direct/messages/7" {
		t.Errorf("APIPath = %q", got)
	}
}
