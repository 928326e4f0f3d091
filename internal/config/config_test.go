package config

import (
	"strings"
	"testing"
	"time"
)

// setRequired sets the minimum environment Load needs.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("POWERDECK_SSH_HOST", "192.168.1.40")
	t.Setenv("POWERDECK_SSH_USER", "mame")
	t.Setenv("POWERDECK_SSH_PASSWORD", "hunter2")
	t.Setenv("POWERDECK_TARGET_MAC", "aa:bb:cc:dd:ee:ff")
	t.Setenv("POWERDECK_BROADCAST_IP", "192.168.1.255")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg := Load()

	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.PowerTimeout != 120*time.Second {
		t.Errorf("PowerTimeout = %v, want 120s", cfg.PowerTimeout)
	}
	if cfg.ReadyTimeout != 90*time.Second {
		t.Errorf("ReadyTimeout = %v, want 90s", cfg.ReadyTimeout)
	}
	if cfg.ReadyAttemptTimeout != 10*time.Second {
		t.Errorf("ReadyAttemptTimeout = %v, want 10s", cfg.ReadyAttemptTimeout)
	}
	if cfg.SSHPort != 22 {
		t.Errorf("SSHPort = %d, want 22", cfg.SSHPort)
	}
	if cfg.ManagedScript != "gs" {
		t.Errorf("ManagedScript = %q, want gs", cfg.ManagedScript)
	}
	if cfg.RedisEnabled() {
		t.Error("RedisEnabled() = true without POWERDECK_REDIS_ADDR")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("POWERDECK_SSH_PORT", "2222")
	t.Setenv("POWERDECK_READY_TIMEOUT", "45s")
	t.Setenv("POWERDECK_MANAGED_BASE_PATH", "/home/mame/games/")
	t.Setenv("POWERDECK_ALLOWED_CIDRS", "10.0.0.0/8, 192.168.1.7")
	t.Setenv("POWERDECK_REDIS_ADDR", "localhost:6379")

	cfg := Load()

	if cfg.SSHPort != 2222 {
		t.Errorf("SSHPort = %d, want 2222", cfg.SSHPort)
	}
	if cfg.ReadyTimeout != 45*time.Second {
		t.Errorf("ReadyTimeout = %v, want 45s", cfg.ReadyTimeout)
	}
	if cfg.ManagedBasePath != "/home/mame/games" {
		t.Errorf("ManagedBasePath = %q, trailing slash should be trimmed", cfg.ManagedBasePath)
	}
	if len(cfg.AllowedCIDRS) != 2 {
		t.Errorf("AllowedCIDRS = %v, want 2 entries", cfg.AllowedCIDRS)
	}
	if !cfg.RedisEnabled() {
		t.Error("RedisEnabled() = false with POWERDECK_REDIS_ADDR set")
	}
}

func TestLoadPanicsOnMissingHost(t *testing.T) {
	setRequired(t)
	t.Setenv("POWERDECK_SSH_HOST", "")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Load() should have panicked without POWERDECK_SSH_HOST")
		}
	}()
	Load()
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SSHPort:             22,
			SSHPassword:         "pw",
			TargetMAC:           "aa:bb:cc:dd:ee:ff",
			BroadcastIP:         "192.168.1.255",
			PollInterval:        5 * time.Second,
			PowerTimeout:        120 * time.Second,
			ReadyTimeout:        90 * time.Second,
			ReadyAttemptTimeout: 10 * time.Second,
			ManagedScript:       "gs",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad mac", mutate: func(c *Config) { c.TargetMAC = "nope" }, wantErr: "hardware address"},
		{name: "bad broadcast", mutate: func(c *Config) { c.BroadcastIP = "x.y" }, wantErr: "POWERDECK_BROADCAST_IP"},
		{name: "no credentials", mutate: func(c *Config) { c.SSHPassword = "" }, wantErr: "POWERDECK_SSH_KEY_FILE"},
		{name: "port out of range", mutate: func(c *Config) { c.SSHPort = 70000 }, wantErr: "POWERDECK_SSH_PORT"},
		{name: "zero interval", mutate: func(c *Config) { c.PollInterval = 0 }, wantErr: "POWERDECK_POLL_INTERVAL"},
		{name: "power timeout below interval", mutate: func(c *Config) { c.PowerTimeout = time.Second }, wantErr: "POWERDECK_POWER_TIMEOUT"},
		{name: "script with slash", mutate: func(c *Config) { c.ManagedScript = "bin/gs" }, wantErr: "POWERDECK_MANAGED_SCRIPT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	c := &Config{SSHPassword: "pw", APIToken: "tok", RedisPassword: "rp"}
	r := c.Redacted()

	if r.SSHPassword == "pw" || r.APIToken == "tok" || r.RedisPassword == "rp" {
		t.Errorf("Redacted() leaked a secret: %+v", r)
	}
	if c.SSHPassword != "pw" {
		t.Error("Redacted() must not modify the original")
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{name: "valid duration", value: "5s", def: time.Second, expected: 5 * time.Second},
		{name: "invalid duration uses default", value: "invalid", def: 10 * time.Second, expected: 10 * time.Second},
		{name: "missing variable uses default", value: "", def: 15 * time.Second, expected: 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if result := mustDuration("TEST_DURATION", tt.def); result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{name: "true value", value: "true", def: false, expected: true},
		{name: "false value", value: "false", def: true, expected: false},
		{name: "invalid value uses default", value: "invalid", def: true, expected: true},
		{name: "missing variable uses default", value: "", def: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if result := mustBool("TEST_BOOL", tt.def); result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(` "a.example" , b.example,, 'c' `)
	want := []string{"a.example", "b.example", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitAndTrim() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitAndTrim()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
