package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-HTTP-request budget (stats queries included)

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	ServiceFile string // path to the service registry (YAML, JSON accepted)

	// Managed host
	SSHHost          string // network address of the managed machine
	SSHPort          int    // ex: 22
	SSHUser          string // authentication principal
	SSHKeyFile       string // optional private key path
	SSHKeyPassphrase string // optional
	SSHPassword      string // optional, used when no key is configured or as fallback
	SSHDialTimeout   time.Duration
	TargetMAC        string // hardware address for wake-on-LAN
	BroadcastIP      string // broadcast address for wake-on-LAN

	// Lifecycle timing
	PollInterval        time.Duration // interval between polls in every wait loop (default: 5s)
	PowerTimeout        time.Duration // outer budget for online/offline transitions (default: 120s)
	ReadyTimeout        time.Duration // outer budget for service readiness (default: 90s)
	ReadyAttemptTimeout time.Duration // inner budget for one readiness attempt (default: 10s)
	ProbeTimeout        time.Duration // ICMP echo timeout (default: 1s)
	PowerDownDelay      time.Duration // settle delay before the power-down after a stop (default: 5s)
	RebootDelay         time.Duration // shutdown delay before watching the reboot blip (default: 10s)

	// Managed services helper-script convention: <base>/<id>/<script> <action>
	ManagedBasePath string
	ManagedScript   string

	PublicAddress   string        // address reported to players on start (empty => lookup)
	AddressLookup   string        // URL returning the public address as plain text
	AddressTimeout  time.Duration // timeout for the lookup
	PowerWatchEvery time.Duration // interval of the background power watcher (0 = disabled)
	RequestTTL      time.Duration // how long finished request boards are kept
	HistorySize     int           // number of outcomes kept in history

	APIToken     string   // optional bearer token required on /api
	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IPs/CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For headers
	RateBurst    int      // burst of mutating requests per client IP
	RatePerMin   int      // refill of mutating requests per client IP per minute

	// Redis (optional: empty address => in-process leases and presence)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisDT             time.Duration // dial timeout
	RedisRT             time.Duration // read timeout
	RedisWT             time.Duration // write timeout
	RedisMaxWait        time.Duration // max wait between retries
	RedisPingTimeout    time.Duration // timeout for each ping attempt
	RedisPoolSize       int
	RedisConnectTimeout time.Duration // total time to retry connecting
	RedisRetryInterval  time.Duration // initial wait between retries (grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts
	LeaseTTL            time.Duration // upper bound on a held lease in Redis
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("POWERDECK_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("POWERDECK_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("POWERDECK_REQUEST_TIMEOUT", 15*time.Second),

		// Logging
		LogLevel:  getenv("POWERDECK_LOG_LEVEL", "info"),
		PrettyLog: mustBool("POWERDECK_PRETTY_LOG", true),

		ServiceFile: getenv("POWERDECK_SERVICE_FILE", "/app/services.yaml"),

		// Host
		SSHHost:          requireEnv("POWERDECK_SSH_HOST"),
		SSHPort:          getenvInt("POWERDECK_SSH_PORT", 22),
		SSHUser:          requireEnv("POWERDECK_SSH_USER"),
		SSHKeyFile:       getenv("POWERDECK_SSH_KEY_FILE", ""),
		SSHKeyPassphrase: getenv("POWERDECK_SSH_KEY_PASSPHRASE", ""),
		SSHPassword:      getenv("POWERDECK_SSH_PASSWORD", ""),
		SSHDialTimeout:   mustDuration("POWERDECK_SSH_DIAL_TIMEOUT", 8*time.Second),
		TargetMAC:        requireEnv("POWERDECK_TARGET_MAC"),
		BroadcastIP:      requireEnv("POWERDECK_BROADCAST_IP"),

		// Lifecycle timing
		PollInterval:        mustDuration("POWERDECK_POLL_INTERVAL", 5*time.Second),
		PowerTimeout:        mustDuration("POWERDECK_POWER_TIMEOUT", 120*time.Second),
		ReadyTimeout:        mustDuration("POWERDECK_READY_TIMEOUT", 90*time.Second),
		ReadyAttemptTimeout: mustDuration("POWERDECK_READY_ATTEMPT_TIMEOUT", 10*time.Second),
		ProbeTimeout:        mustDuration("POWERDECK_PROBE_TIMEOUT", time.Second),
		PowerDownDelay:      mustDuration("POWERDECK_POWER_DOWN_DELAY", 5*time.Second),
		RebootDelay:         mustDuration("POWERDECK_REBOOT_DELAY", 10*time.Second),

		ManagedBasePath: strings.TrimRight(getenv("POWERDECK_MANAGED_BASE_PATH", "/srv/games"), "/"),
		ManagedScript:   getenv("POWERDECK_MANAGED_SCRIPT", "gs"),

		PublicAddress:   getenv("POWERDECK_PUBLIC_ADDRESS", ""),
		AddressLookup:   getenv("POWERDECK_ADDRESS_LOOKUP_URL", "https://api.ipify.org"),
		AddressTimeout:  mustDuration("POWERDECK_ADDRESS_TIMEOUT", 3*time.Second),
		PowerWatchEvery: mustDuration("POWERDECK_POWER_WATCH_INTERVAL", time.Minute),
		RequestTTL:      mustDuration("POWERDECK_REQUEST_TTL", time.Hour),
		HistorySize:     getenvInt("POWERDECK_HISTORY_SIZE", 50),

		// Access restrictions
		APIToken:     getenv("POWERDECK_API_TOKEN", ""),
		AllowedHosts: splitAndTrim(getenv("POWERDECK_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("POWERDECK_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("POWERDECK_TRUST_PROXY", false),
		RateBurst:    getenvInt("POWERDECK_RATE_BURST", 5),
		RatePerMin:   getenvInt("POWERDECK_RATE_PER_MIN", 10),

		// Redis settings
		RedisAddr:           getenv("POWERDECK_REDIS_ADDR", ""),
		RedisUser:           getenv("POWERDECK_REDIS_USERNAME", "default"),
		RedisPassword:       getenv("POWERDECK_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("POWERDECK_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),
		LeaseTTL:            mustDuration("POWERDECK_LEASE_TTL", 15*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Validate checks cross-field constraints that single variables cannot express.
func (c *Config) Validate() error {
	if _, err := net.ParseMAC(c.TargetMAC); err != nil {
		return fmt.Errorf("POWERDECK_TARGET_MAC %q is not a hardware address: %w", c.TargetMAC, err)
	}
	if net.ParseIP(c.BroadcastIP) == nil {
		return fmt.Errorf("POWERDECK_BROADCAST_IP %q is not an IP address", c.BroadcastIP)
	}
	if c.SSHKeyFile == "" && c.SSHPassword == "" {
		return fmt.Errorf("one of POWERDECK_SSH_KEY_FILE or POWERDECK_SSH_PASSWORD is required")
	}
	if c.SSHPort <= 0 || c.SSHPort > 65535 {
		return fmt.Errorf("POWERDECK_SSH_PORT must be in 1..65535, got %d", c.SSHPort)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POWERDECK_POLL_INTERVAL must be > 0, got %v", c.PollInterval)
	}
	if c.PowerTimeout < c.PollInterval {
		return fmt.Errorf("POWERDECK_POWER_TIMEOUT (%v) must be >= POWERDECK_POLL_INTERVAL (%v)", c.PowerTimeout, c.PollInterval)
	}
	if c.ReadyTimeout < c.PollInterval {
		return fmt.Errorf("POWERDECK_READY_TIMEOUT (%v) must be >= POWERDECK_POLL_INTERVAL (%v)", c.ReadyTimeout, c.PollInterval)
	}
	if c.ReadyAttemptTimeout <= 0 {
		return fmt.Errorf("POWERDECK_READY_ATTEMPT_TIMEOUT must be > 0, got %v", c.ReadyAttemptTimeout)
	}
	if c.ManagedScript == "" || strings.Contains(c.ManagedScript, "/") {
		return fmt.Errorf("POWERDECK_MANAGED_SCRIPT must be a bare file name, got %q", c.ManagedScript)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cp := *c
	const mask = "***REDACTED***"
	if cp.SSHPassword != "" {
		cp.SSHPassword = mask
	}
	if cp.SSHKeyPassphrase != "" {
		cp.SSHKeyPassphrase = mask
	}
	if cp.APIToken != "" {
		cp.APIToken = mask
	}
	if cp.RedisPassword != "" {
		cp.RedisPassword = mask
	}
	return cp
}

// RedisEnabled reports whether a Redis address was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
