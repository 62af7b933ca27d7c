package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel      string // "debug" | "info" | "warn" | "error"
	PrettyLog     bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile       string // optional, JSON copy of the logs rotated by lumberjack
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Remote document store: redis://, rediss://, postgres:// or memory://
	RemoteDSN string

	// Redis connector tuning (only used with redis DSNs)
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	LocalDB  string // sqlite file caching the working set on this device
	DeviceID string // stamped into pushed documents to drop our own echoes

	// Autosync defaults; settings saved by the user override them at runtime
	AutoSyncEnabled     bool
	AutoSyncInterval    int           // seconds, clamped to [3,60]
	EditingRetryDelay   time.Duration // re-check delay while an editor is open (ex: 5s)
	DeleteDebounce      time.Duration // debounce after a deletion (ex: 3s)
	SyncBackoff         bool          // retry failed pushes with exponential backoff
	SyncBackoffInitial  time.Duration
	SyncBackoffMax      time.Duration
	SyncBackoffAttempts int

	HomepageServices  string // optional path to a gethomepage services.yaml
	HomepageBookmarks string // optional path to a gethomepage bookmarks.yaml
	WatchHomepage     bool   // re-import when the files change

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	RateBurst    int      // requests per client before throttling
	RatePerMin   int      // refill rate per client
}

// Load reads the full server configuration from the environment.
func Load() *Config {
	return load(true)
}

// LoadOffline reads the configuration for commands that only touch the
// device cache. HOMETAB_REMOTE_DSN is optional there.
func LoadOffline() *Config {
	return load(false)
}

func load(requireRemote bool) *Config {
	remoteDSN := getenv("HOMETAB_REMOTE_DSN", "")
	if requireRemote {
		remoteDSN = requireEnv("HOMETAB_REMOTE_DSN")
	}

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("HOMETAB_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("HOMETAB_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:      getenv("HOMETAB_LOG_LEVEL", "info"),
		PrettyLog:     mustBool("HOMETAB_PRETTY_LOG", true),
		LogFile:       getenv("HOMETAB_LOG_FILE", ""),
		LogMaxSizeMB:  getenvInt("HOMETAB_LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getenvInt("HOMETAB_LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getenvInt("HOMETAB_LOG_MAX_AGE_DAYS", 28),

		// Remote store
		RemoteDSN:           remoteDSN,
		RedisDT:             mustDuration("HOMETAB_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("HOMETAB_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("HOMETAB_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("HOMETAB_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("HOMETAB_REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("HOMETAB_REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("HOMETAB_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("HOMETAB_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("HOMETAB_REDIS_WARN_THRESHOLD", 3),

		// Local device state
		LocalDB:  getenv("HOMETAB_LOCAL_DB", "./hometab.db"),
		DeviceID: getenv("HOMETAB_DEVICE_ID", hostname()),

		// Autosync
		AutoSyncEnabled:     mustBool("HOMETAB_AUTOSYNC_ENABLED", true),
		AutoSyncInterval:    clampInterval(getenvInt("HOMETAB_AUTOSYNC_INTERVAL", 5)),
		EditingRetryDelay:   mustDuration("HOMETAB_EDITING_RETRY_DELAY", 5*time.Second),
		DeleteDebounce:      mustDuration("HOMETAB_DELETE_DEBOUNCE", 3*time.Second),
		SyncBackoff:         mustBool("HOMETAB_SYNC_BACKOFF", false),
		SyncBackoffInitial:  mustDuration("HOMETAB_SYNC_BACKOFF_INITIAL", 2*time.Second),
		SyncBackoffMax:      mustDuration("HOMETAB_SYNC_BACKOFF_MAX", 60*time.Second),
		SyncBackoffAttempts: getenvInt("HOMETAB_SYNC_BACKOFF_ATTEMPTS", 5),

		// Homepage import
		HomepageServices:  getenv("HOMETAB_HOMEPAGE_SERVICES", ""),
		HomepageBookmarks: getenv("HOMETAB_HOMEPAGE_BOOKMARKS", ""),
		WatchHomepage:     mustBool("HOMETAB_WATCH_HOMEPAGE", false),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("HOMETAB_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("HOMETAB_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("HOMETAB_TRUST_PROXY", false),
		RateBurst:    getenvInt("HOMETAB_RATE_BURST", 60),
		RatePerMin:   getenvInt("HOMETAB_RATE_PER_MIN", 120),
	}

	if cfg.WatchHomepage && cfg.HomepageServices == "" && cfg.HomepageBookmarks == "" {
		panic("❌ FATAL: HOMETAB_WATCH_HOMEPAGE=true requires HOMETAB_HOMEPAGE_SERVICES or HOMETAB_HOMEPAGE_BOOKMARKS")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RemoteDSN = RedactDSN(cfg.RemoteDSN)
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// clampInterval bounds the autosync debounce window to [3,60] seconds.
func clampInterval(secs int) int {
	if secs < 3 {
		return 3
	}
	if secs > 60 {
		return 60
	}
	return secs
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "hometab"
	}
	return h
}

// RedactDSN hides the password of a DSN. Unparseable DSNs are hidden whole.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***REDACTED***"
	}
	return u.Redacted()
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
