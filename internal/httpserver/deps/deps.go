package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/hometab/internal/events"
	"github.com/MrSnakeDoc/hometab/internal/logger"
	"github.com/MrSnakeDoc/hometab/internal/session"
	"github.com/MrSnakeDoc/hometab/internal/workspace"
)

// Pinger reports whether the remote document store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HomepageImporter re-imports the configured gethomepage files.
type HomepageImporter interface {
	Reload() (int, error)
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time // for testing, defaults to time.Now
	AllowedHosts []string         // Host headers allowed to access the server
	AllowedCIDRS []string         // IPs allowed to access the API and probes
	TrustProxy   bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	RateBurst    int              // requests per client before throttling
	RatePerMin   int              // refill rate per client
	DeviceID     string           // this device's origin id

	Session   *session.Manager
	Workspace *workspace.Workspace
	Bus       *events.Bus
	Remote    Pinger           // remote document store
	Homepage  HomepageImporter // nil when no homepage files are configured
}
