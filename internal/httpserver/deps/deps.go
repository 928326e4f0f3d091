package deps

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/dispatch"
	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
	"github.com/MrSnakeDoc/powerdeck/internal/presence"
	"github.com/MrSnakeDoc/powerdeck/internal/progress"
	"github.com/MrSnakeDoc/powerdeck/internal/scheduler"
)

// Dispatcher accepts lifecycle commands and tracks their progress.
type Dispatcher interface {
	Start(serviceID string) (dispatch.Ticket, error)
	Stop(serviceID string, shutdown bool) (dispatch.Ticket, error)
	RunAction(serviceID, action string) (dispatch.Ticket, error)
	PowerOn() dispatch.Ticket
	PowerOff() dispatch.Ticket
	Reboot() dispatch.Ticket
	Board(id string) (*progress.Board, bool)
	History(ctx context.Context, n int) ([]*domain.Result, error)
	WithOutput(id string, deliver func(f *os.File, name string) error) error
	Tracked() int
}

// Host answers direct questions about the managed machine.
type Host interface {
	Status(ctx context.Context) domain.PowerState
	ResourceStats(ctx context.Context) (domain.ResourceStats, error)
	Host() domain.HostTarget
}

// Catalog lists service profiles.
type Catalog interface {
	All() []*domain.ServiceProfile
	Count() int
	LoadedAt() time.Time
}

// PresenceReader exposes the active service.
type PresenceReader interface {
	Current(ctx context.Context) presence.State
}

// PowerHistory exposes the background power watcher.
type PowerHistory interface {
	Last() (scheduler.Observation, bool)
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
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
	AllowedCIDRS []string         // IPs allowed to access the server
	TrustProxy   bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	APIToken     string           // bearer token required on /api, empty disables the check
	RateBurst    int              // burst of mutating requests per client IP
	RatePerMin   int              // refill of mutating requests per client IP per minute

	Dispatcher Dispatcher
	Host       Host
	Catalog    Catalog
	Presence   PresenceReader
	Power      PowerHistory // nil when the power watcher is disabled
	Redis      Pinger       // nil when Redis is not configured
	Metrics    http.Handler // nil disables /metrics
}

// Now returns the configured clock.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
