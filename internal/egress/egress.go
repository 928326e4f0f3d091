package egress

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrSnakeDoc/powerdeck/internal/logger"
	"github.com/MrSnakeDoc/powerdeck/internal/utils"
	"github.com/MrSnakeDoc/powerdeck/internal/version"
)

// DefaultTTL is how long a looked-up address is reused.
const DefaultTTL = 10 * time.Minute

// Resolver returns the public address players use to reach the host. A
// configured static address always wins; otherwise the address is fetched
// from a lookup service returning it as plain text.
type Resolver struct {
	static    string
	lookupURL string
	ttl       time.Duration
	client    *http.Client
	log       logger.Logger
	now       func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	cached  string
	fetched time.Time
}

func NewResolver(static, lookupURL string, timeout time.Duration, log logger.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Resolver{
		static:    strings.TrimSpace(static),
		lookupURL: lookupURL,
		ttl:       DefaultTTL,
		log:       log,
		now:       time.Now,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				TLSHandshakeTimeout: timeout,
				DisableKeepAlives:   true,
			},
		},
	}
}

// PublicAddress returns the static address, a cached lookup, or a fresh
// lookup. When the lookup fails the last known address is returned, which
// may be empty.
func (r *Resolver) PublicAddress(ctx context.Context) string {
	if r.static != "" {
		return r.static
	}
	if r.lookupURL == "" {
		return ""
	}

	r.mu.RLock()
	cached, fresh := r.cached, r.now().Sub(r.fetched) < r.ttl
	r.mu.RUnlock()
	if cached != "" && fresh {
		return cached
	}

	v, err, _ := r.group.Do("lookup", func() (any, error) {
		return r.lookup(ctx)
	})
	if err != nil {
		r.log.Warn("public address lookup failed",
			logger.String("url", r.lookupURL),
			logger.Error(err))
		return cached
	}

	addr := v.(string)
	r.mu.Lock()
	r.cached = addr
	r.fetched = r.now()
	r.mu.Unlock()
	return addr
}

func (r *Resolver) lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.lookupURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query %s: %w", r.lookupURL, err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	addr := strings.TrimSpace(string(body))
	if net.ParseIP(addr) == nil {
		return "", fmt.Errorf("lookup returned %q, not an IP address", addr)
	}
	return addr, nil
}
