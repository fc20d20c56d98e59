package keys

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrKeyUnavailable is returned when a signing key cannot be produced:
// unknown kid, unreachable JWKS source, or fetch throttle exhaustion.
// Callers must treat all three the same; the distinction is only logged.
var ErrKeyUnavailable = errors.New("keys: signing key unavailable")

// Options configures a Resolver. Zero values get conservative defaults.
type Options struct {
	// URL of the JWKS document. Required.
	URL string

	// CacheTTL bounds how long a fetched key is served without revalidation.
	CacheTTL time.Duration

	// FetchPerMinute caps outbound JWKS requests regardless of cache state,
	// so a cache stampede cannot hammer the issuing authority.
	FetchPerMinute int

	// WaitTimeout bounds how long a throttled lookup queues before failing.
	WaitTimeout time.Duration

	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	out := o
	if out.CacheTTL <= 0 {
		out.CacheTTL = 10 * time.Minute
	}
	if out.FetchPerMinute <= 0 {
		out.FetchPerMinute = 5
	}
	if out.WaitTimeout <= 0 {
		out.WaitTimeout = 10 * time.Second
	}
	if out.HTTPClient == nil {
		out.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return out
}

type cacheEntry struct {
	key       *rsa.PublicKey
	fetchedAt time.Time
}

// Resolver fetches and caches public signing keys from a JWKS endpoint,
// keyed by kid.
//
// Concurrency:
// - Warm cache reads take only a read lock.
// - Cold lookups for the same kid coalesce into one outbound fetch.
// - Outbound fetches are rate limited; throttled waiters queue up to
//   WaitTimeout and then fail with ErrKeyUnavailable.
type Resolver struct {
	opts    Options
	limiter *rate.Limiter
	group   singleflight.Group

	mu    sync.RWMutex
	cache map[string]cacheEntry

	clock func() time.Time
}

func NewResolver(opts Options) (*Resolver, error) {
	if opts.URL == "" {
		return nil, errors.New("keys: jwks url is required")
	}
	opts = opts.withDefaults()

	return &Resolver{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(float64(opts.FetchPerMinute)/60.0), opts.FetchPerMinute),
		cache:   make(map[string]cacheEntry),
		clock:   time.Now,
	}, nil
}

// Resolve returns the public key for kid, fetching the key set if needed.
func (r *Resolver) Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, fmt.Errorf("%w: empty kid", ErrKeyUnavailable)
	}

	if key, ok := r.cached(kid); ok {
		return key, nil
	}

	// Coalesce concurrent cold lookups per kid. The winning call runs the
	// fetch; everyone else gets its result.
	v, err, _ := r.group.Do(kid, func() (any, error) {
		// A loser of an earlier race may have populated the cache already.
		if key, ok := r.cached(kid); ok {
			return key, nil
		}
		return r.fetchKey(ctx, kid)
	})
	if err != nil {
		return nil, err
	}
	return v.(*rsa.PublicKey), nil
}

// Evict drops a cached key, forcing a refetch on next resolve.
func (r *Resolver) Evict(kid string) {
	r.mu.Lock()
	delete(r.cache, kid)
	r.mu.Unlock()
}

func (r *Resolver) cached(kid string) (*rsa.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[kid]
	if !ok || r.clock().Sub(e.fetchedAt) > r.opts.CacheTTL {
		return nil, false
	}
	return e.key, true
}

func (r *Resolver) fetchKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.opts.WaitTimeout)
	defer cancel()
	if err := r.limiter.Wait(waitCtx); err != nil {
		return nil, fmt.Errorf("%w: fetch throttled: %v", ErrKeyUnavailable, err)
	}

	set, err := r.fetchSet(ctx)
	if err != nil {
		return nil, err
	}

	jwk := set.Find(kid)
	if jwk == nil {
		return nil, fmt.Errorf("%w: kid %q not in key set", ErrKeyUnavailable, kid)
	}
	key, err := jwk.RSAPublicKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	r.mu.Lock()
	r.cache[kid] = cacheEntry{key: key, fetchedAt: r.clock()}
	r.mu.Unlock()

	return key, nil
}

func (r *Resolver) fetchSet(ctx context.Context) (*Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: jwks endpoint returned %d", ErrKeyUnavailable, resp.StatusCode)
	}

	var set Set
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: malformed key set: %v", ErrKeyUnavailable, err)
	}
	return &set, nil
}
