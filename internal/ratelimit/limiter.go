// Package ratelimit throttles booking writes per caller and per client IP.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config holds rate limit configuration. A zero limit disables that layer.
type Config struct {
	Window      time.Duration // Fixed window length (default: 1m)
	MaxPerUser  int           // Writes per caller per window
	MaxPerIP    int           // Writes per client IP per window
	CleanupTick time.Duration // How often expired windows are dropped (default: 5m)

	// Clock for testing (nil uses real time)
	Clock Clock
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Window:     time.Minute,
		MaxPerUser: 30,
		MaxPerIP:   120,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

type window struct {
	count   int
	startAt time.Time
}

// Limiter counts writes in fixed windows keyed by caller and IP.
type Limiter struct {
	config *Config
	clock  Clock
	mu     sync.Mutex
	// Keyed by hash of user id or IP
	byUser map[string]*window
	byIP   map[string]*window

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.CleanupTick <= 0 {
		cfg.CleanupTick = 5 * time.Minute
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		byUser:        make(map[string]*window),
		byIP:          make(map[string]*window),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// Allow checks both layers and records the write when it is allowed. An
// empty user is limited by IP only.
func (l *Limiter) Allow(user, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	userKey := hashKey("user:", strings.TrimSpace(user))
	ipKey := hashKey("ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	if user != "" {
		if res := l.check(l.byUser, userKey, l.config.MaxPerUser, now, "user_limit"); !res.Allowed {
			return res
		}
	}
	if res := l.check(l.byIP, ipKey, l.config.MaxPerIP, now, "ip_limit"); !res.Allowed {
		return res
	}

	if user != "" && l.config.MaxPerUser > 0 {
		l.record(l.byUser, userKey, now)
	}
	if l.config.MaxPerIP > 0 {
		l.record(l.byIP, ipKey, now)
	}
	return LimitResult{Allowed: true}
}

func (l *Limiter) check(windows map[string]*window, key string, limit int, now time.Time, reason string) LimitResult {
	if limit <= 0 {
		return LimitResult{Allowed: true}
	}
	w := windows[key]
	if w == nil || now.Sub(w.startAt) >= l.config.Window || w.count < limit {
		return LimitResult{Allowed: true}
	}
	return LimitResult{
		Allowed:    false,
		RetryAfter: l.config.Window - now.Sub(w.startAt),
		Reason:     reason,
	}
}

func (l *Limiter) record(windows map[string]*window, key string, now time.Time) {
	w := windows[key]
	if w == nil || now.Sub(w.startAt) >= l.config.Window {
		windows[key] = &window{count: 1, startAt: now}
		return
	}
	w.count++
}

func hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(l.config.CleanupTick)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, windows := range []map[string]*window{l.byUser, l.byIP} {
		for k, w := range windows {
			if now.Sub(w.startAt) >= l.config.Window {
				delete(windows, k)
			}
		}
	}
}

// size reports tracked windows; used by tests.
func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byUser) + len(l.byIP)
}

// ClientIP extracts the client IP from a request. With trustProxy the
// rightmost public address in X-Forwarded-For wins, then X-Real-IP.
// Without it forwarding headers are ignored.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			return strings.TrimSpace(parts[len(parts)-1])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

var privateNetworks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// LogLimitExceeded logs a throttled write.
func LogLimitExceeded(ctx context.Context, user, ip string, res LimitResult) {
	log.Ctx(ctx).Warn().
		Str("event", "rate_limit_exceeded").
		Str("user_id", user).
		Str("ip", ip).
		Str("reason", res.Reason).
		Dur("retry_after", res.RetryAfter).
		Msg("Booking write rate limit exceeded")
}
