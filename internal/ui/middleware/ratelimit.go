// ratelimit.go — ограничение частоты запросов к страницам входа.
// Отдельный token bucket на каждый клиентский IP; при превышении лимита
// браузерные запросы перенаправляются на страницу /rate-limit.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter — лимитер одного клиента с отметкой последнего обращения.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter — per-IP rate limiter для страниц входа.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	logger   *slog.Logger
	stopOnce sync.Once
	stop     chan struct{}
}

// NewRateLimiter создаёт rate limiter.
// rps — допустимая частота запросов в секунду, burst — размер burst.
// Фоновая горутина удаляет лимитеры клиентов, не появлявшихся 10 минут.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(rps),
		burst:   burst,
		logger:  logger.With(slog.String("component", "rate_limiter")),
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow проверяет, разрешён ли запрос с данного IP.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

// Middleware возвращает HTTP middleware, ограничивающее частоту запросов.
// При превышении лимита браузер перенаправляется на /rate-limit.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.Allow(ip) {
				rl.logger.Warn("Превышен лимит запросов",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				http.Redirect(w, r, "/rate-limit", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Stop останавливает фоновую очистку лимитеров.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// cleanupLoop периодически удаляет лимитеры неактивных клиентов.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, cl := range rl.clients {
				if time.Since(cl.lastSeen) > 10*time.Minute {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// clientIP извлекает клиентский IP из запроса.
// X-Forwarded-For учитывается: приложение работает за API Gateway.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
