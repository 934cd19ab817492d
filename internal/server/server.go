// Пакет server — HTTP-сервер TaskTrack с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/tasktrack/internal/api/handlers"
	"github.com/bigkaa/tasktrack/internal/api/middleware"
	"github.com/bigkaa/tasktrack/internal/config"
	"github.com/bigkaa/tasktrack/internal/domain/rbac"
	uihandlers "github.com/bigkaa/tasktrack/internal/ui/handlers"
	uimiddleware "github.com/bigkaa/tasktrack/internal/ui/middleware"
	"github.com/bigkaa/tasktrack/internal/ui/static"
)

// Deps — компоненты, из которых собирается HTTP-сервер.
type Deps struct {
	// API — REST-обработчики (JSON + CSV).
	API *handlers.APIHandler
	// JWTAuth — Bearer-аутентификация REST API (nil допустим в тестах).
	JWTAuth *middleware.JWTAuth
	// UIAuth — cookie-аутентификация веб-интерфейса.
	UIAuth *uimiddleware.UIAuth
	// RateLimiter — лимитер страниц входа.
	RateLimiter *uimiddleware.RateLimiter
	// Auth — OIDC login/callback/logout.
	Auth *uihandlers.AuthHandler
	// Errors — страницы access-denied / rate-limit.
	Errors *uihandlers.ErrorsHandler
	// Dashboard — страница задач.
	Dashboard *uihandlers.DashboardHandler
	// Dropdowns — страница справочников.
	Dropdowns *uihandlers.DropdownsHandler
	// Query — SQL-консоль администратора.
	Query *uihandlers.QueryHandler
	// Profile — страница редактирования профиля.
	Profile *uihandlers.ProfileHandler
}

// Server — HTTP-сервер TaskTrack.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// --- Публичные endpoints: health, metrics, статика ---

	router.Get("/health/live", deps.API.HealthLive)
	router.Get("/health/ready", deps.API.HealthReady)
	router.Get("/metrics", deps.API.GetMetrics)
	router.Handle("/static/*", http.StripPrefix("/static/",
		http.FileServer(static.FileSystem())))

	// --- Аутентификация UI (без сессии, с rate limiting) ---

	router.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Get("/login", deps.Auth.HandleLogin)
		r.Get("/callback", deps.Auth.HandleCallback)
	})
	router.Post("/logout", deps.Auth.HandleLogout)
	router.Get("/access-denied", deps.Errors.HandleAccessDenied)
	router.Get("/rate-limit", deps.Errors.HandleRateLimit)
	router.Post("/clear-access-denied-session", deps.Errors.HandleClearAccessDeniedSession)

	// --- Веб-интерфейс (cookie-сессия) ---

	router.Group(func(r chi.Router) {
		r.Use(deps.UIAuth.Middleware())

		r.Get("/ui/", deps.Dashboard.HandleDashboard)
		r.Post("/ui/activities", deps.Dashboard.HandleCreateActivity)
		r.Post("/ui/activities/{id}/delete", deps.Dashboard.HandleDeleteActivity)

		r.Get("/ui/dropdowns", deps.Dropdowns.HandleDropdowns)
		r.Post("/ui/dropdowns", deps.Dropdowns.HandleCreateDropdown)
		r.Post("/ui/dropdowns/{id}/toggle", deps.Dropdowns.HandleToggleDropdown)
		r.Post("/ui/dropdowns/{id}/delete", deps.Dropdowns.HandleDeleteDropdown)

		r.Get("/ui/query", deps.Query.HandleQueryPage)
		r.Post("/ui/query", deps.Query.HandleExecuteQuery)

		r.Get("/profile/edit", deps.Profile.HandleProfileEdit)
		r.Post("/profile/edit", deps.Profile.HandleProfileUpdate)
	})
	router.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusMovedPermanently)
	})
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusFound)
	})

	// --- REST API (Bearer JWT) ---

	router.Route("/api", func(r chi.Router) {
		if deps.JWTAuth != nil {
			r.Use(deps.JWTAuth.Middleware())
		}

		r.Get("/profile", deps.API.GetProfile)
		r.Put("/profile", deps.API.UpdateProfile)

		r.Get("/dropdowns/categories", deps.API.ListDropdownCategories)
		r.Get("/dropdowns/{category}", deps.API.GetDropdownValues)

		// Мутации справочников — только администраторы
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.RoleAdmin))
			r.Post("/dropdowns/values", deps.API.CreateDropdownValue)
			r.Put("/dropdowns/values/{id}", deps.API.UpdateDropdownValue)
			r.Delete("/dropdowns/values/{id}", deps.API.DeleteDropdownValue)
		})

		// Чтение задач доступно и сервисным учёткам со scope tasks:read
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRoleOrScope(
				[]string{rbac.RoleUser, rbac.RoleAdmin},
				[]string{"tasks:read"},
			))
			r.Get("/activities", deps.API.ListActivities)
			r.Get("/activities/{id}", deps.API.GetActivity)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.RoleUser, rbac.RoleAdmin))
			r.Post("/activities", deps.API.CreateActivity)
			r.Put("/activities/{id}", deps.API.UpdateActivity)
			r.Delete("/activities/{id}", deps.API.DeleteActivity)
		})

		// Инструмент произвольных запросов — только администраторы
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.RoleAdmin))
			r.Post("/admin/query/execute", deps.API.ExecuteQuery)
			r.Get("/admin/query/history", deps.API.QueryHistory)
			r.Get("/admin/users", deps.API.ListUsers)
			r.Put("/admin/users/{subject}/role", deps.API.SetUserRole)
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
