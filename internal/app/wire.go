package app

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/stakehouse/platform/internal/auth"
	"github.com/stakehouse/platform/internal/guard"
	"github.com/stakehouse/platform/internal/handler"
	"github.com/stakehouse/platform/internal/projection"
	"github.com/stakehouse/platform/internal/repository"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Store       repository.Store
	Services    *Services
	JWTMgr      *auth.JWTManager
	Limiter     guard.Guard
	Dedup       *guard.IdempotencyGuard
	Projections projection.Store
	CORSOrigins string
	Logger      *slog.Logger
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	jwtMgr := deps.JWTMgr
	logger := deps.Logger

	accountHandler := handler.NewAccountHandler(deps.Services.Accounts, jwtMgr)
	roomHandler := handler.NewRoomHandler(deps.Services.Rooms)
	eventHandler := handler.NewEventHandler(deps.Services.Events)
	requestHandler := handler.NewRequestHandler(deps.Services.Requests, deps.Dedup)
	projectionHandler := handler.NewProjectionHandler(deps.Projections)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(deps.CORSOrigins))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.Store))

	// Player-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticatePlayer(jwtMgr))
		r.Use(handler.RateLimit(deps.Limiter))

		r.Route("/accounts/me", func(r chi.Router) {
			r.Get("/", accountHandler.Me)
			r.Get("/ledger", accountHandler.MyLedger)
			r.Get("/bets", eventHandler.MyBets)
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", roomHandler.Create)
			r.Get("/", roomHandler.List)
			r.Get("/{id}", roomHandler.Get)
			r.Post("/{id}/join", roomHandler.Join)
			r.Post("/{id}/choice", roomHandler.Choice)
			r.Post("/{id}/end", roomHandler.End)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", eventHandler.List)
			r.Get("/{id}", eventHandler.Get)
			r.Post("/{id}/bets", eventHandler.PlaceBet)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", requestHandler.File)
			r.Get("/me", requestHandler.Mine)
		})

		r.Route("/projections", func(r chi.Router) {
			r.Get("/balance", projectionHandler.Balance)
			r.Get("/rooms/{id}", projectionHandler.Room)
		})
	})

	// Operator-authenticated routes; reads for every role, writes for write roles.
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateOperator(jwtMgr))
		write := auth.RequireRole(auth.WriteRoles()...)

		r.Route("/accounts", func(r chi.Router) {
			r.With(write).Post("/", accountHandler.Create)
			r.Get("/{id}", accountHandler.Get)
			r.Get("/{id}/ledger", accountHandler.Ledger)
			r.Get("/{id}/verify", accountHandler.Verify)
			r.Get("/{id}/adjustments", accountHandler.Adjustments)
			r.With(write).Post("/{id}/approve", accountHandler.Approve)
			r.With(write).Post("/{id}/disable", accountHandler.Disable)
			r.With(write).Post("/{id}/enable", accountHandler.Enable)
			r.With(write).Post("/{id}/adjustments", accountHandler.Adjust)
			r.With(write).Post("/{id}/token", accountHandler.IssueToken)
			r.With(write).Delete("/{id}", accountHandler.Delete)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", eventHandler.List)
			r.Get("/{id}", eventHandler.Get)
			r.Get("/{id}/bets", eventHandler.Bets)
			r.With(write).Post("/", eventHandler.Create)
			r.With(write).Post("/{id}/fund", eventHandler.Fund)
			r.With(write).Post("/{id}/lock", eventHandler.Lock)
			r.With(write).Post("/{id}/resolve", eventHandler.Resolve)
			r.With(write).Post("/{id}/cancel", eventHandler.Cancel)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", requestHandler.List)
			r.Get("/{id}", requestHandler.Get)
			r.With(write).Post("/{id}/decision", requestHandler.Decide)
		})

		r.Get("/house/revenue", accountHandler.HouseRevenue)
	})

	return r
}
