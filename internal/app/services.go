package app

import (
	"log/slog"

	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/infra"
	"github.com/stakehouse/platform/internal/ledger"
	"github.com/stakehouse/platform/internal/policy"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stakehouse/platform/internal/service"
)

// Services groups the platform services sharing one runner and engine.
type Services struct {
	Accounts *service.AccountService
	Rooms    *service.RoomService
	Events   *service.EventService
	Requests *service.RequestService
}

// PolicyFromConfig maps the rule settings from the environment.
func PolicyFromConfig(cfg *infra.Config) service.Policy {
	p := service.DefaultPolicy()
	p.Limits = policy.StakeLimits{
		MinStake:         cfg.MinStake,
		MaxStake:         cfg.MaxStake,
		MaxRequestAmount: cfg.MaxRequestAmount,
	}
	p.Referral = domain.ReferralSettings{
		Enabled:        cfg.ReferralEnabled,
		Bonus:          cfg.ReferralBonus,
		Currency:       domain.CurrencyPoints,
		MaxPerReferrer: cfg.ReferralMaxPerUser,
	}
	return p
}

// NewServices builds every service. A nil clock uses wall time.
func NewServices(runner *repository.TxRunner, pol service.Policy, clock service.Clock, logger *slog.Logger) *Services {
	engine := ledger.NewEngine(clock)
	return &Services{
		Accounts: service.NewAccountService(runner, engine, pol, clock, logger),
		Rooms:    service.NewRoomService(runner, engine, pol, clock, logger),
		Events:   service.NewEventService(runner, engine, pol, clock, logger),
		Requests: service.NewRequestService(runner, engine, pol, clock, logger),
	}
}
