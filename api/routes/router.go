package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/perkmint/perkmint-backend/api/controllers"
	"github.com/perkmint/perkmint-backend/api/middleware"
	"github.com/perkmint/perkmint-backend/internal/audit"
	"github.com/perkmint/perkmint-backend/internal/lottery"
	"github.com/perkmint/perkmint-backend/internal/voucher"
	"github.com/perkmint/perkmint-backend/pkg/config"
	"github.com/perkmint/perkmint-backend/pkg/enums"
	"github.com/perkmint/perkmint-backend/pkg/logger"
	pkgredis "github.com/perkmint/perkmint-backend/pkg/redis"
)

type cacheClient interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// NewRouter assembles the full HTTP surface. Everything under /api requires
// a bearer token; mutating voucher and lottery routes additionally require
// an Idempotency-Key.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	database controllers.Pinger,
	cache cacheClient,
	ledger controllers.Pinger,
	voucherService voucher.Service,
	lotteryService lottery.Service,
	auditService audit.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.CORS(),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, database, cache, ledger))
	})

	operator := string(enums.ActorRoleOperator)

	// Operator-only routes stay unthrottled; RequireRole already gates them.
	writeLimit := middleware.WriteRateLimit(
		middleware.NewWriteRateLimitPolicy("write", cfg.RateLimit.WriteWindow, cfg.RateLimit.WriteUserLimit, cfg.RateLimit.WriteIPLimit),
		cache, logg,
	)
	entryLimit := middleware.WriteRateLimit(
		middleware.NewWriteRateLimitPolicy("entry", cfg.RateLimit.EntryWindow, cfg.RateLimit.EntryUserLimit, cfg.RateLimit.EntryIPLimit),
		cache, logg,
	)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(cache, logg))

		r.Route("/vouchers", func(r chi.Router) {
			r.With(writeLimit).Post("/", controllers.VoucherMint(voucherService, logg))
			r.Get("/", controllers.VoucherList(voucherService, logg))
			r.Route("/{voucherID}", func(r chi.Router) {
				r.Get("/", controllers.VoucherDetail(voucherService, logg))
				r.Get("/discount", controllers.VoucherDiscountPreview(voucherService, logg))
				r.With(writeLimit).Post("/use", controllers.VoucherUse(voucherService, logg))
				r.With(writeLimit).Post("/transfer", controllers.VoucherTransfer(voucherService, logg))
				r.With(middleware.RequireRole(operator, logg)).Post("/recycle", controllers.VoucherRecycle(voucherService, logg))
			})
		})

		r.Route("/lotteries", func(r chi.Router) {
			r.With(middleware.RequireRole(operator, logg)).Post("/", controllers.LotteryCreate(lotteryService, logg))
			r.Get("/", controllers.LotteryList(lotteryService, logg))
			r.Get("/verify-seed", controllers.LotterySeedVerify(lotteryService, logg))
			r.Route("/{lotteryID}", func(r chi.Router) {
				r.Get("/", controllers.LotteryDetail(lotteryService, logg))
				r.Get("/participants", controllers.LotteryParticipants(lotteryService, logg))
				r.Get("/prizes", controllers.LotteryPrizes(lotteryService, logg))
				r.With(entryLimit).Post("/participants", controllers.LotteryParticipate(lotteryService, logg))
				r.With(middleware.RequireRole(operator, logg)).Post("/draw", controllers.LotteryDraw(lotteryService, logg))
			})
		})

		r.Get("/audit-transactions", controllers.AuditTransactionList(auditService, logg))
	})

	return r
}
