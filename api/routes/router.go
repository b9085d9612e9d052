package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/shopfeed-backend/api/controllers"
	"github.com/angelmondragon/shopfeed-backend/api/middleware"
	"github.com/angelmondragon/shopfeed-backend/internal/catalog"
	"github.com/angelmondragon/shopfeed-backend/internal/orders"
	"github.com/angelmondragon/shopfeed-backend/internal/users"
	"github.com/angelmondragon/shopfeed-backend/pkg/auth/session"
	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
)

const shopsOnlyMessage = "Shops only"

// RateLimiter is the fixed window counter behind the credential endpoints.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// TaskGateway submits background work and reports its progress.
type TaskGateway interface {
	controllers.TaskSubmitter
	controllers.TaskStatusReader
}

// Deps carries everything the HTTP surface depends on.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Sessions session.AccessSessionChecker
	Limiter  RateLimiter
	Pingers  map[string]controllers.Pinger
	Metrics  http.Handler
	Observer middleware.RequestObserver

	Catalog catalog.Service
	Orders  orders.Service
	Users   users.Service
	Tasks   TaskGateway
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		chimw.RealIP,
		middleware.Logging(logg, deps.Observer),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	limited := func(policy middleware.AuthRateLimitPolicy) func(http.Handler) http.Handler {
		if deps.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.AuthRateLimit(policy, deps.Limiter, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Get("/categories", controllers.CategoryList(deps.Catalog, logg))
	r.Get("/shops", controllers.ShopList(deps.Catalog, logg))
	r.Get("/products", controllers.ProductList(deps.Catalog, logg))

	r.Route("/user", func(r chi.Router) {
		r.With(limited(registerPolicy)).Post("/register", controllers.UserRegister(deps.Users, logg))
		r.Post("/register/confirm", controllers.UserConfirm(deps.Users, logg))
		r.With(limited(loginPolicy)).Post("/login", controllers.UserLogin(deps.Users, logg))
		r.With(limited(registerPolicy)).Post("/password_reset", controllers.PasswordReset(deps.Users, logg))
		r.Post("/password_reset/confirm", controllers.PasswordResetConfirm(deps.Users, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Get("/details", controllers.UserDetails(deps.Users, logg))
			r.Post("/details", controllers.UserUpdateDetails(deps.Users, logg))
			r.Get("/contact", controllers.ContactList(deps.Users, logg))
			r.Post("/contact", controllers.ContactCreate(deps.Users, logg))
			r.Put("/contact", controllers.ContactUpdate(deps.Users, logg))
			r.Delete("/contact", controllers.ContactDelete(deps.Users, logg))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		r.Get("/basket", controllers.BasketGet(deps.Orders, logg))
		r.Post("/basket", controllers.BasketAdd(deps.Orders, logg))
		r.Put("/basket", controllers.BasketUpdate(deps.Orders, logg))
		r.Delete("/basket", controllers.BasketDelete(deps.Orders, logg))

		r.Get("/order", controllers.OrderList(deps.Orders, logg))
		r.Post("/order", controllers.OrderPlace(deps.Orders, logg))

		r.Get("/results", controllers.Results(deps.Tasks, logg))

		r.Route("/partner", func(r chi.Router) {
			r.Use(middleware.RequireUserType(shopsOnlyMessage, logg, enums.UserTypeShop))
			r.Post("/update", controllers.PartnerUpdate(deps.Tasks, logg))
			r.Get("/state", controllers.PartnerState(deps.Catalog, logg))
			r.Post("/state", controllers.PartnerSetState(deps.Catalog, logg))
			r.Get("/orders", controllers.PartnerOrders(deps.Orders, logg))
			r.Put("/orders", controllers.PartnerUpdateOrder(deps.Orders, logg))
			r.Get("/export", controllers.PartnerExport(deps.Tasks, logg))
		})
	})

	return r
}
