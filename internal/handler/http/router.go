package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

const serviceName = "storefront"

// RouterConfig carries what NewRouter wires around the handler.
type RouterConfig struct {
	Handler *Handler
	Health  *health.Handler
	Logger  *slog.Logger
	CORS    middleware.CORSConfig
	Session middleware.SessionConfig

	// AuthRateLimit guards login and the auth flows. Nil disables it.
	AuthRateLimit func(http.Handler) http.Handler

	PprofEnabled bool
	PprofCIDRs   []string
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handler
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if cfg.PprofEnabled {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, cfg.Logger)
	}

	limited := cfg.AuthRateLimit
	if limited == nil {
		limited = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api", func(r chi.Router) {
		// Session-independent, cacheable reads. No cookie is issued here.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequestLogger(cfg.Logger))
			r.Use(middleware.CacheControl(300))
			r.Get("/i18n/{locale}", h.Bundle)
			r.Get("/currency/options", h.CurrencyOptions)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(cfg.Session))
			r.Use(middleware.RequestLogger(cfg.Logger))
			r.Use(middleware.NoStore)
			r.Use(h.loadStorefront)

			r.Get("/session", h.Me)
			r.With(limited).Post("/session/login", h.Login)
			r.Post("/session/logout", h.Logout)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Delete("/", h.ClearCart)
				r.Post("/items", h.AddItem)
				r.Patch("/items/{productID}", h.UpdateQuantity)
				r.Delete("/items/{productID}", h.RemoveItem)
			})

			r.Get("/currency", h.GetCurrency)
			r.Put("/currency/country", h.SetCountry)
			r.Put("/currency/currency", h.SetCurrency)

			r.Get("/locale", h.GetLocale)
			r.Put("/locale", h.SwitchLocale)

			r.Get("/consent", h.GetConsent)
			r.Put("/consent", h.SetConsent)
			r.Get("/recently-viewed", h.RecentlyViewed)
			r.Delete("/recently-viewed", h.ClearRecentlyViewed)

			r.Get("/products", h.ListProducts)
			r.Get("/products/featured", h.FeaturedProducts)
			r.Get("/products/{id}", h.GetProduct)
			r.Get("/shops", h.ListShops)
			r.Get("/shops/{id}", h.GetShop)
			r.Get("/settings/display", h.DisplaySettings)
			r.Get("/site-images", h.SiteImages)

			r.Get("/checkout", h.Checkout)

			r.Route("/auth", func(r chi.Router) {
				r.Use(limited)
				r.Post("/register", h.Register())
				r.Post("/forgot-password", h.ForgotPassword())
				r.Post("/reset-password", h.ResetPassword())
				r.Post("/verify-email", h.VerifyEmail())
				r.Post("/resend-verification", h.ResendVerification())
				r.Post("/phone/sms", h.SendSMSVerification())
				r.Post("/phone/whatsapp", h.SendWhatsAppVerification())
				r.Post("/phone/verify", h.VerifyPhone())
			})

			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(h.requireRole(adminRoles...))
					r.Get("/users", h.ListUsers)
					r.Put("/users/{id}", h.UpdateUser)
					r.Get("/roles", h.ListRoles)
					r.Post("/roles", h.CreateRole)
					r.Put("/roles/{id}", h.UpdateRole)
					r.Delete("/roles/{id}", h.DeleteRole)
					r.Delete("/images", h.DeleteImages)
					r.Put("/images/{id}/primary", h.SetPrimaryImage)
				})

				r.With(h.requireRole(domain.RoleAdmin, domain.RoleSuperAdmin, domain.RoleShopOwner)).
					Post("/shops", h.CreateShop)
				// Ownership is checked per shop.
				r.Delete("/shops/{id}", h.DeleteShop)
				r.Post("/products/{id}/images", h.UploadImages)
			})
		})
	})

	return r
}
