package httpserver

import (
	"context"
	"errors"
	"net/url"
	"time"

	"coffeehouse/internal/contact"
	"coffeehouse/internal/domain"
	"coffeehouse/internal/profile"
	"coffeehouse/internal/reservation"
	"coffeehouse/internal/storefront"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Clients runs work against a device's storefront client.
type Clients interface {
	Do(ctx context.Context, deviceID string, fn func(*storefront.Client) error) error
}

type Devices interface {
	Issue() (token, deviceID string, err error)
	Lookup(token string) (string, error)
	TTLSeconds() int
}

type Menu interface {
	Items(ctx context.Context, category string) []domain.MenuItem
	Categories(ctx context.Context) []string
	Item(ctx context.Context, id int64) (*domain.MenuItem, error)
}

type Profiles interface {
	Get(ctx context.Context, ownerID string) (*domain.UserProfile, error)
	Update(ctx context.Context, ownerID string, u profile.Update) (*domain.UserProfile, error)
}

type Reservations interface {
	Submit(ctx context.Context, id *domain.Identity, req reservation.Request) (*domain.Reservation, error)
	ListForOwner(ctx context.Context, ownerID string) ([]domain.Reservation, error)
}

type Contact interface {
	Submit(ctx context.Context, m contact.Message) (*domain.ContactMessage, error)
}

// GoogleCallback finishes the self-hosted Google sign-in.
type GoogleCallback interface {
	HandleGoogleCallback(ctx context.Context, query url.Values) (string, error)
}

// ReadyCheck is probed by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps wires the handlers. Google may be nil.
type Deps struct {
	Clients      Clients
	Devices      Devices
	Menu         Menu
	Profiles     Profiles
	Reservations Reservations
	Contact      Contact
	Google       GoogleCallback
	Ready        []ReadyCheck

	// PublicBaseURL is where the browser reaches this service; OAuth redirects are built from it.
	PublicBaseURL     string
	CORSOrigins       []string
	AuthRatePerMinute int
}

func (d Deps) validate() error {
	var errs []error
	if d.Clients == nil {
		errs = append(errs, errors.New("clients are required"))
	}
	if d.Devices == nil {
		errs = append(errs, errors.New("device service is required"))
	}
	if d.Menu == nil {
		errs = append(errs, errors.New("menu is required"))
	}
	if d.Profiles == nil || d.Reservations == nil || d.Contact == nil {
		errs = append(errs, errors.New("profile, reservation and contact services are required"))
	}
	return errors.Join(errs...)
}

type handlers struct {
	deps   Deps
	logger *zap.Logger
}

// buildRouter wires routes for the API.
func buildRouter(logger *zap.Logger, deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), prometheusMiddleware())
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", deviceHeader},
			ExposeHeaders:    []string{"Content-Length", deviceHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Ready))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handlers{deps: deps, logger: logger}
	device := deviceMiddleware(deps.Devices, isHTTPS(deps.PublicBaseURL), logger)
	limiter := newRateLimiter(deps.AuthRatePerMinute)

	router.GET("/auth/callback", device, h.oauthCallback)
	if deps.Google != nil {
		router.GET("/oauth/google/callback", h.googleCallback)
	}

	api := router.Group("/api", device)

	sess := api.Group("/session")
	sess.GET("", h.getSession)
	sess.POST("/login", limiter.middleware(), h.login)
	sess.POST("/register", limiter.middleware(), h.register)
	sess.DELETE("", h.logout)
	sess.GET("/oauth/google", h.googleRedirect)

	cart := api.Group("/cart")
	cart.GET("", h.getCart)
	cart.POST("/lines", h.addLine)
	cart.PUT("/lines/:itemId", h.setQuantity)
	cart.DELETE("/lines/:itemId", h.removeLine)
	cart.DELETE("", h.clearCart)
	cart.POST("/checkout", h.checkout)

	api.GET("/orders", h.listOrders)
	api.POST("/orders/refresh", h.refreshOrders)

	api.GET("/profile", h.getProfile)
	api.PUT("/profile", h.updateProfile)

	fav := api.Group("/favorites")
	fav.GET("", h.listFavorites)
	fav.PUT("/:itemId", h.addFavorite)
	fav.DELETE("/:itemId", h.removeFavorite)
	fav.POST("/:itemId/toggle", h.toggleFavorite)

	api.GET("/menu", h.listMenu)
	api.GET("/menu/categories", h.listCategories)
	api.GET("/menu/:itemId", h.getMenuItem)

	api.POST("/reservations", h.createReservation)
	api.GET("/reservations", h.listReservations)
	api.POST("/contact", h.createContact)

	return router, nil
}

// withClient runs fn against the requesting device's client and writes any error.
func (h *handlers) withClient(c *gin.Context, fn func(*storefront.Client) error) bool {
	err := h.deps.Clients.Do(c.Request.Context(), deviceID(c), fn)
	if err != nil {
		writeError(c, h.logger, err)
		return false
	}
	return true
}

// bind decodes a JSON body and maps decode failures to invalid input.
func bind(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return domain.Invalid("malformed request body")
	}
	return nil
}
