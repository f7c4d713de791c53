package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/whome/internal/api/handlers"
	"github.com/your-org/whome/internal/api/ws"
	"github.com/your-org/whome/internal/auth"
	"github.com/your-org/whome/internal/registration"
	"github.com/your-org/whome/internal/storage"
)

// Store is the relational storage the API serves from.
type Store interface {
	handlers.IdentityStore
	handlers.MenuStore
	handlers.ProductStore
	handlers.ScanEventStore
	handlers.Pinger
}

type BlobStore interface {
	storage.ObjectStore
	handlers.Pinger
}

// ScanManager runs scan sessions and holds their handed-off frames.
type ScanManager interface {
	handlers.ScanController
	registration.HandOffSource
	Forget(identityID uuid.UUID)
	ActiveCount() int
}

type RouterConfig struct {
	Keys   auth.Keys
	DB     Store
	Blobs  BlobStore
	Bucket string
	// Bus is nil when the API runs without NATS.
	Bus          handlers.BusPinger
	Hub          *ws.Hub
	Model        handlers.ModelState
	Gate         handlers.ModelGate
	Scans        ScanManager
	Registration handlers.Registrar
	Orders       handlers.OrderService
	// Invalidate drops cached descriptors of a deleted identity.
	Invalidate func(id uuid.UUID)
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Blobs, cfg.Bus, cfg.Model, cfg.Blobs, cfg.Bucket)
	var sessions, clients handlers.Counter
	if cfg.Scans != nil {
		sessions = handlers.CounterFunc(cfg.Scans.ActiveCount)
	}
	if cfg.Hub != nil {
		clients = handlers.CounterFunc(cfg.Hub.ClientCount)
	}
	systemH.WithActivity(sessions, clients)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth). Kiosk keys reach scanning, registration, the
	// menu and ordering; the rest needs the admin key.
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.Keys))
	admin := v1.Group("", auth.RequireRole(auth.RoleAdmin))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)
	admin.GET("/system/storage", systemH.Storage)
	admin.GET("/system/status", systemH.Status)
	admin.POST("/system/model/reload", systemH.ReloadModel)

	// Scan sessions
	scanH := handlers.NewScanHandler(cfg.Scans, cfg.DB)
	v1.GET("/scan", scanH.List)
	v1.GET("/scan/:camera", scanH.Status)
	v1.POST("/scan/:camera/start", scanH.Start)
	v1.POST("/scan/:camera/stop", scanH.Stop)
	v1.POST("/scan/:camera/retry", scanH.Retry)
	admin.GET("/scan-events", scanH.Events)

	// Registration
	regH := handlers.NewRegistrationHandler(cfg.Registration, cfg.Gate, cfg.Scans)
	v1.POST("/register", regH.Register)
	v1.POST("/capture", regH.Capture)

	// Identities
	var observers []handlers.IdentityObserver
	if cfg.Scans != nil {
		observers = append(observers, cfg.Scans)
	}
	if cfg.Invalidate != nil {
		observers = append(observers, handlers.ForgetFunc(cfg.Invalidate))
	}
	identH := handlers.NewIdentityHandler(cfg.DB, cfg.Blobs, observers...)
	admin.GET("/identities", identH.List)
	admin.POST("/identities/search", identH.Search)
	admin.GET("/identities/:id", identH.Get)
	admin.PATCH("/identities/:id", identH.Update)
	admin.DELETE("/identities/:id", identH.Delete)
	v1.GET("/identities/:id/snapshot", identH.Snapshot)
	v1.GET("/identities/:id/photo", identH.Photo)

	// Menu & products
	menuH := handlers.NewMenuHandler(cfg.DB, cfg.Blobs)
	v1.GET("/menu", menuH.List)
	admin.POST("/menu", menuH.Create)
	admin.PUT("/menu/:id", menuH.Update)
	admin.DELETE("/menu/:id", menuH.Delete)
	v1.GET("/menu/:id/image", menuH.Image)

	productH := handlers.NewProductHandler(cfg.DB)
	v1.GET("/products", productH.List)
	v1.GET("/products/:id", productH.Get)
	admin.POST("/products", productH.Create)
	admin.PUT("/products/:id", productH.Update)
	admin.DELETE("/products/:id", productH.Delete)

	// Orders
	orderH := handlers.NewOrderHandler(cfg.Orders)
	v1.POST("/orders", orderH.Create)
	admin.PATCH("/orders/:id/status", orderH.UpdateStatus)
	v1.GET("/users/:id/orders", orderH.History)
	v1.GET("/users/:id/frequent-items", orderH.FrequentItems)

	return r
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AllowHeaders = append(c.AllowHeaders, "X-API-Key")
	return c
}
