package http

import (
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxRequestBodySize = 1 << 20

type RouterConfig struct {
	Carts          CartService
	Catalog        catalog.Catalog
	JWTSecret      []byte
	RequestTimeout time.Duration
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	carts := NewCartHandler(cfg.Carts, cfg.RequestTimeout, logger)
	products := NewProductHandler(cfg.Catalog, cfg.RequestTimeout, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.RequestSize(maxRequestBodySize))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", products.List)
		r.Get("/{ref}", products.Get)
	})

	r.Route("/cart", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWTSecret))
		r.Get("/", carts.GetCart)
		r.Post("/", carts.AddLine)
		r.Put("/", carts.UpdateQuantity)
		r.Delete("/", carts.ClearCart)
		r.Delete("/items", carts.RemoveLine)
		r.Post("/merge", carts.MergeGuestCart)
	})

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
	})

	return otelhttp.NewHandler(c.Handler(r), "cart-service")
}
