package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"xtrace-checkout/internal/application"
	"xtrace-checkout/internal/config"
	"xtrace-checkout/internal/domain/ports/repository"
)

// HostedCheckout is the part of a hosted gateway the API exposes: its
// callback endpoint and the page of a pending order.
type HostedCheckout interface {
	CallbackHandler() http.HandlerFunc
	CheckoutURL(orderID string) (string, bool)
}

// Server exposes checkout sessions over HTTP.
type Server struct {
	checkout *application.CheckoutFacade
	receipts repository.ReceiptRepository // optional
	hosted   HostedCheckout               // optional
	cfg      config.HTTPConfig
	cbPath   string
	log      *zerolog.Logger
	server   *http.Server
}

// NewServer constructs the HTTP layer. callbackPath must match the gateway's
// configured callback URL path.
func NewServer(checkout *application.CheckoutFacade, receipts repository.ReceiptRepository, hosted HostedCheckout, cfg config.HTTPConfig, callbackPath string, logger *zerolog.Logger) *Server {
	if callbackPath == "" {
		callbackPath = "/api/v1/gateway/callback"
	}
	return &Server{
		checkout: checkout,
		receipts: receipts,
		hosted:   hosted,
		cfg:      cfg,
		cbPath:   callbackPath,
		log:      logger,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.CleanPath)
	r.Use(TraceID())
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if s.hosted != nil {
		cb := s.hosted.CallbackHandler()
		r.Get(s.cbPath, cb)
		r.Post(s.cbPath, cb)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RequestTimeout > 0 {
			r.Use(Timeout(s.cfg.RequestTimeout))
		}
		r.Post("/checkout", s.handleOpen)
		r.Route("/checkout/{id}", func(r chi.Router) {
			r.Get("/", s.handleView)
			r.Delete("/", s.handleClose)
			r.Put("/user", s.handleSetUser)
			r.Put("/purpose", s.handleSelectPurpose)
			r.Put("/target", s.handleSelectTarget)
			r.Post("/coupon", s.handleApplyCoupon)
			r.Post("/submit", s.handleSubmit)
		})
		if s.receipts != nil {
			r.Group(func(r chi.Router) {
				r.Use(SupportKey(s.cfg.SupportAPIKey, s.log))
				r.Get("/users/{userID}/receipts", s.handleListReceipts)
				r.Get("/orders/{orderID}/receipt", s.handleFindReceipt)
			})
		}
	})
	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.Routes(),
	}
	s.log.Info().Int("port", s.cfg.Port).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
