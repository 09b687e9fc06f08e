// Package server exposes the invoicing core over HTTP. This is thin glue:
// request handlers validate and translate, the services own the semantics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/dojohq/dojobill/internal/config"
	"github.com/dojohq/dojobill/internal/invoice"
	invoicedomain "github.com/dojohq/dojobill/internal/invoice/domain"
	"github.com/dojohq/dojobill/internal/observability"
	taxdomain "github.com/dojohq/dojobill/internal/tax/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	observability.Module,
	invoice.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

type Server struct {
	cfg config.Config
	log *zap.Logger

	taxSvc     taxdomain.Service
	invoiceSvc invoicedomain.Service
}

type ServerParam struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	TaxSvc     taxdomain.Service
	InvoiceSvc invoicedomain.Service
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg:        p.Config,
		log:        p.Log.Named("http.server"),
		taxSvc:     p.TaxSvc,
		invoiceSvc: p.InvoiceSvc,
	}
}

func NewEngine(metrics *observability.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.GinMiddleware(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerRoutes(r *gin.Engine, s *Server) {
	v1 := r.Group("/v1")

	v1.POST("/tax-rates", s.CreateTaxRate)
	v1.GET("/tax-rates", s.ListTaxRates)
	v1.PATCH("/tax-rates/:id", s.UpdateTaxRate)
	v1.DELETE("/tax-rates/:id", s.DisableTaxRate)

	v1.POST("/invoices", s.CreateInvoice)
	v1.GET("/invoices", s.ListInvoices)
	v1.GET("/invoices/statistics", s.InvoiceStatistics)
	v1.GET("/invoices/:id", s.GetInvoiceByID)
	v1.PUT("/invoices/:id/line-items", s.ReplaceDraftLineItems)
	v1.POST("/invoices/:id/status", s.TransitionInvoiceStatus)
	v1.POST("/invoices/:id/payments", s.RecordInvoicePayment)
	v1.DELETE("/invoices/:id", s.DeleteInvoice)
}

func run(lc fx.Lifecycle, r *gin.Engine, s *Server) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				s.log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
