package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"

	app "github.com/okian/churn/internal/app"
	"github.com/okian/churn/internal/config"
	"github.com/okian/churn/pkg/logger"
	"github.com/okian/churn/pkg/metrics"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("CHURN_ADDR", ":8080")
			_ = os.Setenv("CHURN_MAX_BATCH_SIZE", "50")
			_ = os.Setenv("CHURN_EXTRA_FIELDS", "ignore")
			defer func() {
				_ = os.Unsetenv("CHURN_ADDR")
				_ = os.Unsetenv("CHURN_MAX_BATCH_SIZE")
				_ = os.Unsetenv("CHURN_EXTRA_FIELDS")
			}()

			convey.Convey("Then configuration should reach the service", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")

				svc := app.New(serviceOptions(cfg, logger.Get())...)
				stats := svc.GetStats()
				convey.So(stats["maxBatchSize"], convey.ShouldEqual, 50)
				convey.So(stats["extraFields"], convey.ShouldEqual, "ignore")
				convey.So(stats["embedded"], convey.ShouldEqual, true)
			})
		})

		convey.Convey("When artifact paths are configured", func() {
			cfg := config.New()
			cfg.FeaturesPath = "/srv/models/features.yaml"
			cfg.EncoderPath = "/srv/models/encoder.yaml"
			cfg.ScalerPath = "/srv/models/scaler.yaml"
			cfg.ModelPath = "/srv/models/model.yaml"

			convey.Convey("Then the service loads from disk and fails on missing files", func() {
				svc := app.New(serviceOptions(cfg, logger.Get())...)
				convey.So(svc.GetStats()["embedded"], convey.ShouldEqual, false)
				convey.So(svc.Start(context.Background()), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestNewMux(t *testing.T) {
	convey.Convey("Given a started service and the full mux", t, func() {
		ctx := context.Background()
		cfg := config.New()
		svc := app.New(serviceOptions(cfg, logger.Get())...)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := httptest.NewServer(newMux(ctx, svc, cfg))
		defer srv.Close()

		for _, path := range []string{"/", "/api-docs", "/openapi.yaml", "/schema", "/stats", "/healthz", "/metrics"} {
			convey.Convey("Then GET "+path+" should succeed", func() {
				resp, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				defer resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		}

		convey.Convey("Then a malformed prediction request is a client error", func() {
			resp, err := http.Post(srv.URL+"/predict", "application/json", strings.NewReader("{"))
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			convey.Convey("Then it should return when the context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSystemMetricsUpdater(ctx)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing system metrics update", func() {
			convey.Convey("Then it should update metrics without panicking", func() {
				convey.So(func() {
					updateSystemMetrics()
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When creating a metrics manager on its own registry", func() {
			manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))

			convey.Convey("Then it should not collide with the global one", func() {
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When testing invalid configuration", func() {
			_ = os.Setenv("CHURN_ADDR", "")
			defer func() { _ = os.Unsetenv("CHURN_ADDR") }()

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When only some artifact paths are set", func() {
			_ = os.Setenv("CHURN_MODEL_PATH", "/srv/models/model.yaml")
			defer func() { _ = os.Unsetenv("CHURN_MODEL_PATH") }()

			convey.Convey("Then configuration loading should fail", func() {
				_, err := config.Load(context.Background())
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
