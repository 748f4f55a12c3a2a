package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	service "github.com/okian/churn/internal/app"
	"github.com/okian/churn/internal/domain/artifact"
	"github.com/okian/churn/internal/domain/model"
	"github.com/okian/churn/internal/domain/preprocess"
	"github.com/okian/churn/internal/domain/scoring"
	"github.com/okian/churn/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should report the embedded bundle and reject policy", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["embedded"], ShouldEqual, true)
			So(stats["extraFields"], ShouldEqual, "reject")
			So(stats["maxBatchSize"], ShouldEqual, 1_000)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(
			service.WithBatchWorkers(2),
			service.WithMaxBatchSize(10),
			service.WithExtraFields("ignore"),
			service.WithExtraFields("bogus"),
		)

		Convey("Then valid options apply and invalid ones are ignored", func() {
			stats := svc.GetStats()
			So(stats["batchWorkers"], ShouldEqual, 2)
			So(stats["maxBatchSize"], ShouldEqual, 10)
			So(stats["extraFields"], ShouldEqual, "ignore")
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And it should be marked as started", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["columns"], ShouldEqual, 46)
			})

			Convey("And starting again should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a service pointed at missing artifacts", t, func() {
		svc := service.New(service.WithArtifactPaths(artifact.Paths{
			Features: "/nonexistent/features.yaml",
			Encoder:  "/nonexistent/encoder.yaml",
			Scaler:   "/nonexistent/scaler.yaml",
			Model:    "/nonexistent/model.yaml",
		}))

		Convey("When starting the service", func() {
			err := svc.Start(context.Background())

			Convey("Then start fails with an artifact load error", func() {
				So(errors.Is(err, artifact.ErrArtifactLoad), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("And predictions are refused", func() {
				_, err := svc.Predict(context.Background(), model.FeatureRecord{})
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := service.New()
		So(svc.Start(context.Background()), ShouldBeNil)

		Convey("When stopping it twice", func() {
			svc.Stop()
			svc.Stop()

			Convey("Then it is stopped and refuses work", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				_, err := svc.Schema(context.Background())
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})
	})
}

func TestErrorKind(t *testing.T) {
	Convey("Given errors from every layer", t, func() {
		cases := map[string]error{
			"unknown_category":   &preprocess.UnknownCategoryError{Feature: "contract", Value: "Lifetime"},
			"missing_feature":    &preprocess.FeatureError{Feature: "tenure", Kind: preprocess.ErrMissingFeature},
			"unexpected_feature": &preprocess.FeatureError{Feature: "id", Kind: preprocess.ErrUnexpectedFeature},
			"invalid_value":      &preprocess.FeatureError{Feature: "tenure", Kind: preprocess.ErrInvalidValue},
			"undefined_score":    scoring.ErrUndefinedScore,
			"dimension_mismatch": &scoring.DimensionMismatchError{Want: 46, Got: 45},
			"canceled":           context.Canceled,
			"internal":           errors.New("boom"),
		}

		Convey("Then each maps to a stable kind", func() {
			for want, err := range cases {
				So(service.ErrorKind(err), ShouldEqual, want)
			}
		})

		Convey("And a joined error takes the first kind in priority order", func() {
			err := errors.Join(
				&preprocess.FeatureError{Feature: "tenure", Kind: preprocess.ErrMissingFeature},
				&preprocess.UnknownCategoryError{Feature: "contract", Value: "Lifetime"},
			)
			So(service.ErrorKind(err), ShouldEqual, "unknown_category")
		})
	})
}
