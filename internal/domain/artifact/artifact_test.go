package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/churn/internal/domain/model"
	"github.com/okian/churn/models"
)

const (
	tinyFeatures = `version: 1
features:
  - name: plan
    type: categorical
  - name: tenure
    type: numeric
  - name: region
    type: categorical
`
	tinyEncoder = `version: 1
handle_unknown: error
features:
  - name: plan
    categories: [basic, pro]
  - name: region
    categories: [eu, us, apac]
`
	tinyScaler = `version: 1
features:
  - name: tenure
    mean: 10
    std: 2
`
	tinyModel = `version: 1
model_type: sgd_classifier
threshold: 0
intercept: -0.5
coefficients:
  - {column: tenure, weight: -1.5}
  - {column: region_apac, weight: 0.3}
  - {column: plan_pro, weight: 0.2}
  - {column: region_us, weight: 0.1}
  - {column: plan_basic, weight: -0.2}
  - {column: region_eu, weight: 0.05}
`
)

type tinyBundle struct {
	features, encoder, scaler, model string
}

func defaultTiny() tinyBundle {
	return tinyBundle{features: tinyFeatures, encoder: tinyEncoder, scaler: tinyScaler, model: tinyModel}
}

func (b tinyBundle) write(t *testing.T) (string, string, string, string) {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 4)
	for i, body := range []string{b.features, b.encoder, b.scaler, b.model} {
		p := filepath.Join(dir, []string{"features.yaml", "encoder.yaml", "scaler.yaml", "model.yaml"}[i])
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
		paths[i] = p
	}
	return paths[0], paths[1], paths[2], paths[3]
}

func loadTiny(t *testing.T, b tinyBundle) (*Bundle, error) {
	f, e, s, m := b.write(t)
	return Load(f, e, s, m)
}

func TestLoadValidBundle(t *testing.T) {
	Convey("Given a consistent artifact bundle on disk", t, func() {
		b, err := loadTiny(t, defaultTiny())
		So(err, ShouldBeNil)

		Convey("Then the feature list keeps its canonical order and types", func() {
			So(b.Features.Names(), ShouldResemble, []string{"plan", "tenure", "region"})
			So(b.Features.Features[1].Type, ShouldEqual, model.Numeric)
		})

		Convey("Then the layout is encoder columns followed by scaler columns", func() {
			want := []string{"plan_basic", "plan_pro", "region_eu", "region_us", "region_apac", "tenure"}
			if diff := cmp.Diff(want, b.Columns()); diff != "" {
				t.Errorf("columns mismatch (-want +got):\n%s", diff)
			}
		})

		Convey("Then model weights are reordered by column name into the layout", func() {
			So(b.Model.Columns, ShouldResemble, b.Columns())
			So(b.Model.Weights, ShouldResemble, []float64{-0.2, 0.2, 0.05, 0.1, 0.3, -1.5})
			So(b.Model.Intercept, ShouldEqual, -0.5)
		})

		Convey("Then the encoder resolves categories to absolute columns", func() {
			col, ok := b.Encoder.Column(1, "apac")
			So(ok, ShouldBeTrue)
			So(col, ShouldEqual, 4)

			_, ok = b.Encoder.Column(1, "mars")
			So(ok, ShouldBeFalse)
		})

		Convey("Then the scaler standardizes around the trained mean", func() {
			So(b.Scaler.Scale(0, 10), ShouldEqual, 0.0)
			So(b.Scaler.Scale(0, 12), ShouldEqual, 1.0)
		})
	})
}

func TestLoadBucketEncoder(t *testing.T) {
	Convey("Given an encoder that declares an unknown bucket", t, func() {
		tb := defaultTiny()
		tb.encoder = strings.Replace(tinyEncoder, "handle_unknown: error", "handle_unknown: bucket", 1)
		tb.model = tinyModel + "  - {column: plan_unknown, weight: 0.7}\n  - {column: region_unknown, weight: 0.0}\n"

		b, err := loadTiny(t, tb)
		So(err, ShouldBeNil)

		Convey("Then every categorical feature gets a trailing unknown column", func() {
			So(b.Encoder.Columns(), ShouldResemble, []string{
				"plan_basic", "plan_pro", "plan_unknown",
				"region_eu", "region_us", "region_apac", "region_unknown",
			})
		})

		Convey("Then unseen values map to that column", func() {
			col, ok := b.Encoder.Column(0, "enterprise")
			So(ok, ShouldBeTrue)
			So(col, ShouldEqual, 2)
			So(b.Model.Weights[col], ShouldEqual, 0.7)
		})
	})

	Convey("Given a bucket encoder whose model lacks the unknown columns", t, func() {
		tb := defaultTiny()
		tb.encoder = strings.Replace(tinyEncoder, "handle_unknown: error", "handle_unknown: bucket", 1)
		_, err := loadTiny(t, tb)

		Convey("Then the weight count mismatch is a load error", func() {
			So(errors.Is(err, ErrArtifactLoad), ShouldBeTrue)
			So(errors.Is(err, ErrSchemaMismatch), ShouldBeTrue)
		})
	})
}

func TestLoadFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*tinyBundle)
		kind   error
		part   string
	}{
		{
			name:   "corrupt yaml",
			mutate: func(b *tinyBundle) { b.scaler = "version: [1\n" },
			kind:   ErrCorrupt,
			part:   NameScaler,
		},
		{
			name:   "empty document",
			mutate: func(b *tinyBundle) { b.model = "" },
			kind:   ErrCorrupt,
			part:   NameModel,
		},
		{
			name:   "unknown field",
			mutate: func(b *tinyBundle) { b.features = tinyFeatures + "extra: true\n" },
			kind:   ErrCorrupt,
			part:   NameFeatures,
		},
		{
			name:   "unsupported version",
			mutate: func(b *tinyBundle) { b.encoder = strings.Replace(tinyEncoder, "version: 1", "version: 2", 1) },
			kind:   ErrInvalid,
			part:   NameEncoder,
		},
		{
			name:   "zero std",
			mutate: func(b *tinyBundle) { b.scaler = strings.Replace(tinyScaler, "std: 2", "std: 0", 1) },
			kind:   ErrInvalid,
			part:   NameScaler,
		},
		{
			name:   "non-zero threshold",
			mutate: func(b *tinyBundle) { b.model = strings.Replace(tinyModel, "threshold: 0", "threshold: 0.5", 1) },
			kind:   ErrInvalid,
			part:   NameModel,
		},
		{
			name:   "duplicate category",
			mutate: func(b *tinyBundle) { b.encoder = strings.Replace(tinyEncoder, "[basic, pro]", "[basic, basic]", 1) },
			kind:   ErrInvalid,
			part:   NameEncoder,
		},
		{
			name:   "unknown feature type",
			mutate: func(b *tinyBundle) { b.features = strings.Replace(tinyFeatures, "type: numeric", "type: ordinal", 1) },
			kind:   ErrInvalid,
			part:   NameFeatures,
		},
		{
			name: "scaler feature declared categorical",
			mutate: func(b *tinyBundle) {
				b.features = strings.Replace(tinyFeatures, "type: numeric", "type: categorical", 1)
			},
			kind: ErrSchemaMismatch,
			part: NameBundle,
		},
		{
			name: "model column not produced",
			mutate: func(b *tinyBundle) {
				b.model = strings.Replace(tinyModel, "region_apac", "region_latam", 1)
			},
			kind: ErrSchemaMismatch,
			part: NameBundle,
		},
		{
			name: "model missing a weight",
			mutate: func(b *tinyBundle) {
				b.model = strings.Replace(tinyModel, "  - {column: region_eu, weight: 0.05}\n", "", 1)
			},
			kind: ErrSchemaMismatch,
			part: NameBundle,
		},
	}

	Convey("Given artifact bundles with one defect each", t, func() {
		for _, tc := range cases {
			Convey("When the bundle has "+tc.name, func() {
				tb := defaultTiny()
				tc.mutate(&tb)
				b, err := loadTiny(t, tb)

				Convey("Then no bundle is returned and the error names the artifact", func() {
					So(b, ShouldBeNil)
					So(errors.Is(err, ErrArtifactLoad), ShouldBeTrue)
					So(errors.Is(err, tc.kind), ShouldBeTrue)

					var le *LoadError
					So(errors.As(err, &le), ShouldBeTrue)
					So(le.Artifact, ShouldEqual, tc.part)
				})
			})
		}
	})

	Convey("Given a path that does not exist", t, func() {
		f, e, s, _ := defaultTiny().write(t)
		_, err := Load(f, e, s, filepath.Join(t.TempDir(), "missing.yaml"))

		Convey("Then the load error wraps the filesystem error", func() {
			So(errors.Is(err, ErrArtifactLoad), ShouldBeTrue)
			So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "missing.yaml")
		})
	})

	Convey("Given an empty path", t, func() {
		f, e, s, _ := defaultTiny().write(t)
		_, err := Load(f, e, s, "  ")

		Convey("Then it is rejected without touching the filesystem", func() {
			So(errors.Is(err, ErrArtifactLoad), ShouldBeTrue)
			So(errors.Is(err, ErrCorrupt), ShouldBeTrue)
		})
	})
}

func TestLoadEmbeddedBundle(t *testing.T) {
	Convey("Given the embedded default bundle", t, func() {
		b, err := LoadFS(models.FS, Paths{
			Features: models.FeaturesFile,
			Encoder:  models.EncoderFile,
			Scaler:   models.ScalerFile,
			Model:    models.ModelFile,
		})
		So(err, ShouldBeNil)

		Convey("Then it describes the nineteen telco features", func() {
			So(len(b.Features.Features), ShouldEqual, 19)
			So(b.Features.Names()[0], ShouldEqual, "gender")
			So(b.Features.Names()[18], ShouldEqual, "total_charges")
		})

		Convey("Then it produces 43 encoded and 3 scaled columns", func() {
			So(b.Encoder.Width(), ShouldEqual, 43)
			So(b.Scaler.Columns(), ShouldResemble, []string{"tenure", "monthly_charges", "total_charges"})
			So(len(b.Model.Weights), ShouldEqual, 46)
		})
	})
}
