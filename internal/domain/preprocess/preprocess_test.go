package preprocess_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/churn/internal/domain/artifact"
	"github.com/okian/churn/internal/domain/model"
	"github.com/okian/churn/internal/domain/preprocess"
)

const (
	featuresYAML = `version: 1
features:
  - {name: plan, type: categorical}
  - {name: tenure, type: numeric}
  - {name: region, type: categorical}
  - {name: charges, type: numeric}
`
	encoderYAML = `version: 1
handle_unknown: %s
features:
  - {name: plan, categories: [basic, pro]}
  - {name: region, categories: [eu, us]}
`
	scalerYAML = `version: 1
features:
  - {name: tenure, mean: 10, std: 2}
  - {name: charges, mean: 50.5, std: 0.25}
`
	modelYAML = `version: 1
model_type: sgd_classifier
threshold: 0
intercept: 0
coefficients:
  - {column: plan_basic, weight: 1}
  - {column: plan_pro, weight: 1}
  - {column: region_eu, weight: 1}
  - {column: region_us, weight: 1}
  - {column: tenure, weight: 1}
  - {column: charges, weight: 1}
`
	bucketWeights = `  - {column: plan_unknown, weight: 1}
  - {column: region_unknown, weight: 1}
`
)

func bundle(t *testing.T, policy string) *artifact.Bundle {
	t.Helper()
	m := modelYAML
	if policy == "bucket" {
		m += bucketWeights
	}
	fsys := fstest.MapFS{
		"features.yaml": {Data: []byte(featuresYAML)},
		"encoder.yaml":  {Data: []byte(strings.Replace(encoderYAML, "%s", policy, 1))},
		"scaler.yaml":   {Data: []byte(scalerYAML)},
		"model.yaml":    {Data: []byte(m)},
	}
	b, err := artifact.LoadFS(fsys, artifact.Paths{
		Features: "features.yaml",
		Encoder:  "encoder.yaml",
		Scaler:   "scaler.yaml",
		Model:    "model.yaml",
	})
	if err != nil {
		t.Fatalf("load bundle: %v", err)
	}
	return b
}

func newPreprocessor(t *testing.T, policy string, opts ...preprocess.Option) *preprocess.Preprocessor {
	t.Helper()
	p, err := preprocess.New(bundle(t, policy), opts...)
	if err != nil {
		t.Fatalf("new preprocessor: %v", err)
	}
	return p
}

func validRecord() model.FeatureRecord {
	return model.FeatureRecord{
		"plan":    "pro",
		"tenure":  10,
		"region":  "eu",
		"charges": 50.75,
	}
}

func TestTransform(t *testing.T) {
	Convey("Given a preprocessor over a small bundle", t, func() {
		p := newPreprocessor(t, "error")

		Convey("When transforming a valid record", func() {
			vec, err := p.Transform(validRecord())
			So(err, ShouldBeNil)

			Convey("Then encoded columns come first and scaled columns last", func() {
				So(vec.Columns, ShouldResemble, []string{"plan_basic", "plan_pro", "region_eu", "region_us", "tenure", "charges"})
				want := []float64{0, 1, 1, 0, 0, 1}
				if diff := cmp.Diff(want, vec.Values); diff != "" {
					t.Errorf("vector mismatch (-want +got):\n%s", diff)
				}
			})

			Convey("Then each categorical block is one-hot", func() {
				So(vec.Values[0]+vec.Values[1], ShouldEqual, 1.0)
				So(vec.Values[2]+vec.Values[3], ShouldEqual, 1.0)
			})
		})

		Convey("When a numeric value equals the trained mean", func() {
			rec := validRecord()
			rec["charges"] = 50.5
			vec, err := p.Transform(rec)

			Convey("Then it scales to zero", func() {
				So(err, ShouldBeNil)
				So(vec.Values[5], ShouldEqual, 0.0)
			})
		})

		Convey("When a numeric value is one std above the mean", func() {
			rec := validRecord()
			rec["tenure"] = 12.0
			vec, err := p.Transform(rec)

			Convey("Then it scales to one", func() {
				So(err, ShouldBeNil)
				So(vec.Values[4], ShouldEqual, 1.0)
			})
		})

		Convey("When the same record is built in a different key order", func() {
			a, errA := p.Transform(validRecord())
			reordered := model.FeatureRecord{}
			for _, k := range []string{"charges", "region", "tenure", "plan"} {
				reordered[k] = validRecord()[k]
			}
			b, errB := p.Transform(reordered)

			Convey("Then the vectors are identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(b.Values, ShouldResemble, a.Values)
			})
		})

		Convey("When the transform runs twice on the same record", func() {
			a, _ := p.Transform(validRecord())
			b, _ := p.Transform(validRecord())

			Convey("Then it is deterministic", func() {
				So(b.Values, ShouldResemble, a.Values)
			})
		})
	})
}

func TestTransformCoercion(t *testing.T) {
	Convey("Given a preprocessor", t, func() {
		p := newPreprocessor(t, "error")
		base, err := p.Transform(validRecord())
		So(err, ShouldBeNil)

		Convey("When numeric fields arrive as strings or json.Number", func() {
			rec := validRecord()
			rec["tenure"] = " 10 "
			rec["charges"] = json.Number("50.75")
			vec, err := p.Transform(rec)

			Convey("Then they are scaled like native numbers", func() {
				So(err, ShouldBeNil)
				So(vec.Values, ShouldResemble, base.Values)
			})
		})

		Convey("When a numeric field is not a number", func() {
			rec := validRecord()
			rec["tenure"] = "ten"
			_, err := p.Transform(rec)

			Convey("Then it is an invalid value for that feature", func() {
				So(errors.Is(err, preprocess.ErrInvalidValue), ShouldBeTrue)
				var fe *preprocess.FeatureError
				So(errors.As(err, &fe), ShouldBeTrue)
				So(fe.Feature, ShouldEqual, "tenure")
			})
		})

		Convey("When a numeric field is not finite", func() {
			rec := validRecord()
			rec["charges"] = "NaN"
			_, err := p.Transform(rec)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, preprocess.ErrInvalidValue), ShouldBeTrue)
			})
		})

		Convey("When a categorical field holds the same number in different spellings", func() {
			keys := make([]string, 0, 3)
			for _, v := range []any{1.0, json.Number("1.0"), json.Number("1e0")} {
				rec := validRecord()
				rec["region"] = v
				_, err := p.Transform(rec)
				var ue *preprocess.UnknownCategoryError
				So(errors.As(err, &ue), ShouldBeTrue)
				keys = append(keys, ue.Value)
			}

			Convey("Then every spelling maps to one canonical category key", func() {
				So(keys, ShouldResemble, []string{"1", "1", "1"})
			})
		})

		Convey("When a field is null", func() {
			rec := validRecord()
			rec["plan"] = nil
			_, err := p.Transform(rec)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, preprocess.ErrInvalidValue), ShouldBeTrue)
			})
		})
	})
}

func TestTransformRejections(t *testing.T) {
	Convey("Given a preprocessor without an unknown bucket", t, func() {
		p := newPreprocessor(t, "error")

		Convey("When a categorical value is outside the vocabulary", func() {
			rec := validRecord()
			rec["region"] = "apac"
			vec, err := p.Transform(rec)

			Convey("Then an UnknownCategoryError is returned instead of a zero block", func() {
				So(vec.Values, ShouldBeNil)
				So(errors.Is(err, preprocess.ErrUnknownCategory), ShouldBeTrue)
				var uc *preprocess.UnknownCategoryError
				So(errors.As(err, &uc), ShouldBeTrue)
				So(uc.Feature, ShouldEqual, "region")
				So(uc.Value, ShouldEqual, "apac")
			})
		})

		Convey("When features are missing", func() {
			rec := validRecord()
			delete(rec, "tenure")
			delete(rec, "plan")
			_, err := p.Transform(rec)

			Convey("Then every missing feature is reported in canonical order", func() {
				So(errors.Is(err, preprocess.ErrMissingFeature), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "missing feature \"plan\"\nmissing feature \"tenure\"")
			})
		})

		Convey("When the record carries extra keys", func() {
			rec := validRecord()
			rec["zeta"] = 1
			rec["alpha"] = "x"
			_, err := p.Transform(rec)

			Convey("Then they are rejected in sorted order by default", func() {
				So(errors.Is(err, preprocess.ErrUnexpectedFeature), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "unexpected feature \"alpha\"\nunexpected feature \"zeta\"")
			})
		})

		Convey("When a feature is missing and an extra key takes its slot", func() {
			rec := validRecord()
			delete(rec, "charges")
			rec["charge"] = 50.75
			_, err := p.Transform(rec)

			Convey("Then both problems are reported", func() {
				So(errors.Is(err, preprocess.ErrMissingFeature), ShouldBeTrue)
				So(errors.Is(err, preprocess.ErrUnexpectedFeature), ShouldBeTrue)
			})
		})

		Convey("When a rejected record is followed by a valid one", func() {
			bad := validRecord()
			bad["plan"] = "gold"
			_, err := p.Transform(bad)
			So(err, ShouldNotBeNil)
			_, err = p.Transform(validRecord())

			Convey("Then the preprocessor is unaffected", func() {
				So(err, ShouldBeNil)
			})
		})
	})

	Convey("Given a preprocessor that ignores extra keys", t, func() {
		p := newPreprocessor(t, "error", preprocess.WithExtraFields(preprocess.ExtraIgnore))
		rec := validRecord()
		rec["customer_id"] = "7590-VHVEG"
		vec, err := p.Transform(rec)

		Convey("Then the extra key is dropped", func() {
			So(err, ShouldBeNil)
			So(vec.Len(), ShouldEqual, 6)
			So(p.ExtraFields(), ShouldEqual, preprocess.ExtraIgnore)
		})
	})
}

func TestTransformUnknownBucket(t *testing.T) {
	Convey("Given a preprocessor whose encoder has an unknown bucket", t, func() {
		p := newPreprocessor(t, "bucket")

		Convey("When a categorical value is outside the vocabulary", func() {
			rec := validRecord()
			rec["plan"] = "enterprise"
			vec, err := p.Transform(rec)

			Convey("Then the unknown column is set instead of failing", func() {
				So(err, ShouldBeNil)
				So(vec.Columns[:3], ShouldResemble, []string{"plan_basic", "plan_pro", "plan_unknown"})
				So(vec.Values[:3], ShouldResemble, []float64{0, 0, 1})
			})
		})
	})
}
