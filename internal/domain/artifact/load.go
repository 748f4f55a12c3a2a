package artifact

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/churn/internal/domain/model"
)

const supportedVersion = 1

// Paths locates the four artifacts of one training run.
type Paths struct {
	Features string
	Encoder  string
	Scaler   string
	Model    string
}

type featuresDoc struct {
	Version  int `yaml:"version"`
	Features []struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	} `yaml:"features"`
}

type encoderDoc struct {
	Version       int    `yaml:"version"`
	HandleUnknown string `yaml:"handle_unknown"`
	Features      []struct {
		Name       string   `yaml:"name"`
		Categories []string `yaml:"categories"`
	} `yaml:"features"`
}

type scalerDoc struct {
	Version  int `yaml:"version"`
	Features []struct {
		Name string  `yaml:"name"`
		Mean float64 `yaml:"mean"`
		Std  float64 `yaml:"std"`
	} `yaml:"features"`
}

type modelDoc struct {
	Version      int     `yaml:"version"`
	ModelType    string  `yaml:"model_type"`
	Threshold    float64 `yaml:"threshold"`
	Intercept    float64 `yaml:"intercept"`
	Coefficients []struct {
		Column string  `yaml:"column"`
		Weight float64 `yaml:"weight"`
	} `yaml:"coefficients"`
}

// Load reads the four artifacts from the local filesystem and validates
// them against each other. Any failure is a *LoadError matching ErrArtifactLoad.
func Load(featuresPath, encoderPath, scalerPath, modelPath string) (*Bundle, error) {
	return load(os.ReadFile, Paths{
		Features: featuresPath,
		Encoder:  encoderPath,
		Scaler:   scalerPath,
		Model:    modelPath,
	})
}

// LoadFS is Load over an fs.FS, e.g. the embedded default bundle.
func LoadFS(fsys fs.FS, p Paths) (*Bundle, error) {
	return load(func(name string) ([]byte, error) { return fs.ReadFile(fsys, name) }, p)
}

func load(read func(string) ([]byte, error), p Paths) (*Bundle, error) {
	var (
		fd featuresDoc
		ed encoderDoc
		sd scalerDoc
		md modelDoc
	)
	if err := decodeFile(read, NameFeatures, p.Features, &fd); err != nil {
		return nil, err
	}
	if err := decodeFile(read, NameEncoder, p.Encoder, &ed); err != nil {
		return nil, err
	}
	if err := decodeFile(read, NameScaler, p.Scaler, &sd); err != nil {
		return nil, err
	}
	if err := decodeFile(read, NameModel, p.Model, &md); err != nil {
		return nil, err
	}

	features, err := buildFeatures(p.Features, &fd)
	if err != nil {
		return nil, err
	}
	encoder, err := buildEncoder(p.Encoder, &ed)
	if err != nil {
		return nil, err
	}
	scaler, err := buildScaler(p.Scaler, &sd)
	if err != nil {
		return nil, err
	}
	lm, err := buildModel(p.Model, &md)
	if err != nil {
		return nil, err
	}

	b := &Bundle{Features: *features, Encoder: encoder, Scaler: scaler, Model: lm}
	if err := b.crossCheck(); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeFile(read func(string) ([]byte, error), artifact, path string, out any) error {
	if strings.TrimSpace(path) == "" {
		return loadErr(artifact, path, ErrCorrupt, "path is empty")
	}
	data, err := read(path)
	if err != nil {
		return &LoadError{Artifact: artifact, Path: path, Err: err}
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return loadErr(artifact, path, ErrCorrupt, "file is empty")
		}
		return loadErr(artifact, path, ErrCorrupt, "%v", err)
	}
	return nil
}

func checkVersion(artifact, path string, v int) error {
	if v != supportedVersion {
		return loadErr(artifact, path, ErrInvalid, "unsupported version %d", v)
	}
	return nil
}

func buildFeatures(path string, d *featuresDoc) (*FeatureList, error) {
	if err := checkVersion(NameFeatures, path, d.Version); err != nil {
		return nil, err
	}
	if len(d.Features) == 0 {
		return nil, loadErr(NameFeatures, path, ErrInvalid, "no features")
	}
	seen := make(map[string]struct{}, len(d.Features))
	out := &FeatureList{Features: make([]FeatureSpec, 0, len(d.Features))}
	for i, f := range d.Features {
		if f.Name == "" {
			return nil, loadErr(NameFeatures, path, ErrInvalid, "feature %d has no name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, loadErr(NameFeatures, path, ErrInvalid, "duplicate feature %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		t := model.FeatureType(f.Type)
		if !t.Valid() {
			return nil, loadErr(NameFeatures, path, ErrInvalid, "feature %q has unknown type %q", f.Name, f.Type)
		}
		out.Features = append(out.Features, FeatureSpec{Name: f.Name, Type: t})
	}
	return out, nil
}

func buildEncoder(path string, d *encoderDoc) (*Encoder, error) {
	if err := checkVersion(NameEncoder, path, d.Version); err != nil {
		return nil, err
	}
	policy := UnknownPolicy(d.HandleUnknown)
	switch policy {
	case "":
		policy = UnknownError
	case UnknownError, UnknownBucket:
	default:
		return nil, loadErr(NameEncoder, path, ErrInvalid, "unknown handle_unknown %q", d.HandleUnknown)
	}

	e := &Encoder{HandleUnknown: policy, Features: make([]EncodedFeature, 0, len(d.Features))}
	seen := make(map[string]struct{}, len(d.Features))
	for _, f := range d.Features {
		if f.Name == "" {
			return nil, loadErr(NameEncoder, path, ErrInvalid, "feature without name")
		}
		if _, dup := seen[f.Name]; dup {
			return nil, loadErr(NameEncoder, path, ErrInvalid, "duplicate feature %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if len(f.Categories) == 0 {
			return nil, loadErr(NameEncoder, path, ErrInvalid, "feature %q has no categories", f.Name)
		}
		cats := make(map[string]struct{}, len(f.Categories))
		for _, c := range f.Categories {
			if _, dup := cats[c]; dup {
				return nil, loadErr(NameEncoder, path, ErrInvalid, "feature %q repeats category %q", f.Name, c)
			}
			cats[c] = struct{}{}
		}
		e.Features = append(e.Features, EncodedFeature{
			Name:       f.Name,
			Categories: append([]string(nil), f.Categories...),
		})
	}
	e.build()
	return e, nil
}

func buildScaler(path string, d *scalerDoc) (*Scaler, error) {
	if err := checkVersion(NameScaler, path, d.Version); err != nil {
		return nil, err
	}
	s := &Scaler{Features: make([]ScaledFeature, 0, len(d.Features))}
	seen := make(map[string]struct{}, len(d.Features))
	for _, f := range d.Features {
		if f.Name == "" {
			return nil, loadErr(NameScaler, path, ErrInvalid, "feature without name")
		}
		if _, dup := seen[f.Name]; dup {
			return nil, loadErr(NameScaler, path, ErrInvalid, "duplicate feature %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if !finite(f.Mean) {
			return nil, loadErr(NameScaler, path, ErrInvalid, "feature %q has non-finite mean", f.Name)
		}
		// A zero or negative std would divide by zero or flip the sign at inference.
		if !finite(f.Std) || f.Std <= 0 {
			return nil, loadErr(NameScaler, path, ErrInvalid, "feature %q has invalid std %v", f.Name, f.Std)
		}
		s.Features = append(s.Features, ScaledFeature{Name: f.Name, Mean: f.Mean, Std: f.Std})
	}
	return s, nil
}

func buildModel(path string, d *modelDoc) (*LinearModel, error) {
	if err := checkVersion(NameModel, path, d.Version); err != nil {
		return nil, err
	}
	if d.Threshold != 0 {
		return nil, loadErr(NameModel, path, ErrInvalid, "threshold must be 0, got %v", d.Threshold)
	}
	if !finite(d.Intercept) {
		return nil, loadErr(NameModel, path, ErrInvalid, "non-finite intercept")
	}
	if len(d.Coefficients) == 0 {
		return nil, loadErr(NameModel, path, ErrInvalid, "no coefficients")
	}
	m := &LinearModel{
		ModelType: d.ModelType,
		Columns:   make([]string, 0, len(d.Coefficients)),
		Weights:   make([]float64, 0, len(d.Coefficients)),
		Intercept: d.Intercept,
		Threshold: d.Threshold,
	}
	seen := make(map[string]struct{}, len(d.Coefficients))
	for _, c := range d.Coefficients {
		if c.Column == "" {
			return nil, loadErr(NameModel, path, ErrInvalid, "coefficient without column")
		}
		if _, dup := seen[c.Column]; dup {
			return nil, loadErr(NameModel, path, ErrInvalid, "duplicate coefficient for %q", c.Column)
		}
		seen[c.Column] = struct{}{}
		if !finite(c.Weight) {
			return nil, loadErr(NameModel, path, ErrInvalid, "non-finite weight for %q", c.Column)
		}
		m.Columns = append(m.Columns, c.Column)
		m.Weights = append(m.Weights, c.Weight)
	}
	return m, nil
}

// crossCheck ties the artifacts together: the feature list must partition
// exactly into encoder and scaler features, and the model must carry one
// weight per output column. Model weights are reordered into the layout.
func (b *Bundle) crossCheck() error {
	categorical := make(map[string]struct{})
	numeric := make(map[string]struct{})
	for _, f := range b.Features.Features {
		if f.Type == model.Categorical {
			categorical[f.Name] = struct{}{}
		} else {
			numeric[f.Name] = struct{}{}
		}
	}

	if len(b.Encoder.Features) != len(categorical) {
		return loadErr(NameBundle, "", ErrSchemaMismatch,
			"feature list has %d categorical features, encoder has %d", len(categorical), len(b.Encoder.Features))
	}
	for _, f := range b.Encoder.Features {
		if _, ok := categorical[f.Name]; !ok {
			return loadErr(NameBundle, "", ErrSchemaMismatch, "encoder feature %q is not categorical in the feature list", f.Name)
		}
	}
	if len(b.Scaler.Features) != len(numeric) {
		return loadErr(NameBundle, "", ErrSchemaMismatch,
			"feature list has %d numeric features, scaler has %d", len(numeric), len(b.Scaler.Features))
	}
	for _, f := range b.Scaler.Features {
		if _, ok := numeric[f.Name]; !ok {
			return loadErr(NameBundle, "", ErrSchemaMismatch, "scaler feature %q is not numeric in the feature list", f.Name)
		}
	}

	layout := b.Columns()
	position := make(map[string]int, len(layout))
	for i, c := range layout {
		if _, dup := position[c]; dup {
			return loadErr(NameBundle, "", ErrSchemaMismatch, "column %q produced twice", c)
		}
		position[c] = i
	}

	if len(b.Model.Weights) != len(layout) {
		return loadErr(NameBundle, "", ErrSchemaMismatch,
			"model has %d weights, encoder and scaler produce %d columns", len(b.Model.Weights), len(layout))
	}
	weights := make([]float64, len(layout))
	for i, c := range b.Model.Columns {
		j, ok := position[c]
		if !ok {
			return loadErr(NameBundle, "", ErrSchemaMismatch, "model column %q is not produced by encoder or scaler", c)
		}
		weights[j] = b.Model.Weights[i]
	}
	b.Model.Columns = layout
	b.Model.Weights = weights
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
