package loadgen

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/okian/churn/pkg/logger"
)

// Generator draws records that satisfy a schema.
type Generator struct {
	schema Schema
	rng    *rand.Rand
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(schema Schema, seed uint64) *Generator {
	return &Generator{schema: schema, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Next returns one valid record. Categorical features pick a category
// uniformly; numeric features are drawn around the training mean and kept
// non-negative.
func (g *Generator) Next() Record {
	rec := make(Record, len(g.schema.Features))
	for _, f := range g.schema.Features {
		switch {
		case len(f.Categories) > 0:
			rec[f.Name] = f.Categories[g.rng.IntN(len(f.Categories))]
		default:
			mean, std := 0.0, 1.0
			if f.Mean != nil {
				mean = *f.Mean
			}
			if f.Std != nil {
				std = *f.Std
			}
			v := math.Max(0, mean+g.rng.NormFloat64()*std)
			rec[f.Name] = math.Round(v*100) / 100
		}
	}
	return rec
}

// Invalid returns a record whose first categorical feature holds a value the
// encoder has never seen.
func (g *Generator) Invalid() Record {
	rec := g.Next()
	for _, f := range g.schema.Features {
		if len(f.Categories) > 0 {
			rec[f.Name] = unknownCategory
			break
		}
	}
	return rec
}

// generateRecords builds the run's records in order.
func generateRecords(ctx context.Context, config *Config, schema Schema, stats *Stats) []Record {
	logger.Get().Info(ctx, "generating records", logger.Int("numRecords", config.NumRecords))

	gen := NewGenerator(schema, config.Seed)
	records := make([]Record, config.NumRecords)
	for i := range records {
		if config.InvalidEvery > 0 && (i+1)%config.InvalidEvery == 0 {
			records[i] = gen.Invalid()
			continue
		}
		records[i] = gen.Next()
	}
	stats.Generated = len(records)
	return records
}
