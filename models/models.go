// Package models embeds the default churn artifact bundle shipped with the service.
package models

import "embed"

// Default file names inside the bundle.
const (
	FeaturesFile = "features.yaml"
	EncoderFile  = "encoder.yaml"
	ScalerFile   = "scaler.yaml"
	ModelFile    = "model.yaml"
)

// FS holds the four artifacts produced by the same training run.
//
//go:embed features.yaml encoder.yaml scaler.yaml model.yaml
var FS embed.FS
