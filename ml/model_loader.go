package ml

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

type LoaderConfig struct {
	ModelPath   string
	InfoPath    string
	WaitTimeout time.Duration
}

// LoadModel reads the booster artifact and its metadata file and checks that
// they describe the same feature and class layout.
func LoadModel(modelPath, infoPath string) (*Model, error) {
	payload, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	booster, err := ParseBooster(payload)
	if err != nil {
		return nil, fmt.Errorf("parse model artifact %s: %w", modelPath, err)
	}
	meta, err := LoadMetadata(infoPath)
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	return NewModel(booster, meta, artifactVersion(meta, payload))
}

func artifactVersion(meta Metadata, payload []byte) string {
	if meta.Version != "" {
		return meta.Version
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:12]
}

// NewLoader returns the LoadFunc used at process startup. When WaitTimeout is
// set it first waits for the artifact to appear on disk.
func NewLoader(cfg LoaderConfig, logger *zap.Logger) LoadFunc {
	return func(ctx context.Context) (*Model, error) {
		start := time.Now()
		if cfg.WaitTimeout > 0 {
			if err := WaitForFile(ctx, cfg.ModelPath, cfg.WaitTimeout); err != nil {
				return nil, err
			}
		}
		model, err := LoadModel(cfg.ModelPath, cfg.InfoPath)
		if err != nil {
			return nil, err
		}
		logger.Info("model loaded",
			zap.String("path", cfg.ModelPath),
			zap.String("version", model.Version()),
			zap.Strings("features", model.encoder.Names()),
			zap.Float64("accuracy", model.meta.Accuracy),
			zap.Duration("elapsed", time.Since(start)),
		)
		return model, nil
	}
}
