package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/config"
)

// NewStore creates a new Store based on the configuration.
//
// This factory function examines the VectorStoreConfig.Provider field and
// creates the appropriate store implementation:
//   - "chromem" (default): Creates an embedded ChromemStore (no external deps)
//   - "qdrant": Creates a QdrantStore (requires external Qdrant server)
//
// The returned store records Prometheus metrics for every operation.
//
// Example usage:
//
//	store, err := vectorstore.NewStore(cfg.VectorStore, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func NewStore(cfg config.VectorStoreConfig, logger *zap.Logger) (*Instrumented, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Provider {
	case "chromem", "":
		store, err = NewChromemStore(ChromemConfig{
			Path:     cfg.Chromem.Path,
			Compress: cfg.Chromem.Compress,
		}, logger)

	case "qdrant":
		store, err = NewQdrantStore(QdrantConfig{
			Host:         cfg.Qdrant.Host,
			Port:         cfg.Qdrant.Port,
			APIKey:       cfg.Qdrant.APIKey.Value(),
			UseTLS:       cfg.Qdrant.UseTLS,
			MaxRetries:   cfg.Qdrant.MaxRetries,
			RetryBackoff: cfg.Qdrant.Backoff.Duration(),
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	backend := cfg.Provider
	if backend == "" {
		backend = "chromem"
	}
	return NewInstrumented(store, backend), nil
}
