package vector

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/config"
)

// New builds a Backend from config.
func New(cfg config.VectorConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Provider {
	case "pipe":
		return NewPipeBackend(PipeConfig{
			Command:      cfg.Command,
			Args:         cfg.Args,
			QueryTimeout: cfg.QueryTimeout,
		}, logger)
	case "chromem":
		return NewChromemBackend(ChromemConfig{
			Path:       cfg.Path,
			EmbedModel: cfg.EmbedModel,
			EmbedURL:   cfg.EmbedURL,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
