package remote

import (
	"fmt"

	"github.com/viktor/chat-storage-gateway/internal/config"
)

// New builds the remote store selected by cfg.Driver.
func New(cfg *config.RemoteConfig) (Remote, error) {
	switch cfg.Driver {
	case "telegram":
		return NewTelegram(&cfg.Telegram), nil
	case "s3":
		return NewS3(&cfg.S3)
	default:
		return nil, fmt.Errorf("unknown remote driver: %s", cfg.Driver)
	}
}
