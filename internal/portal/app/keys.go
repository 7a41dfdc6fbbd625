package app

import (
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/portal/pkg/jwtx"
)

// InitKeys builds the access token KeyManager.
//
// Storage modes:
//   - "ephemeral": keys live in memory and every outstanding access token
//     dies with the process. Refresh tokens survive, so clients recover
//     with one refresh.
//   - "file": keys are PEM files under KeyDir and survive restarts.
func InitKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{
		VerifyOptions: jwtx.VerifyOptions{Issuer: cfg.Issuer},
		NumKeys:       cfg.NumKeys,
	}

	switch cfg.KeyStorageMode {
	case "file":
		km, err := jwtx.NewFileKeyManager(cfg.KeyDir, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file key manager: %w", err)
		}
		logger.Info("signing keys loaded", "dir", cfg.KeyDir, "num_keys", km.NumSigners(), "issuer", cfg.Issuer)
		return km, nil

	default:
		km, err := jwtx.NewEphemeralKeyManager(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}
		logger.Info("generated ephemeral signing keys", "num_keys", km.NumSigners(), "issuer", cfg.Issuer)
		logger.Warn("access tokens issued before this start are no longer valid")
		return km, nil
	}
}
