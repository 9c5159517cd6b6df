package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/abhidhakal/cipher-drop/internal/common"
)

type lookupFunc func(string) (string, bool)

// parseEnv reads secrets. A missing vault or session key is an error.
func parseEnv(config *Config, lookup lookupFunc) error {
	raw, ok := lookup(EnvVaultKey)
	if !ok || raw == "" {
		return fmt.Errorf("%w: %s is not set", common.ErrInvalidKey, EnvVaultKey)
	}
	key, err := DecodeVaultKey(raw)
	if err != nil {
		return err
	}
	config.VaultKey = key

	raw, ok = lookup(EnvSessionKey)
	if !ok || raw == "" {
		return fmt.Errorf("%w: %s is not set", common.ErrInvalidKey, EnvSessionKey)
	}
	config.SessionSigningKey = decodeSigningKey(raw)

	parseOptionalEnv(config, lookup)
	return nil
}

// parseOptionalEnv reads settings that may legitimately be absent.
func parseOptionalEnv(config *Config, lookup lookupFunc) {
	if v, ok := lookup(EnvCaptchaSecret); ok {
		config.CaptchaSecret = v
	}
	if v, ok := lookup(EnvS3AccessKey); ok {
		config.S3AccessKey = v
	}
	if v, ok := lookup(EnvS3SecretKey); ok {
		config.S3SecretKey = v
	}
}

// DecodeVaultKey accepts 64 hex characters or standard base64, and requires
// exactly 32 decoded bytes.
func DecodeVaultKey(s string) ([]byte, error) {
	var key []byte
	if b, err := hex.DecodeString(s); err == nil {
		key = b
	} else if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		key = b
	} else {
		return nil, fmt.Errorf("%w: vault key is neither hex nor base64", common.ErrInvalidKey)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: vault key must decode to 32 bytes, got %d", common.ErrInvalidKey, len(key))
	}
	return key, nil
}

func decodeSigningKey(s string) []byte {
	if b, err := hex.DecodeString(s); err == nil {
		return b
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}
