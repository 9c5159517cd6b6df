package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/abhidhakal/cipher-drop/internal/flagx"
	"github.com/abhidhakal/cipher-drop/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Pointer fields let a
// file override only what it names.
type JsonConfig struct {
	EndpointAddrGRPC    *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN         *string         `json:"database_dsn"`
	LogLevel            *string         `json:"log_level"`
	AllowLegacySessions *bool           `json:"allow_legacy_sessions"`
	MFAPendingTTL       *timex.Duration `json:"mfa_pending_ttl"`
	ResetTokenTTL       *timex.Duration `json:"reset_token_ttl"`
	LoginRateLimit      *int            `json:"login_rate_limit"`
	LoginRateWindow     *timex.Duration `json:"login_rate_window"`
	MFARateLimit        *int            `json:"mfa_rate_limit"`
	MFARateWindow       *timex.Duration `json:"mfa_rate_window"`
	CaptchaVerifyURL    *string         `json:"captcha_verify_url"`
	CaptchaMinScore     *float64        `json:"captcha_min_score"`
	TopUpMaxCents       *int64          `json:"top_up_max_cents"`
	S3Bucket            *string         `json:"s3_bucket"`
	S3Region            *string         `json:"s3_region"`
	S3BaseEndpoint      *string         `json:"s3_base_endpoint"`
}

// parseJson loads the file named by -c/-config, if any, and copies the
// fields it sets into config. Unreadable or invalid files panic.
func parseJson(config *Config, osArgs []string) {
	path := flagx.ConfigPath(osArgs)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	if c.AllowLegacySessions != nil {
		config.AllowLegacySessions = *c.AllowLegacySessions
	}
	setDuration(&config.MFAPendingTTL, c.MFAPendingTTL)
	setDuration(&config.ResetTokenTTL, c.ResetTokenTTL)
	if c.LoginRateLimit != nil {
		config.LoginRateLimit = *c.LoginRateLimit
	}
	setDuration(&config.LoginRateWindow, c.LoginRateWindow)
	if c.MFARateLimit != nil {
		config.MFARateLimit = *c.MFARateLimit
	}
	setDuration(&config.MFARateWindow, c.MFARateWindow)
	setString(&config.CaptchaVerifyURL, c.CaptchaVerifyURL)
	if c.CaptchaMinScore != nil {
		config.CaptchaMinScore = *c.CaptchaMinScore
	}
	if c.TopUpMaxCents != nil {
		config.TopUpMaxCents = *c.TopUpMaxCents
	}
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
