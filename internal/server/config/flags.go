package config

import (
	"flag"

	"github.com/abhidhakal/cipher-drop/internal/flagx"
)

// parseFlags overlays command-line flags on config.
//
//	-a string   gRPC bind address
//	-d string   PostgreSQL DSN
//	-l string   log level
//	-legacy     accept envelopes without a session reference
//	-b string   S3 bucket for audit exports
//	-g string   S3 region
//	-e string   S3 base endpoint
//
// Invalid flags panic, matching parseJson.
func parseFlags(config *Config, osArgs []string) {
	args := flagx.FilterArgs(osArgs, []string{"-a", "-d", "-l", "-legacy", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.AllowLegacySessions, "legacy", config.AllowLegacySessions, "accept legacy session envelopes")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
