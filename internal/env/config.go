package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config is the server's environment-loaded configuration (§6 "Config
// value object"). The original implementation loads equivalent fields from
// a hand-rolled .ini file (compoundpi/configparser.py); that file format is
// the out-of-scope collaborator, not environment-variable configuration.
type Config struct {
	// Network is the CIDR the server broadcasts and listens on.
	Network string `env:"CPID_NETWORK, default=192.168.0.0/16"`

	// Port is the UDP port both client and server bind.
	Port int `env:"CPID_PORT, default=5647"`

	// BindHost is the address the UDP socket and the debug HTTP server
	// bind to.
	BindHost string `env:"CPID_BIND_HOST, default=0.0.0.0"`

	// HTTPPort serves the debug HTTP surface (§DOMAIN STACK).
	HTTPPort int `env:"CPID_HTTP_PORT, default=8000"`

	// Timeout bounds a single command's retry/collect loop client-side.
	Timeout time.Duration `env:"CPID_TIMEOUT, default=15s"`

	// CaptureDelay is the default inter-frame delay CAPTURE uses when the
	// caller does not override it.
	CaptureDelay float64 `env:"CPID_CAPTURE_DELAY, default=0.0"`

	// CaptureCount is the default frame count for CAPTURE.
	CaptureCount int `env:"CPID_CAPTURE_COUNT, default=1"`

	// VideoPort selects the GPU's video port for CAPTURE by default.
	VideoPort bool `env:"CPID_VIDEO_PORT, default=false"`

	// TimeDelta bounds the clock-skew STATUS aggregation tolerates before
	// flagging a discrepancy (§4.3 "status aggregation").
	TimeDelta float64 `env:"CPID_TIME_DELTA, default=0.25"`

	// OutputDir is where the client writes downloaded images.
	OutputDir string `env:"CPID_OUTPUT_DIR, default=."`

	// DebugHTTP enables the gin debug HTTP surface.
	DebugHTTP bool `env:"CPID_DEBUG_HTTP, default=true"`

	// RetryMin/RetryMax bound the server's response retry backoff (§9
	// "Retry timers").
	RetryMin time.Duration `env:"CPID_RETRY_MIN, default=100ms"`
	RetryMax time.Duration `env:"CPID_RETRY_MAX, default=400ms"`

	// IdleTimeout evicts a server-side session once a peer has been quiet
	// for this long.
	IdleTimeout time.Duration `env:"CPID_IDLE_TIMEOUT, default=10m"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			panic(err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
