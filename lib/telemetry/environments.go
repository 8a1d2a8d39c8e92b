package telemetry

import (
	"context"
	"os"

	"gorsi/lib/configutil"
)

// SetupFromEnv searches up the filesystem from the cwd to find a file called
// telemetry.json5, once found it will then use it as a config to setup telemetry.
//
// When no such file exists telemetry is left as the otel no-op providers and
// os.ErrNotExist is returned.
func SetupFromEnv(ctx context.Context, serviceName string) (Telemetry, error) {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if err != nil {
		return Telemetry{}, err
	}
	return Setup(ctx, serviceName, config)
}

// IsNotConfigured reports whether err means SetupFromEnv found no config file.
func IsNotConfigured(err error) bool {
	return os.IsNotExist(err)
}
