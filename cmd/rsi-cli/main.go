package main

import (
	"context"
	"log/slog"

	"gorsi/cmd/rsi-cli/commands"
	"gorsi/lib/telemetry"
	"gorsi/lib/util/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext(context.Background())
	defer cancel()

	tel, err := telemetry.SetupFromEnv(ctx, "rsi-cli")
	if err != nil && !telemetry.IsNotConfigured(err) {
		slog.Warn("failed to setup telemetry", "err", err)
	}
	defer tel.Shutdown(context.Background())

	commands.ExecuteContext(ctx)
}
