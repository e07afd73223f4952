// scheduled Lambda sweeps the status store for publishing attempts due to
// complete. Invoked by an EventBridge schedule rule.
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	intlambda "github.com/dwsmith1983/releasepub/internal/lambda"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

func handler(ctx context.Context) (intlambda.ScheduledResponse, error) {
	d, err := getDeps()
	if err != nil {
		return intlambda.ScheduledResponse{}, err
	}
	defer func() {
		if ferr := d.Telemetry.Flush(context.WithoutCancel(ctx)); ferr != nil {
			d.Logger.Warn("flushing telemetry", "error", ferr)
		}
	}()
	return intlambda.HandleScheduled(ctx, d.Publisher, d.Status, d.Now(), d.Logger)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
