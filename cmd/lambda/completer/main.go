// completer Lambda consumes stage-completion messages from SQS and completes
// publishing for attempts whose prior stages have all finished.
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

func handler(ctx context.Context, event intlambda.CompletionEvent) (intlambda.CompletionResponse, error) {
	d, err := getDeps()
	if err != nil {
		return intlambda.CompletionResponse{}, err
	}
	defer func() {
		if ferr := d.Telemetry.Flush(context.WithoutCancel(ctx)); ferr != nil {
			d.Logger.Warn("flushing telemetry", "error", ferr)
		}
	}()
	return intlambda.HandleCompletion(ctx, d.Publisher, event, d.Logger)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
