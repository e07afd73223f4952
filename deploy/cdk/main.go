package main

import (
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

func main() {
	defer jsii.Close()

	app := awscdk.NewApp(nil)
	cfg := DefaultConfig()

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("RELEASEPUB_NAME", &cfg.Name)
	str("RELEASEPUB_SCHEDULE", &cfg.ScheduleExpression)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("PRIVATE_BUCKET", &cfg.PrivateBucket)
	str("PUBLIC_BUCKET", &cfg.PublicBucket)
	str("INVOCATION_LOCK_TTL", &cfg.LockTTL)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	str("RELEASE_PUBLISHED_TOPIC_ENDPOINT", &cfg.EventTopicEndpoint)
	str("RELEASE_PUBLISHED_TOPIC_ACCESS_KEY", &cfg.EventTopicAccessKey)
	cfg.DestroyOnDelete = os.Getenv("RELEASEPUB_DESTROY_ON_DELETE") == "true"

	stackName := "ReleasePublisherStack"
	if name := os.Getenv("RELEASEPUB_STACK_NAME"); name != "" {
		stackName = name
	}

	NewPublisherStack(app, stackName, cfg)
	app.Synth(nil)
}
