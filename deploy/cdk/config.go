package main

// StackConfig holds configuration for the publisher CDK stack.
type StackConfig struct {
	Name             string
	MemorySize       float64
	Timeout          float64
	LambdaDistDir    string
	LogRetentionDays float64
	// ScheduleExpression drives the scheduled sweep, e.g. "rate(5 minutes)".
	ScheduleExpression string
	DestroyOnDelete    bool

	DatabaseURL   string
	RedisAddr     string
	PrivateBucket string
	PublicBucket  string
	LockTTL       string
	OTLPEndpoint  string

	// Endpoint and optional access key of the ReleaseVersionPublished topic.
	EventTopicEndpoint  string
	EventTopicAccessKey string
}

// DefaultConfig returns a StackConfig with sensible defaults.
func DefaultConfig() StackConfig {
	return StackConfig{
		Name:               "releasepub",
		MemorySize:         512,
		Timeout:            300,
		LambdaDistDir:      "../dist/lambda",
		LogRetentionDays:   14,
		ScheduleExpression: "rate(5 minutes)",
		PrivateBucket:      "releasepub-private",
		PublicBucket:       "releasepub-public",
		LockTTL:            "10m",
	}
}
