package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/stretchr/testify/require"
)

// setupTestDirs creates dummy bootstrap files so CDK asset resolution
// succeeds without a real build.
func setupTestDirs(t *testing.T) StackConfig {
	t.Helper()
	lambdaDir := filepath.Join(t.TempDir(), "lambda")
	for _, h := range []string{"scheduled", "completer"} {
		dir := filepath.Join(lambdaDir, h)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bootstrap"), []byte("#!/bin/sh\n"), 0o755))
	}

	cfg := DefaultConfig()
	cfg.LambdaDistDir = lambdaDir
	return cfg
}

func synthTemplate(t *testing.T, cfg StackConfig) assertions.Template {
	t.Helper()
	app := awscdk.NewApp(nil)
	stack := NewPublisherStack(app, "TestStack", cfg)
	return assertions.Template_FromStack(stack, nil)
}

func templateJSON(t *testing.T, tmpl assertions.Template) string {
	t.Helper()
	b, err := json.Marshal(tmpl.ToJSON())
	require.NoError(t, err)
	return string(b)
}

func TestStatusTable(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.HasResourceProperties(jsii.String("AWS::DynamoDB::GlobalTable"), map[string]interface{}{
		"TableName": jsii.String("releasepub-status"),
		"KeySchema": &[]interface{}{
			map[string]interface{}{"AttributeName": jsii.String("PartitionKey"), "KeyType": jsii.String("HASH")},
			map[string]interface{}{"AttributeName": jsii.String("RowKey"), "KeyType": jsii.String("RANGE")},
		},
		"TimeToLiveSpecification": map[string]interface{}{
			"AttributeName": jsii.String("ttl"),
			"Enabled":       true,
		},
	})
}

func TestQueues(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.ResourceCountIs(jsii.String("AWS::SQS::Queue"), jsii.Number(3))
	tmpl.HasResourceProperties(jsii.String("AWS::SQS::Queue"), map[string]interface{}{
		"QueueName":         jsii.String("releasepub-completion"),
		"VisibilityTimeout": jsii.Number(1800),
		"RedrivePolicy": assertions.Match_ObjectLike(&map[string]interface{}{
			"maxReceiveCount": jsii.Number(5),
		}),
	})
}

func TestLambdaFunctionCount(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	// 2 handler functions + 1 CDK log-retention custom resource
	tmpl.ResourceCountIs(jsii.String("AWS::Lambda::Function"), jsii.Number(3))
}

func TestLambdaRuntimeAndArch(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	for _, name := range []string{"scheduled", "completer"} {
		t.Run(name, func(t *testing.T) {
			tmpl.HasResourceProperties(jsii.String("AWS::Lambda::Function"), map[string]interface{}{
				"FunctionName": jsii.String("releasepub-" + name),
				"Runtime":      jsii.String("provided.al2023"),
				"Architectures": &[]interface{}{
					jsii.String("arm64"),
				},
				"Handler": jsii.String("bootstrap"),
			})
		})
	}
}

func TestEnvVars(t *testing.T) {
	cfg := setupTestDirs(t)
	cfg.RedisAddr = "cache.internal:6379"
	tmpl := synthTemplate(t, cfg)

	tmpl.HasResourceProperties(jsii.String("AWS::Lambda::Function"), map[string]interface{}{
		"FunctionName": jsii.String("releasepub-completer"),
		"Environment": assertions.Match_ObjectLike(&map[string]interface{}{
			"Variables": assertions.Match_ObjectLike(&map[string]interface{}{
				"PRIVATE_BUCKET":      jsii.String("releasepub-private"),
				"PUBLIC_BUCKET":       jsii.String("releasepub-public"),
				"INVOCATION_LOCK_TTL": jsii.String("10m"),
				"REDIS_ADDR":          jsii.String("cache.internal:6379"),
			}),
		}),
	})
	require.NotContains(t, templateJSON(t, tmpl), "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func TestCompletionEventSource(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.HasResourceProperties(jsii.String("AWS::Lambda::EventSourceMapping"), map[string]interface{}{
		"BatchSize": jsii.Number(10),
		"FunctionResponseTypes": &[]interface{}{
			jsii.String("ReportBatchItemFailures"),
		},
	})
}

func TestScheduleRule(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.HasResourceProperties(jsii.String("AWS::Events::Rule"), map[string]interface{}{
		"ScheduleExpression": jsii.String("rate(5 minutes)"),
	})
}

func TestStackOutputs(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.HasOutput(jsii.String("TableName"), map[string]interface{}{})
	tmpl.HasOutput(jsii.String("CompletionQueueUrl"), map[string]interface{}{})
	tmpl.HasOutput(jsii.String("NotificationQueueUrl"), map[string]interface{}{})
}

func TestNoTopicPermissionsWithoutEndpoint(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tpl := templateJSON(t, tmpl)
	require.NotContains(t, tpl, "sns:Publish")
	require.NotContains(t, tpl, "events:PutEvents")
	require.NotContains(t, tpl, "secretsmanager:GetSecretValue")
}

func TestSNSTopicPermissions(t *testing.T) {
	cfg := setupTestDirs(t)
	cfg.EventTopicEndpoint = "arn:aws:sns:eu-west-2:123456789012:release-published"
	tmpl := synthTemplate(t, cfg)

	tmpl.HasResourceProperties(jsii.String("AWS::IAM::Policy"), map[string]interface{}{
		"PolicyDocument": assertions.Match_ObjectLike(&map[string]interface{}{
			"Statement": assertions.Match_ArrayWith(&[]interface{}{
				assertions.Match_ObjectLike(&map[string]interface{}{
					"Action":   jsii.String("sns:Publish"),
					"Resource": jsii.String(cfg.EventTopicEndpoint),
				}),
			}),
		}),
	})
}

func TestSecretAccessKeyPermissions(t *testing.T) {
	cfg := setupTestDirs(t)
	cfg.EventTopicEndpoint = "https://topic.example.com/api/events"
	cfg.EventTopicAccessKey = "secretsmanager:topic-key"
	tmpl := synthTemplate(t, cfg)

	tpl := templateJSON(t, tmpl)
	require.Contains(t, tpl, "secretsmanager:GetSecretValue")
	require.NotContains(t, tpl, "sns:Publish")
}

func TestTableReadWriteGrant(t *testing.T) {
	tmpl := synthTemplate(t, setupTestDirs(t))

	tmpl.HasResourceProperties(jsii.String("AWS::IAM::Policy"), map[string]interface{}{
		"PolicyDocument": assertions.Match_ObjectLike(&map[string]interface{}{
			"Statement": assertions.Match_ArrayWith(&[]interface{}{
				assertions.Match_ObjectLike(&map[string]interface{}{
					"Action": assertions.Match_ArrayWith(&[]interface{}{
						jsii.String("dynamodb:PutItem"),
					}),
				}),
			}),
		}),
	})
}
