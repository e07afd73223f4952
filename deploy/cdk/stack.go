package main

import (
	"path/filepath"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awseventstargets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambdaeventsources"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// NewPublisherStack declares the status table, queues and the two completion
// Lambdas with their triggers and grants.
func NewPublisherStack(scope constructs.Construct, id string, cfg StackConfig) awscdk.Stack {
	stack := awscdk.NewStack(scope, &id, nil)

	// Status table. Key attributes match the store's PartitionKey/RowKey layout.
	table := awsdynamodb.NewTableV2(stack, jsii.String("StatusTable"), &awsdynamodb.TablePropsV2{
		TableName: jsii.String(cfg.Name + "-status"),
		PartitionKey: &awsdynamodb.Attribute{
			Name: jsii.String("PartitionKey"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		SortKey: &awsdynamodb.Attribute{
			Name: jsii.String("RowKey"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		Billing:             awsdynamodb.Billing_OnDemand(nil),
		TimeToLiveAttribute: jsii.String("ttl"),
		RemovalPolicy:       removalPolicy(cfg.DestroyOnDelete),
	})

	// Queues
	timeout := awscdk.Duration_Seconds(jsii.Number(cfg.Timeout))
	completionDLQ := awssqs.NewQueue(stack, jsii.String("CompletionDLQ"), &awssqs.QueueProps{
		QueueName:       jsii.String(cfg.Name + "-completion-dlq"),
		RetentionPeriod: awscdk.Duration_Days(jsii.Number(14)),
	})
	completionQueue := awssqs.NewQueue(stack, jsii.String("CompletionQueue"), &awssqs.QueueProps{
		QueueName: jsii.String(cfg.Name + "-completion"),
		// Six times the function timeout so in-flight batches are not redelivered early.
		VisibilityTimeout: awscdk.Duration_Seconds(jsii.Number(cfg.Timeout * 6)),
		DeadLetterQueue: &awssqs.DeadLetterQueue{
			Queue:           completionDLQ,
			MaxReceiveCount: jsii.Number(5),
		},
	})
	notificationQueue := awssqs.NewQueue(stack, jsii.String("NotificationQueue"), &awssqs.QueueProps{
		QueueName: jsii.String(cfg.Name + "-notifications"),
	})

	env := &map[string]*string{
		"TABLE_NAME":             table.TableName(),
		"NOTIFICATION_QUEUE_URL": notificationQueue.QueueUrl(),
		"PRIVATE_BUCKET":         jsii.String(cfg.PrivateBucket),
		"PUBLIC_BUCKET":          jsii.String(cfg.PublicBucket),
		"INVOCATION_LOCK_TTL":    jsii.String(cfg.LockTTL),
	}
	optional := map[string]string{
		"DATABASE_URL":                       cfg.DatabaseURL,
		"REDIS_ADDR":                         cfg.RedisAddr,
		"OTEL_EXPORTER_OTLP_ENDPOINT":        cfg.OTLPEndpoint,
		"RELEASE_PUBLISHED_TOPIC_ENDPOINT":   cfg.EventTopicEndpoint,
		"RELEASE_PUBLISHED_TOPIC_ACCESS_KEY": cfg.EventTopicAccessKey,
	}
	for k, v := range optional {
		if v != "" {
			(*env)[k] = jsii.String(v)
		}
	}

	makeFn := func(name string) awslambda.Function {
		return awslambda.NewFunction(stack, jsii.String(name), &awslambda.FunctionProps{
			FunctionName: jsii.String(cfg.Name + "-" + name),
			Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
			Handler:      jsii.String("bootstrap"),
			Code:         awslambda.Code_FromAsset(jsii.String(filepath.Join(cfg.LambdaDistDir, name)), nil),
			Architecture: awslambda.Architecture_ARM_64(),
			MemorySize:   jsii.Number(cfg.MemorySize),
			Timeout:      timeout,
			Environment:  env,
			LogRetention: logRetentionDays(cfg.LogRetentionDays),
		})
	}
	scheduledFn := makeFn("scheduled")
	completerFn := makeFn("completer")
	fns := []awslambda.Function{scheduledFn, completerFn}

	// Triggers
	awsevents.NewRule(stack, jsii.String("ScheduledSweep"), &awsevents.RuleProps{
		Schedule: awsevents.Schedule_Expression(jsii.String(cfg.ScheduleExpression)),
		Targets:  &[]awsevents.IRuleTarget{awseventstargets.NewLambdaFunction(scheduledFn, nil)},
	})
	completerFn.AddEventSource(awslambdaeventsources.NewSqsEventSource(completionQueue, &awslambdaeventsources.SqsEventSourceProps{
		BatchSize:               jsii.Number(10),
		ReportBatchItemFailures: jsii.Bool(true),
	}))

	// Grants
	privateBucket := awss3.Bucket_FromBucketName(stack, jsii.String("PrivateBucket"), jsii.String(cfg.PrivateBucket))
	publicBucket := awss3.Bucket_FromBucketName(stack, jsii.String("PublicBucket"), jsii.String(cfg.PublicBucket))
	for _, fn := range fns {
		table.GrantReadWriteData(fn)
		notificationQueue.GrantSendMessages(fn)
		privateBucket.GrantRead(fn, nil)
		publicBucket.GrantReadWrite(fn, nil)
		for _, st := range topicStatements(cfg) {
			fn.AddToRolePolicy(st)
		}
	}

	// Outputs
	awscdk.NewCfnOutput(stack, jsii.String("TableName"), &awscdk.CfnOutputProps{
		Value: table.TableName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("CompletionQueueUrl"), &awscdk.CfnOutputProps{
		Value: completionQueue.QueueUrl(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("NotificationQueueUrl"), &awscdk.CfnOutputProps{
		Value: notificationQueue.QueueUrl(),
	})

	return stack
}

// topicStatements grants what the configured event topic endpoint needs.
func topicStatements(cfg StackConfig) []awsiam.PolicyStatement {
	var out []awsiam.PolicyStatement
	endpoint := cfg.EventTopicEndpoint
	switch {
	case strings.HasPrefix(endpoint, "arn:aws:events:"):
		out = append(out, statement([]string{"events:PutEvents"}, endpoint))
	case strings.HasPrefix(endpoint, "eventbridge:"):
		out = append(out, statement([]string{"events:PutEvents"}, "*"))
	case strings.HasPrefix(endpoint, "arn:aws:sns:"):
		out = append(out, statement([]string{"sns:Publish"}, endpoint))
	}
	if strings.HasPrefix(cfg.EventTopicAccessKey, "secretsmanager:") {
		out = append(out, statement([]string{"secretsmanager:GetSecretValue"}, "*"))
	}
	return out
}

func statement(actions []string, resource string) awsiam.PolicyStatement {
	return awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   jsii.Strings(actions...),
		Resources: jsii.Strings(resource),
	})
}

func removalPolicy(destroy bool) awscdk.RemovalPolicy {
	if destroy {
		return awscdk.RemovalPolicy_DESTROY
	}
	return awscdk.RemovalPolicy_RETAIN
}

func logRetentionDays(days float64) awslogs.RetentionDays {
	switch days {
	case 1:
		return awslogs.RetentionDays_ONE_DAY
	case 3:
		return awslogs.RetentionDays_THREE_DAYS
	case 7:
		return awslogs.RetentionDays_ONE_WEEK
	case 14:
		return awslogs.RetentionDays_TWO_WEEKS
	case 30:
		return awslogs.RetentionDays_ONE_MONTH
	case 90:
		return awslogs.RetentionDays_THREE_MONTHS
	case 365:
		return awslogs.RetentionDays_ONE_YEAR
	default:
		return awslogs.RetentionDays_TWO_WEEKS
	}
}
