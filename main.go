package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	logger "github.com/Financial-Times/go-logger"
	cli "github.com/jawher/mow.cli"
	"github.com/sirupsen/logrus"

	"github.com/Financial-Times/record-lake-transformer/athena"
	"github.com/Financial-Times/record-lake-transformer/catalog"
	"github.com/Financial-Times/record-lake-transformer/processor"
	"github.com/Financial-Times/record-lake-transformer/s3"
	"github.com/Financial-Times/record-lake-transformer/sns"
	"github.com/Financial-Times/record-lake-transformer/sqs"
)

const appDescription = "Service reading raw records landing in S3, stamping them with processing metadata and writing them into the query-ready area of the data lake"

func main() {
	app := cli.App("record-lake-transformer", appDescription)

	appSystemCode := app.String(cli.StringOpt{
		Name:   "app-system-code",
		Value:  "record-lake-transformer",
		Desc:   "System Code of the application",
		EnvVar: "APP_SYSTEM_CODE",
	})
	appName := app.String(cli.StringOpt{
		Name:   "app-name",
		Value:  "Record Lake Transformer",
		Desc:   "Application name",
		EnvVar: "APP_NAME",
	})
	port := app.Int(cli.IntOpt{
		Name:   "port",
		Value:  8080,
		Desc:   "Port to listen on",
		EnvVar: "APP_PORT",
	})
	logLevel := app.String(cli.StringOpt{
		Name:   "logLevel",
		Value:  "info",
		Desc:   "App log level",
		EnvVar: "LOG_LEVEL",
	})
	awsRegion := app.String(cli.StringOpt{
		Name:   "awsRegion",
		Value:  "eu-west-1",
		Desc:   "AWS region the buckets and queue live in",
		EnvVar: "AWS_REGION",
	})
	queueURL := app.String(cli.StringOpt{
		Name:   "notificationsQueueUrl",
		Value:  "",
		Desc:   "URL of the SQS queue receiving object-created notifications",
		EnvVar: "NOTIFICATIONS_QUEUE_URL",
	})
	sqsEndpoint := app.String(cli.StringOpt{
		Name:   "sqsEndpoint",
		Value:  "",
		Desc:   "SQS queue endpoint (for local testing)",
		EnvVar: "SQS_ENDPOINT",
	})
	messagesToProcess := app.Int(cli.IntOpt{
		Name:   "maxMessages",
		Value:  10,
		Desc:   "Maximum number of messages to consume per poll",
		EnvVar: "MAX_MESSAGES",
	})
	visibilityTimeout := app.Int(cli.IntOpt{
		Name:   "visibilityTimeout",
		Value:  30,
		Desc:   "Seconds a message is hidden from other consumers while being processed",
		EnvVar: "VISIBILITY_TIMEOUT",
	})
	waitTime := app.Int(cli.IntOpt{
		Name:   "waitTime",
		Value:  20,
		Desc:   "Seconds to wait for messages on each long poll",
		EnvVar: "WAIT_TIME",
	})
	lakeBucket := app.String(cli.StringOpt{
		Name:   "lakeBucket",
		Value:  "",
		Desc:   "Bucket receiving processed records",
		EnvVar: "LAKE_BUCKET",
	})
	eventsTopicARN := app.String(cli.StringOpt{
		Name:   "eventsTopicArn",
		Value:  "",
		Desc:   "Optional SNS topic receiving processed-record events",
		EnvVar: "EVENTS_TOPIC_ARN",
	})
	glueDatabase := app.String(cli.StringOpt{
		Name:   "glueDatabase",
		Value:  "data_lake",
		Desc:   "Glue database holding the lake table",
		EnvVar: "GLUE_DATABASE",
	})
	glueTable := app.String(cli.StringOpt{
		Name:   "glueTable",
		Value:  "processed_records",
		Desc:   "Glue table derived from the lake bucket",
		EnvVar: "GLUE_TABLE",
	})
	crawlerName := app.String(cli.StringOpt{
		Name:   "glueCrawler",
		Value:  "record-lake-crawler",
		Desc:   "Glue crawler maintaining the lake table schema",
		EnvVar: "GLUE_CRAWLER",
	})
	athenaWorkgroup := app.String(cli.StringOpt{
		Name:   "athenaWorkgroup",
		Value:  "primary",
		Desc:   "Athena workgroup queries execute in",
		EnvVar: "ATHENA_WORKGROUP",
	})
	workers := app.Int(cli.IntOpt{
		Name:   "workers",
		Value:  4,
		Desc:   "Number of notification worker routines",
		EnvVar: "WORKERS",
	})
	processTimeout := app.Int(cli.IntOpt{
		Name:   "processTimeout",
		Value:  120,
		Desc:   "Seconds allowed to process a single notification",
		EnvVar: "PROCESS_TIMEOUT",
	})
	requestLoggingOn := app.Bool(cli.BoolOpt{
		Name:   "requestLoggingOn",
		Value:  true,
		Desc:   "Whether to log HTTP requests or not",
		EnvVar: "REQUEST_LOGGING_ON",
	})

	app.Action = func() {
		logger.InitLogger(*appSystemCode, *logLevel)
		if _, err := logrus.ParseLevel(*logLevel); err != nil {
			logger.Warnf("Log level %s is not valid, defaulting to info", *logLevel)
		}
		logger.Infof("[Startup] %s is starting", *appSystemCode)

		if *queueURL == "" {
			logger.WithField("opt", "notificationsQueueUrl").Fatal("Notifications queue URL must be provided")
		}
		if *lakeBucket == "" {
			logger.WithField("opt", "lakeBucket").Fatal("Lake bucket must be provided")
		}

		storeClient, err := s3.NewClient(*lakeBucket, *awsRegion)
		if err != nil {
			logger.WithError(err).Fatal("Unable to create an S3 client")
		}

		notificationsClient, err := sqs.NewClient(*awsRegion, *queueURL, *sqsEndpoint, *messagesToProcess, *visibilityTimeout, *waitTime)
		if err != nil {
			logger.WithError(err).Fatal("Unable to create an SQS client")
		}

		var eventsClient sns.Client
		if *eventsTopicARN != "" {
			eventsClient, err = sns.NewClient(*eventsTopicARN)
			if err != nil {
				logger.WithError(err).Fatal("Unable to create an SNS client")
			}
		}

		catalogClient, err := catalog.NewClient(*glueDatabase, *glueTable, *crawlerName, *awsRegion)
		if err != nil {
			logger.WithError(err).Fatal("Unable to create a Glue client")
		}

		queryClient, err := athena.NewClient(*glueDatabase, *athenaWorkgroup, *awsRegion)
		if err != nil {
			logger.WithError(err).Fatal("Unable to create an Athena client")
		}

		feedback := make(chan bool)
		done := make(chan struct{})
		timeout := time.Duration(*processTimeout) * time.Second

		svc := processor.NewService(storeClient, notificationsClient, eventsClient, catalogClient, queryClient, feedback, done, timeout)

		ctx, cancel := context.WithCancel(context.Background())
		for i := 0; i < *workers; i++ {
			go svc.ListenForNotifications(ctx, i)
		}

		handler := processor.NewHandler(svc, timeout)
		healthService := processor.NewHealthService(svc, *appSystemCode, *appName, *port, appDescription)
		router := handler.RegisterHandlers(healthService, *requestLoggingOn, feedback)

		go func() {
			logger.Infof("Listening on port %d", *port)
			if err := http.ListenAndServe(":"+strconv.Itoa(*port), router); err != nil {
				logger.WithError(err).Fatal("Unable to start the HTTP server")
			}
		}()

		waitForSignal()
		logger.Infof("[Shutdown] %s is shutting down", *appSystemCode)
		cancel()
		close(done)
	}

	if err := app.Run(os.Args); err != nil {
		logger.WithError(err).Fatal("App could not start")
	}
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}
