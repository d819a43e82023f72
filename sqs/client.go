package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	"github.com/Financial-Times/go-logger"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
)

type Client interface {
	ListenAndServeQueue(ctx context.Context) []Notification
	RemoveMessageFromQueue(ctx context.Context, receiptHandle *string) error
	Healthcheck() fthealth.Check
}

type NotificationClient struct {
	sqs          *sqs.SQS
	listenParams sqs.ReceiveMessageInput
	queueUrl     string
}

func NewClient(awsRegion, queueURL, endpoint string, messagesToProcess, visibilityTimeout, waitTime int) (Client, error) {
	listenParams := sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: aws.Int64(int64(messagesToProcess)),
		VisibilityTimeout:   aws.Int64(int64(visibilityTimeout)),
		WaitTimeSeconds:     aws.Int64(int64(waitTime)),
	}

	conf := &aws.Config{
		Region:     aws.String(awsRegion),
		MaxRetries: aws.Int(3),
	}
	if endpoint != "" {
		conf.Endpoint = aws.String(endpoint)
	}
	sess, err := session.NewSession(conf)
	if err != nil {
		logger.WithError(err).Error("Unable to create an SQS client")
		return &NotificationClient{}, err
	}
	credValues, err := sess.Config.Credentials.Get()
	if err != nil {
		return &NotificationClient{}, fmt.Errorf("failed to obtain AWS credentials for values with error: %w, while creating sqs client", err)
	}
	logger.Infof("Obtaining AWS credentials by using [%s] as provider for sqs client", credValues.ProviderName)

	client := sqs.New(sess)
	return &NotificationClient{
		sqs:          client,
		listenParams: listenParams,
		queueUrl:     queueURL,
	}, err
}

func (c *NotificationClient) ListenAndServeQueue(ctx context.Context) []Notification {
	messages, err := c.sqs.ReceiveMessageWithContext(ctx, &c.listenParams)
	if err != nil {
		logger.WithError(err).Error("Error whilst listening for messages")
		return nil
	}
	return getNotificationsFromMessages(messages.Messages)
}

func (c *NotificationClient) RemoveMessageFromQueue(ctx context.Context, receiptHandle *string) error {
	deleteParams := sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueUrl),
		ReceiptHandle: receiptHandle,
	}
	if _, err := c.sqs.DeleteMessageWithContext(ctx, &deleteParams); err != nil {
		logger.WithError(err).Error("Error deleting message from SQS")
		return err
	}
	return nil
}

func getNotificationsFromMessages(messages []*sqs.Message) []Notification {

	notifications := []Notification{}

	for _, message := range messages {
		receiptHandle := message.ReceiptHandle
		messageBody := Body{}
		if err := json.Unmarshal([]byte(*message.Body), &messageBody); err != nil {
			logger.WithError(err).Error("Failed to unmarshal SQS message")
			continue
		}

		// Queues wired straight to the bucket carry the event without the
		// SNS envelope.
		payload := messageBody.Message
		if payload == "" {
			payload = *message.Body
		}

		s3Event := events.S3Event{}
		if err := json.Unmarshal([]byte(payload), &s3Event); err != nil {
			logger.WithError(err).Error("Failed to unmarshal S3 notification")
			continue
		}

		if len(s3Event.Records) == 0 {
			logger.Error("Cannot map message to expected JSON format - skipping")
			continue
		}

		for _, rec := range s3Event.Records {
			if !strings.HasPrefix(rec.EventName, "ObjectCreated") {
				logger.WithField("eventName", rec.EventName).Debug("Skipping non-creation event")
				continue
			}

			// S3 URL-encodes object keys in event payloads.
			key, err := url.QueryUnescape(rec.S3.Object.Key)
			if err != nil {
				logger.WithError(err).WithField("key", rec.S3.Object.Key).Error("Cannot unescape object key")
				continue
			}

			notifications = append(notifications, Notification{
				Bucket:        rec.S3.Bucket.Name,
				Key:           key,
				ReceiptHandle: receiptHandle,
			})
		}
	}

	return notifications
}

func (c *NotificationClient) Healthcheck() fthealth.Check {
	return fthealth.Check{
		BusinessImpact:   "Newly landed raw records will not be transformed into the data lake",
		Name:             "Check connectivity to SQS queue",
		PanicGuide:       "https://runbooks.in.ft.com/record-lake-transformer",
		Severity:         3,
		TechnicalSummary: `Cannot connect to SQS queue. If this check fails, check that Amazon SQS is available`,
		Checker: func() (string, error) {
			params := &sqs.GetQueueAttributesInput{
				QueueUrl:       aws.String(c.queueUrl),
				AttributeNames: []*string{aws.String("ApproximateNumberOfMessages")},
			}
			if _, err := c.sqs.GetQueueAttributes(params); err != nil {
				logger.WithError(err).Error("Got error running SQS health check")
				return "", err
			}
			return "", nil
		},
	}
}
