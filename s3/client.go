package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	"github.com/Financial-Times/go-logger"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/Financial-Times/record-lake-transformer/record"
)

const transactionIDMetadataKey = "Transaction_id"

type Client interface {
	GetRecord(ctx context.Context, bucket string, key string) (bool, []byte, string, error)
	GetLakeRecord(ctx context.Context, key string) (bool, []byte, error)
	PutRecord(ctx context.Context, key string, body []byte, transactionID string) error
	Healthcheck() fthealth.Check
}

// StoreClient reads raw records from whichever bucket a notification names
// and writes processed records into the lake bucket.
type StoreClient struct {
	s3         s3API
	lakeBucket string
}

type s3API interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
	HeadBucket(input *s3.HeadBucketInput) (*s3.HeadBucketOutput, error)
}

func NewClient(lakeBucket string, awsRegion string) (Client, error) {
	hc := http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   20,
			TLSHandshakeTimeout:   3 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	sess, err := session.NewSession(
		&aws.Config{
			Region:     aws.String(awsRegion),
			MaxRetries: aws.Int(1),
			HTTPClient: &hc,
		})
	if err != nil {
		logger.WithError(err).Error("Unable to create an S3 client")
		return &StoreClient{}, err
	}

	credValues, err := sess.Config.Credentials.Get()
	if err != nil {
		return &StoreClient{}, fmt.Errorf("failed to obtain AWS credentials for values with error: %w, while creating s3 client", err)
	}
	logger.Infof("Obtaining AWS credentials by using [%s] as provider for s3 client", credValues.ProviderName)

	client := s3.New(sess)

	return &StoreClient{
		s3:         client,
		lakeBucket: lakeBucket,
	}, err
}

// GetRecord fetches one object's content. A missing object is reported as
// not found rather than an error. The transaction id travels in object
// metadata and is empty when the producer did not set one.
func (c *StoreClient) GetRecord(ctx context.Context, bucket string, key string) (bool, []byte, string, error) {
	getObjectParams := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	resp, err := c.s3.GetObjectWithContext(ctx, getObjectParams)
	if err != nil {
		e, ok := err.(awserr.Error)
		if ok && e.Code() == "NoSuchKey" {
			// NotFound rather than error, so no logging needed.
			return false, nil, "", nil
		}
		logger.WithError(err).WithField("key", key).Error("Error retrieving record from S3")
		return false, nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.WithError(err).WithField("key", key).Error("Error reading record body from S3")
		return false, nil, "", err
	}

	var tid string
	if v, ok := resp.Metadata[transactionIDMetadataKey]; ok && v != nil {
		tid = *v
	}
	return true, body, tid, nil
}

// GetLakeRecord fetches one object from the lake bucket.
func (c *StoreClient) GetLakeRecord(ctx context.Context, key string) (bool, []byte, error) {
	found, body, _, err := c.GetRecord(ctx, c.lakeBucket, key)
	return found, body, err
}

// PutRecord writes a processed record into the lake bucket. This is the
// only side effect of a transformation and happens at most once per
// notification.
func (c *StoreClient) PutRecord(ctx context.Context, key string, body []byte, transactionID string) error {
	putObjectParams := &s3.PutObjectInput{
		Bucket:      aws.String(c.lakeBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(record.ContentType),
		Metadata: map[string]*string{
			transactionIDMetadataKey: aws.String(transactionID),
		},
	}

	if _, err := c.s3.PutObjectWithContext(ctx, putObjectParams); err != nil {
		logger.WithError(err).WithTransactionID(transactionID).WithField("key", key).Error("Error writing processed record to S3")
		return err
	}
	return nil
}

func (c *StoreClient) Healthcheck() fthealth.Check {
	return fthealth.Check{
		BusinessImpact:   "Processed records will not be written into the data lake",
		Name:             "Check connectivity to S3 bucket",
		PanicGuide:       "https://runbooks.in.ft.com/record-lake-transformer",
		Severity:         3,
		TechnicalSummary: `Cannot connect to S3 bucket. If this check fails, check that Amazon S3 is available`,
		Checker: func() (string, error) {
			params := &s3.HeadBucketInput{
				Bucket: aws.String(c.lakeBucket), // Required
			}
			_, err := c.s3.HeadBucket(params)
			if err != nil {
				logger.WithError(err).Error("Got error running S3 health check")
				return "", err
			}
			return "", err
		},
	}
}
