// Package catalog wraps the Glue data catalog the crawler maintains over
// the lake bucket. The transform path never touches it; the ops surface
// uses it to re-crawl after backfills and to inspect the derived schema.
package catalog

import (
	"context"
	"errors"
	"fmt"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	"github.com/Financial-Times/go-logger"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/glue"
)

// ErrCrawlerRunning is returned when a crawl is requested while one is
// already in flight.
var ErrCrawlerRunning = errors.New("crawler is already running")

type Client interface {
	RunCrawler(ctx context.Context) error
	CrawlerStatus(ctx context.Context) (CrawlerStatus, error)
	TableMetadata(ctx context.Context) (Table, error)
	Healthcheck() fthealth.Check
}

type glueAPI interface {
	StartCrawlerWithContext(ctx aws.Context, input *glue.StartCrawlerInput, opts ...request.Option) (*glue.StartCrawlerOutput, error)
	GetCrawlerWithContext(ctx aws.Context, input *glue.GetCrawlerInput, opts ...request.Option) (*glue.GetCrawlerOutput, error)
	GetTableWithContext(ctx aws.Context, input *glue.GetTableInput, opts ...request.Option) (*glue.GetTableOutput, error)
	GetDatabase(input *glue.GetDatabaseInput) (*glue.GetDatabaseOutput, error)
}

type GlueClient struct {
	glue     glueAPI
	database string
	table    string
	crawler  string
}

type CrawlerStatus struct {
	State           string `json:"state"`
	LastCrawlStatus string `json:"lastCrawlStatus,omitempty"`
	LastCrawlError  string `json:"lastCrawlError,omitempty"`
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Database string   `json:"database"`
	Name     string   `json:"name"`
	Location string   `json:"location,omitempty"`
	Columns  []Column `json:"columns,omitempty"`
}

func NewClient(database, table, crawler string, awsRegion string) (Client, error) {
	sess, err := session.NewSession(
		&aws.Config{
			Region:     aws.String(awsRegion),
			MaxRetries: aws.Int(3),
		})
	if err != nil {
		logger.WithError(err).Error("Unable to create a Glue client")
		return nil, err
	}
	credValues, err := sess.Config.Credentials.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain AWS credentials for values with error: %w, while creating glue client", err)
	}
	logger.Infof("Obtaining AWS credentials by using [%s] as provider for glue client", credValues.ProviderName)

	return &GlueClient{
		glue:     glue.New(sess),
		database: database,
		table:    table,
		crawler:  crawler,
	}, nil
}

func (c *GlueClient) RunCrawler(ctx context.Context) error {
	_, err := c.glue.StartCrawlerWithContext(ctx, &glue.StartCrawlerInput{Name: aws.String(c.crawler)})
	if err != nil {
		e, ok := err.(awserr.Error)
		if ok && e.Code() == glue.ErrCodeCrawlerRunningException {
			return ErrCrawlerRunning
		}
		logger.WithError(err).WithField("crawler", c.crawler).Error("Error starting crawler")
		return err
	}
	logger.WithField("crawler", c.crawler).Info("Crawler started")
	return nil
}

func (c *GlueClient) CrawlerStatus(ctx context.Context) (CrawlerStatus, error) {
	resp, err := c.glue.GetCrawlerWithContext(ctx, &glue.GetCrawlerInput{Name: aws.String(c.crawler)})
	if err != nil {
		logger.WithError(err).WithField("crawler", c.crawler).Error("Error fetching crawler status")
		return CrawlerStatus{}, err
	}

	status := CrawlerStatus{State: aws.StringValue(resp.Crawler.State)}
	if lc := resp.Crawler.LastCrawl; lc != nil {
		status.LastCrawlStatus = aws.StringValue(lc.Status)
		status.LastCrawlError = aws.StringValue(lc.ErrorMessage)
	}
	return status, nil
}

func (c *GlueClient) TableMetadata(ctx context.Context) (Table, error) {
	resp, err := c.glue.GetTableWithContext(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(c.database),
		Name:         aws.String(c.table),
	})
	if err != nil {
		logger.WithError(err).WithField("table", c.table).Error("Error fetching table metadata")
		return Table{}, err
	}

	table := Table{
		Database: c.database,
		Name:     aws.StringValue(resp.Table.Name),
	}
	if sd := resp.Table.StorageDescriptor; sd != nil {
		table.Location = aws.StringValue(sd.Location)
		for _, col := range sd.Columns {
			table.Columns = append(table.Columns, Column{
				Name: aws.StringValue(col.Name),
				Type: aws.StringValue(col.Type),
			})
		}
	}
	return table, nil
}

func (c *GlueClient) Healthcheck() fthealth.Check {
	return fthealth.Check{
		BusinessImpact:   "Lake table schema updates will not be reflected for queries",
		Name:             "Check connectivity to the Glue data catalog",
		PanicGuide:       "https://runbooks.in.ft.com/record-lake-transformer",
		Severity:         3,
		TechnicalSummary: `Cannot read the lake database from the Glue catalog. If this check fails, check that AWS Glue is available`,
		Checker: func() (string, error) {
			params := &glue.GetDatabaseInput{
				Name: aws.String(c.database),
			}
			if _, err := c.glue.GetDatabase(params); err != nil {
				logger.WithError(err).Error("Got error running Glue health check")
				return "", err
			}
			return "", nil
		},
	}
}
