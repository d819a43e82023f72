// Package athena runs SQL against the cataloged lake table. Queries execute
// in the configured workgroup, which supplies the result output location.
package athena

import (
	"context"
	"fmt"
	"strings"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	"github.com/Financial-Times/go-logger"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/athena"
)

const defaultPollInterval = time.Second

type Client interface {
	Execute(ctx context.Context, query string) (ResultSet, error)
	Healthcheck() fthealth.Check
}

type ResultSet struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

type athenaAPI interface {
	StartQueryExecutionWithContext(ctx aws.Context, input *athena.StartQueryExecutionInput, opts ...request.Option) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecutionWithContext(ctx aws.Context, input *athena.GetQueryExecutionInput, opts ...request.Option) (*athena.GetQueryExecutionOutput, error)
	GetQueryResultsWithContext(ctx aws.Context, input *athena.GetQueryResultsInput, opts ...request.Option) (*athena.GetQueryResultsOutput, error)
	GetWorkGroup(input *athena.GetWorkGroupInput) (*athena.GetWorkGroupOutput, error)
}

type QueryClient struct {
	athena       athenaAPI
	database     string
	workgroup    string
	pollInterval time.Duration
}

func NewClient(database, workgroup string, awsRegion string) (Client, error) {
	sess, err := session.NewSession(
		&aws.Config{
			Region:     aws.String(awsRegion),
			MaxRetries: aws.Int(3),
		})
	if err != nil {
		logger.WithError(err).Error("Unable to create an Athena client")
		return nil, err
	}
	credValues, err := sess.Config.Credentials.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain AWS credentials for values with error: %w, while creating athena client", err)
	}
	logger.Infof("Obtaining AWS credentials by using [%s] as provider for athena client", credValues.ProviderName)

	return &QueryClient{
		athena:       athena.New(sess),
		database:     database,
		workgroup:    workgroup,
		pollInterval: defaultPollInterval,
	}, nil
}

func (c *QueryClient) Execute(ctx context.Context, query string) (ResultSet, error) {
	started, err := c.athena.StartQueryExecutionWithContext(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(query),
		QueryExecutionContext: &athena.QueryExecutionContext{
			Database: aws.String(c.database),
		},
		WorkGroup: aws.String(c.workgroup),
	})
	if err != nil {
		logger.WithError(err).Error("Error starting query execution")
		return ResultSet{}, err
	}

	queryID := started.QueryExecutionId
	for {
		resp, err := c.athena.GetQueryExecutionWithContext(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: queryID})
		if err != nil {
			logger.WithError(err).WithField("queryID", aws.StringValue(queryID)).Error("Error fetching query execution state")
			return ResultSet{}, err
		}

		switch state := aws.StringValue(resp.QueryExecution.Status.State); state {
		case athena.QueryExecutionStateSucceeded:
			return c.fetchResults(ctx, queryID)
		case athena.QueryExecutionStateFailed, athena.QueryExecutionStateCancelled:
			reason := aws.StringValue(resp.QueryExecution.Status.StateChangeReason)
			return ResultSet{}, fmt.Errorf("query %s %s: %s", aws.StringValue(queryID), strings.ToLower(state), reason)
		}

		select {
		case <-ctx.Done():
			return ResultSet{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *QueryClient) fetchResults(ctx context.Context, queryID *string) (ResultSet, error) {
	result := ResultSet{}
	var nextToken *string
	firstPage := true

	for {
		resp, err := c.athena.GetQueryResultsWithContext(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: queryID,
			NextToken:        nextToken,
		})
		if err != nil {
			logger.WithError(err).WithField("queryID", aws.StringValue(queryID)).Error("Error fetching query results")
			return ResultSet{}, err
		}

		rows := resp.ResultSet.Rows
		if firstPage {
			if meta := resp.ResultSet.ResultSetMetadata; meta != nil {
				for _, ci := range meta.ColumnInfo {
					result.Columns = append(result.Columns, aws.StringValue(ci.Name))
				}
			}
			// Athena repeats the header as the first row of the first page.
			if len(rows) > 0 {
				rows = rows[1:]
			}
			firstPage = false
		}

		for _, row := range rows {
			values := make([]string, 0, len(row.Data))
			for _, d := range row.Data {
				values = append(values, aws.StringValue(d.VarCharValue))
			}
			result.Rows = append(result.Rows, values)
		}

		if resp.NextToken == nil {
			return result, nil
		}
		nextToken = resp.NextToken
	}
}

func (c *QueryClient) Healthcheck() fthealth.Check {
	return fthealth.Check{
		BusinessImpact:   "Processed records cannot be queried from the data lake",
		Name:             "Check connectivity to Athena",
		PanicGuide:       "https://runbooks.in.ft.com/record-lake-transformer",
		Severity:         3,
		TechnicalSummary: `Cannot read the query workgroup. If this check fails, check that Amazon Athena is available`,
		Checker: func() (string, error) {
			params := &athena.GetWorkGroupInput{
				WorkGroup: aws.String(c.workgroup),
			}
			if _, err := c.athena.GetWorkGroup(params); err != nil {
				logger.WithError(err).Error("Got error running Athena health check")
				return "", err
			}
			return "", nil
		},
	}
}
