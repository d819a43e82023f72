package processor

import (
	"context"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"

	"github.com/Financial-Times/record-lake-transformer/catalog"
)

type mockCatalogClient struct {
	runErr    error
	runCalls  int
	status    catalog.CrawlerStatus
	statusErr error
	table     catalog.Table
	tableErr  error
}

func (m *mockCatalogClient) RunCrawler(ctx context.Context) error {
	m.runCalls++
	return m.runErr
}

func (m *mockCatalogClient) CrawlerStatus(ctx context.Context) (catalog.CrawlerStatus, error) {
	return m.status, m.statusErr
}

func (m *mockCatalogClient) TableMetadata(ctx context.Context) (catalog.Table, error) {
	return m.table, m.tableErr
}

func (m *mockCatalogClient) Healthcheck() fthealth.Check {
	return fthealth.Check{
		Name: "Check connectivity to the Glue data catalog",
		Checker: func() (string, error) {
			return "", nil
		},
	}
}
