package processor

import (
	"context"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"

	"github.com/Financial-Times/record-lake-transformer/athena"
)

type mockQueryClient struct {
	result  athena.ResultSet
	err     error
	queries []string
}

func (m *mockQueryClient) Execute(ctx context.Context, query string) (athena.ResultSet, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return athena.ResultSet{}, m.err
	}
	return m.result, nil
}

func (m *mockQueryClient) Healthcheck() fthealth.Check {
	return fthealth.Check{
		Name: "Check connectivity to Athena",
		Checker: func() (string, error) {
			return "", nil
		},
	}
}
