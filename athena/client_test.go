package athena

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/google/go-cmp/cmp"
)

func TestExecute(t *testing.T) {
	mock := &mockAthenaAPI{
		t:         t,
		database:  "data_lake",
		workgroup: "primary",
		queryID:   "query-1",
		states:    []string{athena.QueryExecutionStateQueued, athena.QueryExecutionStateRunning, athena.QueryExecutionStateSucceeded},
		pages: []*athena.GetQueryResultsOutput{
			{
				ResultSet: &athena.ResultSet{
					ResultSetMetadata: &athena.ResultSetMetadata{
						ColumnInfo: []*athena.ColumnInfo{
							{Name: aws.String("id")},
							{Name: aws.String("name")},
						},
					},
					Rows: []*athena.Row{
						resultRow("id", "name"), // header row
						resultRow("1", "Test"),
					},
				},
				NextToken: aws.String("page-2"),
			},
			{
				ResultSet: &athena.ResultSet{
					Rows: []*athena.Row{
						resultRow("2", "Other"),
					},
				},
			},
		},
	}
	client := &QueryClient{
		athena:       mock,
		database:     "data_lake",
		workgroup:    "primary",
		pollInterval: time.Millisecond,
	}

	result, err := client.Execute(context.Background(), "SELECT id, name FROM processed_records")
	if err != nil {
		t.Fatal(err)
	}

	expected := ResultSet{
		Columns: []string{"id", "name"},
		Rows: [][]string{
			{"1", "Test"},
			{"2", "Other"},
		},
	}
	if !cmp.Equal(expected, result) {
		t.Error(cmp.Diff(expected, result))
	}
}

func TestExecuteFailedQuery(t *testing.T) {
	client := &QueryClient{
		athena: &mockAthenaAPI{
			t:           t,
			database:    "data_lake",
			workgroup:   "primary",
			queryID:     "query-1",
			states:      []string{athena.QueryExecutionStateRunning, athena.QueryExecutionStateFailed},
			stateReason: "SYNTAX_ERROR: line 1:8: Column 'nope' cannot be resolved",
		},
		database:     "data_lake",
		workgroup:    "primary",
		pollInterval: time.Millisecond,
	}

	_, err := client.Execute(context.Background(), "SELECT nope FROM processed_records")
	if err == nil {
		t.Fatal("expected the query failure to propagate")
	}
	if !strings.Contains(err.Error(), "SYNTAX_ERROR") {
		t.Errorf("expected the failure reason in the error, got %v", err)
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	client := &QueryClient{
		athena: &mockAthenaAPI{
			t:         t,
			database:  "data_lake",
			workgroup: "primary",
			queryID:   "query-1",
			states:    []string{athena.QueryExecutionStateRunning, athena.QueryExecutionStateRunning},
		},
		database:     "data_lake",
		workgroup:    "primary",
		pollInterval: time.Minute,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Execute(ctx, "SELECT id FROM processed_records")
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func resultRow(values ...string) *athena.Row {
	row := &athena.Row{}
	for _, v := range values {
		row.Data = append(row.Data, &athena.Datum{VarCharValue: aws.String(v)})
	}
	return row
}

type mockAthenaAPI struct {
	t           *testing.T
	database    string
	workgroup   string
	queryID     string
	states      []string
	stateReason string
	pages       []*athena.GetQueryResultsOutput

	stateCalls int
	pageCalls  int
}

func (m *mockAthenaAPI) StartQueryExecutionWithContext(ctx aws.Context, input *athena.StartQueryExecutionInput, opts ...request.Option) (*athena.StartQueryExecutionOutput, error) {
	m.t.Helper()
	if input.QueryString == nil {
		m.t.Fatal("expect query string to not be nil")
	}
	if e, a := m.database, aws.StringValue(input.QueryExecutionContext.Database); e != a {
		m.t.Errorf("expect database %v, got %v", e, a)
	}
	if e, a := m.workgroup, aws.StringValue(input.WorkGroup); e != a {
		m.t.Errorf("expect workgroup %v, got %v", e, a)
	}
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String(m.queryID)}, nil
}

func (m *mockAthenaAPI) GetQueryExecutionWithContext(ctx aws.Context, input *athena.GetQueryExecutionInput, opts ...request.Option) (*athena.GetQueryExecutionOutput, error) {
	m.t.Helper()
	if e, a := m.queryID, aws.StringValue(input.QueryExecutionId); e != a {
		m.t.Errorf("expect query id %v, got %v", e, a)
	}
	state := m.states[m.stateCalls]
	if m.stateCalls < len(m.states)-1 {
		m.stateCalls++
	}
	return &athena.GetQueryExecutionOutput{
		QueryExecution: &athena.QueryExecution{
			Status: &athena.QueryExecutionStatus{
				State:             aws.String(state),
				StateChangeReason: aws.String(m.stateReason),
			},
		},
	}, nil
}

func (m *mockAthenaAPI) GetQueryResultsWithContext(ctx aws.Context, input *athena.GetQueryResultsInput, opts ...request.Option) (*athena.GetQueryResultsOutput, error) {
	m.t.Helper()
	page := m.pages[m.pageCalls]
	m.pageCalls++
	return page, nil
}

func (m *mockAthenaAPI) GetWorkGroup(input *athena.GetWorkGroupInput) (*athena.GetWorkGroupOutput, error) {
	panic("implement me")
}
