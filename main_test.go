package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Financial-Times/go-logger"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Financial-Times/record-lake-transformer/athena"
	"github.com/Financial-Times/record-lake-transformer/catalog"
	"github.com/Financial-Times/record-lake-transformer/processor"
	"github.com/Financial-Times/record-lake-transformer/sns"
	"github.com/Financial-Times/record-lake-transformer/sqs"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
)

// service integration test

func TestTransformService_EndToEnd(t *testing.T) {
	logger.InitLogger("record-lake-transformer-testing", "panic")

	store := &storeMock{
		records: map[string][]byte{
			"raw-records/data/sample.json": []byte(`{"id":1,"name":"Test","value":100}`),
		},
		processed: map[string][]byte{},
	}
	snsClient := &eventsMock{}

	timeout := time.Second * 30
	feedback := make(chan bool)
	done := make(chan struct{})
	defer close(feedback)
	defer close(done)

	service := processor.NewService(store, &queueMock{}, snsClient, &catalogMock{}, &queryMock{}, feedback, done, timeout)
	handler := processor.NewHandler(service, timeout)

	m := handler.RegisterHandlers(processor.NewHealthService(service, "", "", 8080, ""), false, feedback)

	if err := service.ProcessNotification(context.Background(), "raw-records", "data/sample.json"); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/records/data/sample.json", nil)

	m.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatal(http.StatusText(resp.StatusCode))
	}

	var actual map[string]interface{}
	err := json.NewDecoder(resp.Body).Decode(&actual)
	if err != nil {
		t.Fatal(err)
	}

	expected := map[string]interface{}{
		"id":        float64(1),
		"name":      "Test",
		"value":     float64(100),
		"processed": true,
	}
	opts := cmp.Options{
		cmpopts.IgnoreMapEntries(func(k string, v interface{}) bool {
			return k == "processed_at"
		}),
	}
	if !cmp.Equal(expected, actual, opts) {
		t.Fatal(cmp.Diff(expected, actual, opts))
	}
	if _, err := time.Parse(time.RFC3339, actual["processed_at"].(string)); err != nil {
		t.Fatalf("expected an RFC 3339 processed_at stamp, got %v", actual["processed_at"])
	}

	if len(snsClient.events) != 1 {
		t.Fatalf("expected one processed event, got %d", len(snsClient.events))
	}
	if snsClient.events[0].ProcessedKey != "processed/data/sample.json" {
		t.Fatalf("event names the wrong processed key: %+v", snsClient.events[0])
	}
}

type storeMock struct {
	records   map[string][]byte
	processed map[string][]byte
}

func (s *storeMock) GetRecord(ctx context.Context, bucket string, key string) (bool, []byte, string, error) {
	body, ok := s.records[bucket+"/"+key]
	if !ok {
		return false, nil, "", nil
	}
	return true, body, "tid_test", nil
}

func (s *storeMock) GetLakeRecord(ctx context.Context, key string) (bool, []byte, error) {
	body, ok := s.processed[key]
	return ok, body, nil
}

func (s *storeMock) PutRecord(ctx context.Context, key string, body []byte, transactionID string) error {
	s.processed[key] = body
	return nil
}

func (s *storeMock) Healthcheck() fthealth.Check {
	return fthealth.Check{}
}

type queueMock struct {
}

func (q *queueMock) ListenAndServeQueue(ctx context.Context) []sqs.Notification {
	return nil
}

func (q *queueMock) RemoveMessageFromQueue(ctx context.Context, receiptHandle *string) error {
	return nil
}

func (q *queueMock) Healthcheck() fthealth.Check {
	return fthealth.Check{}
}

type eventsMock struct {
	events []sns.Event
}

func (e *eventsMock) PublishEvents(ctx context.Context, events []sns.Event) error {
	e.events = append(e.events, events...)
	return nil
}

type catalogMock struct {
}

func (c *catalogMock) RunCrawler(ctx context.Context) error {
	return nil
}

func (c *catalogMock) CrawlerStatus(ctx context.Context) (catalog.CrawlerStatus, error) {
	return catalog.CrawlerStatus{State: "READY"}, nil
}

func (c *catalogMock) TableMetadata(ctx context.Context) (catalog.Table, error) {
	return catalog.Table{}, nil
}

func (c *catalogMock) Healthcheck() fthealth.Check {
	return fthealth.Check{}
}

type queryMock struct {
}

func (q *queryMock) Execute(ctx context.Context, query string) (athena.ResultSet, error) {
	return athena.ResultSet{}, nil
}

func (q *queryMock) Healthcheck() fthealth.Check {
	return fthealth.Check{}
}
