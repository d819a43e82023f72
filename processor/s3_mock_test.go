package processor

import (
	"context"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
)

type mockStoreClient struct {
	records   map[string][]byte // "<bucket>/<key>" -> raw record
	tids      map[string]string // key -> transaction id metadata
	processed map[string][]byte // key -> written record
	writeTIDs map[string]string // key -> transaction id written
	getErr    error
	putErr    error
	healthErr error
}

func newMockStoreClient() *mockStoreClient {
	return &mockStoreClient{
		records:   map[string][]byte{},
		tids:      map[string]string{},
		processed: map[string][]byte{},
		writeTIDs: map[string]string{},
	}
}

func (m *mockStoreClient) GetRecord(ctx context.Context, bucket string, key string) (bool, []byte, string, error) {
	if m.getErr != nil {
		return false, nil, "", m.getErr
	}
	body, ok := m.records[bucket+"/"+key]
	if !ok {
		return false, nil, "", nil
	}
	return true, body, m.tids[key], nil
}

func (m *mockStoreClient) GetLakeRecord(ctx context.Context, key string) (bool, []byte, error) {
	if m.getErr != nil {
		return false, nil, m.getErr
	}
	body, ok := m.processed[key]
	return ok, body, nil
}

func (m *mockStoreClient) PutRecord(ctx context.Context, key string, body []byte, transactionID string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.processed[key] = body
	m.writeTIDs[key] = transactionID
	return nil
}

func (m *mockStoreClient) Healthcheck() fthealth.Check {
	return fthealth.Check{
		Name: "Check connectivity to S3 bucket",
		Checker: func() (string, error) {
			return "", m.healthErr
		},
	}
}
