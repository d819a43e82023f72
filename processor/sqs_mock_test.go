package processor

import (
	"context"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	"github.com/stretchr/testify/mock"

	"github.com/Financial-Times/record-lake-transformer/sqs"
)

type mockNotificationsClient struct {
	mock.Mock
}

func (m *mockNotificationsClient) ListenAndServeQueue(ctx context.Context) []sqs.Notification {
	args := m.Called(ctx)
	return args.Get(0).([]sqs.Notification)
}

func (m *mockNotificationsClient) RemoveMessageFromQueue(ctx context.Context, receiptHandle *string) error {
	args := m.Called(ctx, receiptHandle)
	return args.Error(0)
}

func (m *mockNotificationsClient) Healthcheck() fthealth.Check {
	return fthealth.Check{
		Name: "Check connectivity to SQS queue",
		Checker: func() (string, error) {
			return "", nil
		},
	}
}
