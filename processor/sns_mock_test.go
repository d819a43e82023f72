package processor

import (
	"context"

	"github.com/Financial-Times/record-lake-transformer/sns"
)

type mockEventsClient struct {
	eventList []sns.Event
	err       error
}

func (c *mockEventsClient) PublishEvents(ctx context.Context, events []sns.Event) error {
	if c.err != nil {
		return c.err
	}

	c.eventList = append(c.eventList, events...)

	return nil
}
