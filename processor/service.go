package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	logger "github.com/Financial-Times/go-logger"
	"github.com/google/uuid"

	"github.com/Financial-Times/record-lake-transformer/athena"
	"github.com/Financial-Times/record-lake-transformer/catalog"
	"github.com/Financial-Times/record-lake-transformer/record"
	"github.com/Financial-Times/record-lake-transformer/s3"
	"github.com/Financial-Times/record-lake-transformer/sns"
	"github.com/Financial-Times/record-lake-transformer/sqs"
)

type Service interface {
	ListenForNotifications(ctx context.Context, workerID int)
	ProcessNotification(ctx context.Context, bucket string, key string) error
	GetProcessedRecord(ctx context.Context, key string) ([]byte, bool, error)
	RunCrawler(ctx context.Context) error
	CrawlerStatus(ctx context.Context) (catalog.CrawlerStatus, error)
	TableMetadata(ctx context.Context) (catalog.Table, error)
	ExecuteQuery(ctx context.Context, query string) (athena.ResultSet, error)
	Healthchecks() []fthealth.Check
}

type systemHealth struct {
	sync.RWMutex
	healthy  bool
	shutdown bool
	feedback <-chan bool
	done     <-chan struct{}
}

func (r *systemHealth) isGood() bool {
	r.RLock()
	defer r.RUnlock()
	return r.healthy
}

func (r *systemHealth) isShuttingDown() bool {
	r.RLock()
	defer r.RUnlock()
	return r.shutdown
}

func (r *systemHealth) processChannel() {
	for {
		select {
		case st := <-r.feedback:
			r.Lock()
			if st != r.healthy {
				logger.Warnf("Changing healthy status to '%t'", st)
				r.healthy = st
			}
			r.Unlock()
		case <-r.done:
			r.Lock()
			logger.Warn("Changing shutdown status to 'true'")
			r.shutdown = true
			r.Unlock()
		}
	}
}

// TransformService reads raw records named by object-created notifications,
// augments them and writes them into the lake bucket. Invocations are
// independent; nothing is shared between notifications beyond the clients.
type TransformService struct {
	store          s3.Client
	notifications  sqs.Client
	events         sns.Client
	catalog        catalog.Client
	query          athena.Client
	health         *systemHealth
	processTimeout time.Duration
}

func NewService(
	storeClient s3.Client,
	notificationsClient sqs.Client,
	eventsClient sns.Client,
	catalogClient catalog.Client,
	queryClient athena.Client,
	feedback <-chan bool,
	done <-chan struct{},
	processTimeout time.Duration,
) *TransformService {
	health := &systemHealth{
		healthy:  false, // Set to false. Once health check passes app will read from SQS
		shutdown: false,
		feedback: feedback,
		done:     done,
	}
	go health.processChannel()

	return &TransformService{
		store:          storeClient,
		notifications:  notificationsClient,
		events:         eventsClient,
		catalog:        catalogClient,
		query:          queryClient,
		health:         health,
		processTimeout: processTimeout,
	}
}

func (s *TransformService) ListenForNotifications(ctx context.Context, workerID int) {
	listenCtx, listenCancel := context.WithCancel(context.Background())
	defer listenCancel()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("Stopping worker %d", workerID)
			return
		default:
			if s.health.isShuttingDown() {
				logger.Infof("Stopping worker %d", workerID)
				return
			}
			if !s.health.isGood() {
				continue
			}
			notifications := s.notifications.ListenAndServeQueue(listenCtx)
			nslen := len(notifications)
			if nslen <= 0 {
				continue
			}
			logger.Infof("Worker %d processing notifications", workerID)
			var wg sync.WaitGroup
			wg.Add(nslen)
			for _, n := range notifications {
				go func(ctx context.Context, reqWG *sync.WaitGroup, notification sqs.Notification) {
					defer reqWG.Done()
					err := s.processNotification(ctx, notification)
					if err != nil {
						logger.WithError(err).WithField("key", notification.Key).Error("Error processing notification.")
					}
				}(listenCtx, &wg, n)
			}
			wg.Wait()
		}
	}
}

// processNotification runs one transformation under the process timeout.
// The queue message is removed only after the whole transform succeeded, so
// every failure path leaves it for SQS redelivery.
func (s *TransformService) processNotification(ctx context.Context, n sqs.Notification) error {
	timeoutCtx, timeoutCancel := context.WithTimeout(ctx, s.processTimeout)
	defer timeoutCancel()

	errCh := make(chan error)
	go func(ch chan<- error) {
		internalErr := s.ProcessNotification(timeoutCtx, n.Bucket, n.Key)
		if internalErr != nil {
			ch <- internalErr
			return
		}
		internalErr = s.notifications.RemoveMessageFromQueue(timeoutCtx, n.ReceiptHandle)
		if internalErr != nil {
			ch <- fmt.Errorf("error removing message from SQS: %w", internalErr)
			return
		}
		ch <- nil
	}(errCh)

	var err error
	select {
	case <-timeoutCtx.Done():
		err = timeoutCtx.Err()
	case err = <-errCh:
	}

	return err
}

// ProcessNotification transforms one record: read, parse, stamp, write.
// The write to the lake bucket is the only side effect; the source object
// is left untouched.
func (s *TransformService) ProcessNotification(ctx context.Context, bucket string, key string) error {
	found, body, tid, err := s.store.GetRecord(ctx, bucket, key)
	if err != nil {
		return err
	}
	if !found {
		// Deleted between the notification and the read.
		return fmt.Errorf("source object %s/%s not found", bucket, key)
	}
	if tid == "" {
		tid = "tid_" + uuid.NewString()
	}

	doc, err := record.Parse(body)
	if err != nil {
		logger.WithError(err).WithTransactionID(tid).WithField("key", key).Error("Cannot parse source record")
		return err
	}

	processedAt := time.Now()
	doc.Augment(processedAt)

	out, err := doc.Encode()
	if err != nil {
		logger.WithError(err).WithTransactionID(tid).WithField("key", key).Error("Cannot encode processed record")
		return err
	}

	processedKey := record.ProcessedKey(key)
	if err = s.store.PutRecord(ctx, processedKey, out, tid); err != nil {
		return err
	}

	if s.events != nil {
		event := sns.Event{
			Bucket:        bucket,
			Key:           key,
			ProcessedKey:  processedKey,
			TransactionID: tid,
			ProcessedAt:   processedAt.UTC().Format(time.RFC3339),
		}
		if err = s.events.PublishEvents(ctx, []sns.Event{event}); err != nil {
			// The record is already in the lake; the event stream is advisory.
			logger.WithError(err).WithTransactionID(tid).WithField("key", key).Error("Unable to publish processed event")
		}
	}

	logger.WithTransactionID(tid).WithField("key", key).Infof("Finished processing record %s", key)
	return nil
}

// GetProcessedRecord fetches the transformed version of a source key from
// the lake bucket.
func (s *TransformService) GetProcessedRecord(ctx context.Context, key string) ([]byte, bool, error) {
	found, body, err := s.store.GetLakeRecord(ctx, record.ProcessedKey(key))
	if err != nil {
		return nil, false, err
	}
	return body, found, nil
}

func (s *TransformService) RunCrawler(ctx context.Context) error {
	return s.catalog.RunCrawler(ctx)
}

func (s *TransformService) CrawlerStatus(ctx context.Context) (catalog.CrawlerStatus, error) {
	return s.catalog.CrawlerStatus(ctx)
}

func (s *TransformService) TableMetadata(ctx context.Context) (catalog.Table, error) {
	return s.catalog.TableMetadata(ctx)
}

func (s *TransformService) ExecuteQuery(ctx context.Context, query string) (athena.ResultSet, error) {
	return s.query.Execute(ctx, query)
}

func (s *TransformService) Healthchecks() []fthealth.Check {
	return []fthealth.Check{
		s.store.Healthcheck(),
		s.notifications.Healthcheck(),
		s.catalog.Healthcheck(),
		s.query.Healthcheck(),
	}
}
