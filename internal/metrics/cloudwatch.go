package metrics

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// PutMetricDataAPI is the CloudWatch call used by CloudWatchSink.
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

const (
	cloudWatchBatch   = 20
	cloudWatchQueue   = 1024
	cloudWatchTimeout = 5 * time.Second
	// DefaultNamespace is used when none is configured.
	DefaultNamespace = "Govtrail/Governance"
)

// CloudWatchSink batches data points and ships them from a background
// goroutine. Emit drops points when the queue is full or the sink is closed.
type CloudWatchSink struct {
	client    PutMetricDataAPI
	namespace string
	logger    *log.Logger
	interval  time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan cwtypes.MetricDatum
	done   chan struct{}
}

// NewCloudWatchSink starts a sink flushing every interval (1s if zero).
func NewCloudWatchSink(client PutMetricDataAPI, namespace string, interval time.Duration, logger *log.Logger) *CloudWatchSink {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &CloudWatchSink{
		client:    client,
		namespace: namespace,
		logger:    logger,
		interval:  interval,
		queue:     make(chan cwtypes.MetricDatum, cloudWatchQueue),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *CloudWatchSink) Emit(name string, value float64, unit string, dims map[string]string) {
	d := cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       cwtypes.StandardUnit(unit),
		Timestamp:  aws.Time(time.Now().UTC()),
	}
	for k, v := range dims {
		d.Dimensions = append(d.Dimensions, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(v)})
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- d:
	default:
		s.logger.Printf("WARN metrics: cloudwatch queue full, dropping %s", name)
	}
}

// Close flushes pending points and stops the worker.
func (s *CloudWatchSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

func (s *CloudWatchSink) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	var batch []cwtypes.MetricDatum
	for {
		select {
		case d, ok := <-s.queue:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, d)
			if len(batch) >= cloudWatchBatch {
				s.flush(batch)
				batch = nil
			}
		case <-ticker.C:
			s.flush(batch)
			batch = nil
		}
	}
}

func (s *CloudWatchSink) flush(batch []cwtypes.MetricDatum) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cloudWatchTimeout)
	defer cancel()
	_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.namespace),
		MetricData: batch,
	})
	if err != nil {
		s.logger.Printf("WARN metrics: cloudwatch put (%d points): %v", len(batch), err)
	}
}
