package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/obsarchive/internal/archive"
	"github.com/nerrad567/obsarchive/internal/archive/batch"
	"github.com/nerrad567/obsarchive/internal/archive/dberrors"
	"github.com/nerrad567/obsarchive/internal/infrastructure/influxdb"
	"github.com/nerrad567/obsarchive/internal/infrastructure/mqtt"
	"github.com/nerrad567/obsarchive/internal/variable"
)

// Defaults applied to zero Config fields.
const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	defaultQoS           = 1
)

// Store is the part of the archive the service writes through.
type Store interface {
	Update(ctx context.Context, fn func(tx *archive.Transaction) error) error
	Vartable() *variable.Vartable
}

// Broker is the MQTT client surface the service uses. *mqtt.Client
// satisfies it.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishRejected(report string, payload []byte) error
	PublishIngestStats(payload []byte) error
}

// Exporter mirrors committed values to a time-series store.
type Exporter interface {
	WriteObservation(obs influxdb.Observation)
	WriteFlush(summary influxdb.FlushSummary)
}

// Logger is the logging interface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config controls batching and conflict handling.
type Config struct {
	// Topic is the subscription pattern. Empty subscribes to every
	// observation topic.
	Topic string
	QoS   byte

	// BatchSize is the number of messages written per transaction.
	BatchSize int

	// FlushInterval bounds how long a partial batch waits.
	FlushInterval time.Duration

	Policy         batch.Policy
	RetryAsUpdate  bool
	CanAddStations bool
}

// Stats counts what the service has done since it started.
type Stats struct {
	Messages int64 `json:"messages"`
	Invalid  int64 `json:"invalid"`
	Rejected int64 `json:"rejected"`
	Values   int64 `json:"values"`
	Flushes  int64 `json:"flushes"`
	Retries  int64 `json:"retries"`
}

// Service moves observation messages from MQTT into the archive.
//
// Messages are decoded as they arrive and written in batches: a batch is
// flushed when it reaches BatchSize messages or when FlushInterval has
// passed. Each flush is one archive transaction. A flush the archive
// refuses is retried message by message so one bad message cannot hold
// back the others; the messages still refused are echoed to the rejected
// topic.
//
// Thread Safety:
//   - HandleMessage is safe for concurrent use (paho calls it from its own goroutines).
//   - Flushes are serialised.
type Service struct {
	store    Store
	broker   Broker
	exporter Exporter
	logger   Logger
	cfg      Config

	pending   []*decoded
	pendingMu sync.Mutex
	full      chan struct{}

	flushMu sync.Mutex

	stats   Stats
	statsMu sync.Mutex

	stopped bool
}

// Option configures optional collaborators.
type Option func(*Service)

// WithBroker subscribes the service to MQTT and enables rejection echoes.
func WithBroker(b Broker) Option {
	return func(s *Service) { s.broker = b }
}

// WithExporter mirrors committed values through e.
func WithExporter(e Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a service writing to store.
func New(store Store, cfg Config, opts ...Option) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.Topic == "" {
		cfg.Topic = mqtt.Topics{}.AllObservations()
	}
	if cfg.QoS == 0 {
		cfg.QoS = defaultQoS
	}

	s := &Service{
		store:  store,
		logger: noopLogger{},
		cfg:    cfg,
		full:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run subscribes to the feed and flushes batches until ctx is cancelled.
// The last partial batch is flushed before Run returns.
func (s *Service) Run(ctx context.Context) error {
	if s.broker != nil {
		if err := s.broker.Subscribe(s.cfg.Topic, s.cfg.QoS, s.HandleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", s.cfg.Topic, err)
		}
		s.logger.Info("ingest subscribed", "topic", s.cfg.Topic)
	}

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.stop()
		case <-ticker.C:
			s.flushLogged(ctx)
		case <-s.full:
			s.flushLogged(ctx)
		}
	}
}

// stop unsubscribes and writes what is still pending.
func (s *Service) stop() error {
	s.pendingMu.Lock()
	s.stopped = true
	s.pendingMu.Unlock()

	if s.broker != nil {
		if err := s.broker.Unsubscribe(s.cfg.Topic); err != nil {
			s.logger.Warn("ingest unsubscribe failed", "error", err)
		}
	}

	// The run context is gone; the final flush gets its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Flush(ctx)
}

func (s *Service) flushLogged(ctx context.Context) {
	if err := s.Flush(ctx); err != nil {
		s.logger.Error("ingest flush failed", "error", err)
	}
}

// HandleMessage decodes one MQTT message and queues it for the next flush.
// It matches mqtt.MessageHandler.
func (s *Service) HandleMessage(topic string, payload []byte) error {
	d, err := decodeMessage(topic, payload, s.store.Vartable())
	if err != nil {
		messagesTotal.WithLabelValues(resultInvalid).Inc()
		s.count(func(st *Stats) { st.Messages++; st.Invalid++ })
		s.reject(topic, payload, err)
		return err
	}

	s.pendingMu.Lock()
	if s.stopped {
		s.pendingMu.Unlock()
		return ErrStopped
	}
	s.pending = append(s.pending, d)
	n := len(s.pending)
	s.pendingMu.Unlock()

	pendingMessages.Set(float64(n))
	s.count(func(st *Stats) { st.Messages++ })

	if n >= s.cfg.BatchSize {
		select {
		case s.full <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of messages awaiting a flush.
func (s *Service) Pending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// Stats returns a snapshot of the counters.
func (s *Service) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Service) count(fn func(*Stats)) {
	s.statsMu.Lock()
	fn(&s.stats)
	s.statsMu.Unlock()
}

// take swaps the pending batch out under lock.
func (s *Service) take() []*decoded {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	msgs := s.pending
	s.pending = nil
	pendingMessages.Set(0)
	return msgs
}

// requeue puts msgs back in front of the pending batch.
func (s *Service) requeue(msgs []*decoded) {
	s.pendingMu.Lock()
	s.pending = append(msgs, s.pending...)
	n := len(s.pending)
	s.pendingMu.Unlock()
	pendingMessages.Set(float64(n))
}

// Flush writes every pending message.
//
// The batch is written in one transaction. When that fails the messages
// are written one transaction each; only the failures are dropped. The
// returned error is the batch error when no message could be stored.
func (s *Service) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	msgs := s.take()
	if len(msgs) == 0 {
		return nil
	}

	start := time.Now()
	values, err := s.write(ctx, msgs)
	flushDuration.Observe(time.Since(start).Seconds())
	s.count(func(st *Stats) { st.Flushes++ })

	if err == nil {
		s.stored(msgs, values)
		s.logger.Debug("ingest batch stored", "messages", len(msgs), "values", values, "took", time.Since(start))
		s.exportFlush(influxdb.FlushSummary{Messages: len(msgs), Values: values, Took: time.Since(start)})
		return nil
	}
	if ctx.Err() != nil {
		s.requeue(msgs)
		return fmt.Errorf("flushing %d messages: %w", len(msgs), err)
	}

	s.logger.Warn("ingest batch refused, retrying messages singly", "messages", len(msgs), "error", err)

	summary := influxdb.FlushSummary{Messages: len(msgs)}
	for _, m := range msgs {
		one := []*decoded{m}
		n, mErr := s.write(ctx, one)
		if mErr != nil {
			messagesTotal.WithLabelValues(resultRejected).Inc()
			s.count(func(st *Stats) { st.Rejected++ })
			s.reject(m.topic, m.payload, mErr)
			summary.Rejected++
			continue
		}
		s.stored(one, n)
		summary.Values += n
	}
	summary.Took = time.Since(start)
	s.exportFlush(summary)

	if summary.Rejected == len(msgs) {
		return fmt.Errorf("flushing %d messages: %w", len(msgs), err)
	}
	return nil
}

// exportFlush records one flush in the time-series store.
func (s *Service) exportFlush(summary influxdb.FlushSummary) {
	if s.exporter != nil {
		s.exporter.WriteFlush(summary)
	}
}

// write stores msgs in one transaction, retrying once with the update
// policy when the configured policy refused a duplicate.
func (s *Service) write(ctx context.Context, msgs []*decoded) (int, error) {
	values, err := s.writeTx(ctx, msgs, s.cfg.Policy)
	if err != nil && s.cfg.RetryAsUpdate && s.cfg.Policy != batch.PolicyUpdate && dberrors.IsDuplicate(err) {
		retriesTotal.Inc()
		s.count(func(st *Stats) { st.Retries++ })
		values, err = s.writeTx(ctx, msgs, batch.PolicyUpdate)
	}
	return values, err
}

func (s *Service) writeTx(ctx context.Context, msgs []*decoded, policy batch.Policy) (int, error) {
	opts := archive.InsertOptions{Policy: policy, CanAddStations: s.cfg.CanAddStations}
	var values int
	err := s.store.Update(ctx, func(tx *archive.Transaction) error {
		for _, m := range msgs {
			if m.station != nil {
				if err := tx.InsertStationData(ctx, m.station, opts); err != nil {
					return err
				}
			}
			for _, mv := range m.data {
				if err := tx.InsertData(ctx, mv, opts); err != nil {
					return err
				}
			}
			values += m.values()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return values, nil
}

// stored records and exports committed messages.
func (s *Service) stored(msgs []*decoded, values int) {
	messagesTotal.WithLabelValues(resultStored).Add(float64(len(msgs)))
	valuesTotal.Add(float64(values))
	s.count(func(st *Stats) { st.Values += int64(values) })

	if s.exporter != nil {
		for _, m := range msgs {
			for _, obs := range observations(m) {
				s.exporter.WriteObservation(obs)
			}
		}
	}
	s.publishStats()
}

// rejection is the payload echoed to the rejected topic.
type rejection struct {
	Topic   string          `json:"topic"`
	Error   string          `json:"error"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// reject logs a refused message and echoes it when a broker is attached.
func (s *Service) reject(topic string, payload []byte, cause error) {
	s.logger.Warn("observation rejected", "topic", topic, "error", cause)
	if s.broker == nil {
		return
	}

	report, _, _ := mqtt.ParseObservationTopic(topic)
	r := rejection{Topic: topic, Error: cause.Error()}
	if json.Valid(payload) {
		r.Payload = payload
	}
	body, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := s.broker.PublishRejected(report, body); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		s.logger.Warn("publishing rejection failed", "error", err)
	}
}

// publishStats publishes the counters as a retained message.
func (s *Service) publishStats() {
	if s.broker == nil {
		return
	}
	body, err := json.Marshal(s.Stats())
	if err != nil {
		return
	}
	if err := s.broker.PublishIngestStats(body); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		s.logger.Warn("publishing ingest stats failed", "error", err)
	}
}

// observations flattens the measured values of m for export.
func observations(m *decoded) []influxdb.Observation {
	var out []influxdb.Observation
	for _, mv := range m.data {
		for i := range mv.Values {
			v := &mv.Values[i]
			obs := influxdb.Observation{
				Report: mv.Report,
				Ident:  mv.Ident,
				Lat:    mv.Coords.LatDegrees(),
				Lon:    mv.Coords.LonDegrees(),
				Level:  mv.Level.String(),
				Trange: mv.Trange.String(),
				Var:    v.Code().String(),
				Time:   mv.Datetime,
			}
			if v.Info().Type.IsNumeric() {
				if f, err := v.Float(); err == nil {
					obs.Number = &f
				}
			} else {
				obs.Text = v.Format()
			}
			out = append(out, obs)
		}
	}
	return out
}
