package persist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"perspectives-watch/internal/chrono"
	"perspectives-watch/internal/schedule"
	"perspectives-watch/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("perspectives/persist")
var meter = otel.Meter("perspectives/persist")

var unprocessedCounter, _ = meter.Int64Counter("store.unprocessed")

const (
	report_batch_put = "batch-put"

	DefaultMaxBatchSize = 25
)

// BatchWriter puts records into the store. Records that the store could not
// apply are returned as `unprocessed`, which is not an error, while err
// means nothing about the batch can be trusted.
type BatchWriter interface {
	BatchPut(ctx context.Context, records []schedule.PersistedClassRecord) (unprocessed []schedule.PersistedClassRecord, err error)
}

type Options struct {
	// MaxBatchSize is the most records submitted in a single BatchPut, defaults to DefaultMaxBatchSize.
	MaxBatchSize int
	Clock        chrono.API
	Telemetry    telemetry.API
}

type Writer struct {
	store        BatchWriter
	clock        chrono.API
	tel          telemetry.API
	maxBatchSize int
}

func NewWriter(store BatchWriter, opts Options) Writer {
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = chrono.StandardImpl{}
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SlogAPI{}
	}
	return Writer{
		store:        store,
		clock:        opts.Clock,
		tel:          telemetry.NewScopedAPI("persist", opts.Telemetry),
		maxBatchSize: opts.MaxBatchSize,
	}
}

// Records stamps every class in the delta with the same timestamp, in
// session/name order.
func Records(delta schedule.Delta, now time.Time) []schedule.PersistedClassRecord {
	records := make([]schedule.PersistedClassRecord, 0, delta.Count)
	for _, session := range delta.Sessions.SessionNames() {
		for _, name := range delta.Sessions.ClassNames(session) {
			records = append(records, schedule.Stamp(session, name, delta.Sessions[session][name], now))
		}
	}
	return records
}

// Save writes every class of the delta to the store.
//
// Unprocessed records are resubmitted until the store accepts all of them,
// there is no retry limit, only ctx can stop the loop.
func (w Writer) Save(ctx context.Context, delta schedule.Delta) error {
	ctx, span := tracer.Start(ctx, "Save")
	defer span.End()

	now := chrono.InvocationTime(w.clock)
	records := Records(delta, now)
	span.SetAttributes(attribute.Int("records", len(records)))

	for start := 0; start < len(records); start += w.maxBatchSize {
		end := min(start+w.maxBatchSize, len(records))
		err := w.submit(ctx, records[start:end])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	return nil
}

func (w Writer) submit(ctx context.Context, batch []schedule.PersistedClassRecord) error {
	pending := batch
	for attempt := 1; len(pending) > 0; attempt++ {
		err := ctx.Err()
		if err != nil {
			return fmt.Errorf("abandoned %d unprocessed records: %w", len(pending), err)
		}

		unprocessed, err := w.store.BatchPut(ctx, pending)
		if err != nil {
			w.tel.ReportBroken(report_batch_put, err, len(pending))
			return fmt.Errorf("batch put: %w", err)
		}
		if len(unprocessed) > 0 {
			w.tel.ReportCount("unprocessed", int64(len(unprocessed)))
			unprocessedCounter.Add(ctx, int64(len(unprocessed)))
			slog.WarnContext(
				ctx, "store left records unprocessed, resubmitting",
				"unprocessed", len(unprocessed),
				"attempt", attempt,
			)
		}
		pending = unprocessed
	}
	return nil
}
