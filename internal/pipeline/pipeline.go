package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"perspectives-watch/internal/chrono"
	"perspectives-watch/internal/delta"
	"perspectives-watch/internal/listing"
	"perspectives-watch/internal/notify"
	"perspectives-watch/internal/persist"
	"perspectives-watch/internal/schedule"
	"perspectives-watch/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("perspectives/pipeline")
var meter = otel.Meter("perspectives/pipeline")

var parsedCounter, _ = meter.Int64Counter("classes.parsed")
var newCounter, _ = meter.Int64Counter("classes.new")

const (
	report_fetch   = "fetch"
	report_parse   = "parse"
	report_delta   = "delta"
	report_persist = "persist"
	report_publish = "publish"
)

// Source returns the raw markup of the class listing.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Parser turns the listing markup into sessions.
type Parser interface {
	Parse(ctx context.Context, markup []byte) (schedule.Sessions, error)
}

// Store is the part of store.Store an invocation needs.
type Store interface {
	delta.Lookup
	persist.BatchWriter
}

// Result is what the invoker sees.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type Config struct {
	// the topic, channel or address notifications are published to
	Destination string
	// printed at the end of every notification
	Link         string
	MaxBatchSize int
}

type Options struct {
	// defaults to listing.NewParser()
	Parser    Parser
	Clock     chrono.API
	Telemetry telemetry.API
}

type Handler struct {
	source Source
	parser Parser
	store  Store
	sink   notify.Sink
	writer persist.Writer
	config Config
	tel    telemetry.API
}

func NewHandler(source Source, store Store, sink notify.Sink, config Config, opts Options) Handler {
	if opts.Parser == nil {
		opts.Parser = listing.NewParser()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.SlogAPI{}
	}
	return Handler{
		source: source,
		parser: opts.Parser,
		store:  store,
		sink:   sink,
		writer: persist.NewWriter(store, persist.Options{
			MaxBatchSize: config.MaxBatchSize,
			Clock:        opts.Clock,
			Telemetry:    opts.Telemetry,
		}),
		config: config,
		tel:    telemetry.NewScopedAPI("pipeline", opts.Telemetry),
	}
}

type invocationIdKey struct{}

// WithInvocationId makes Invoke use id instead of generating one.
func WithInvocationId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIdKey{}, id)
}

// InvocationId returns the id given by WithInvocationId, or "".
func InvocationId(ctx context.Context) string {
	id, _ := ctx.Value(invocationIdKey{}).(string)
	return id
}

// Invoke runs one full check of the listing. The event is accepted for
// compatibility with timer triggers and is not inspected.
//
// A failed invocation returns a 500 result together with the error, nothing
// is published in that case.
func (h Handler) Invoke(ctx context.Context, event any) (Result, error) {
	id := InvocationId(ctx)
	if id == "" {
		id = uuid.New().String()
		ctx = WithInvocationId(ctx, id)
	}

	ctx, span := tracer.Start(ctx, "Invoke")
	defer span.End()
	span.SetAttributes(attribute.String("invocation_id", id))

	err := h.run(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "invocation failed", "invocation_id", id, "err", err)
		return Result{StatusCode: http.StatusInternalServerError, Body: err.Error()}, err
	}
	return Result{StatusCode: http.StatusOK, Body: "OK"}, nil
}

func (h Handler) run(ctx context.Context, id string) error {
	markup, err := h.source.Fetch(ctx)
	if err != nil {
		h.tel.ReportBroken(report_fetch, err)
		return fmt.Errorf("fetch listing: %w", err)
	}

	parsed, err := h.parser.Parse(ctx, markup)
	if err != nil {
		h.tel.ReportBroken(report_parse, err)
		return fmt.Errorf("parse listing: %w", err)
	}
	parsedCounter.Add(ctx, int64(parsed.Count()))

	err = ctx.Err()
	if err != nil {
		return err
	}

	diff, err := delta.Compute(ctx, parsed, h.store)
	if err != nil {
		h.tel.ReportBroken(report_delta, err)
		return fmt.Errorf("compute delta: %w", err)
	}
	if diff.Empty() {
		slog.InfoContext(ctx, "no new classes", "invocation_id", id)
		return nil
	}
	newCounter.Add(ctx, int64(diff.Count), metric.WithAttributes(attribute.Int("sessions", len(diff.Sessions))))

	err = h.writer.Save(ctx, diff)
	if err != nil {
		h.tel.ReportBroken(report_persist, err)
		return fmt.Errorf("persist new classes: %w", err)
	}

	message := notify.Format(diff, h.config.Link)
	err = h.sink.Publish(ctx, h.config.Destination, message)
	if err != nil {
		h.tel.ReportBroken(report_publish, err)
		return fmt.Errorf("publish notification: %w", err)
	}
	slog.InfoContext(
		ctx, "published notification",
		"invocation_id", id,
		"new_classes", diff.Count,
		"destination", h.config.Destination,
	)
	return nil
}
