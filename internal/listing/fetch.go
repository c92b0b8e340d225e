package listing

import (
	"context"
	"fmt"

	"perspectives-watch/internal/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

// FetchError is returned when the listing responds with a non-success status.
type FetchError struct {
	Url        string
	StatusCode int
	Status     string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %s", e.Url, e.Status)
}

type Fetcher struct {
	Url    string
	client *resty.Client
}

// NewFetcher creates a fetcher for the listing at url. `output` may be nil.
//
// A single attempt is made per Fetch, the client is left without retries.
func NewFetcher(url string, output telemetry.HttpOutput) Fetcher {
	client := resty.New()
	telemetry.InstrumentResty(client, tracer, output)
	return Fetcher{Url: url, client: client}
}

// Fetch performs one GET against the listing and returns the raw body.
func (f Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	res, err := f.client.R().
		SetContext(ctx).
		Get(f.Url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, fmt.Errorf("fetch %s: %w", f.Url, err)
	}
	if !res.IsSuccess() {
		err := &FetchError{
			Url:        f.Url,
			StatusCode: res.StatusCode(),
			Status:     res.Status(),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return res.Body(), nil
}
