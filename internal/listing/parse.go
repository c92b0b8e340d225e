package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"perspectives-watch/internal/htmlutil"
	"perspectives-watch/internal/schedule"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("perspectives/listing")

const (
	DefaultTableId = "ctl00_ContentPlaceHolder1_grdSearchResult"

	groupHeaderPrefix = "GroupHeader"
	gridRowPrefix     = "GridRow"

	// cell positions within a data row
	nameCell  = 0
	cityCell  = 1
	startCell = 3
	endCell   = 4
)

var ErrTableNotFound = errors.New("listing table not found")

// StructureError means the listing no longer has the shape the parser relies on.
type StructureError struct {
	// Row is the zero-based index of the row within the table.
	Row    int
	Reason string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("malformed listing row %d: %s", e.Row, e.Reason)
}

type Parser struct {
	TableId string
}

func NewParser() Parser {
	return Parser{TableId: DefaultTableId}
}

// Parse turns the listing markup into sessions of classes.
//
// Rows are read in document order. A GroupHeader row starts a new session
// named by its first cell, a GridRow row adds a class to the current session,
// anything else is skipped. Data rows that come before any header are filed
// under schedule.UnknownSession.
func (p Parser) Parse(ctx context.Context, markup []byte) (schedule.Sessions, error) {
	ctx, span := tracer.Start(ctx, "Parse")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	tableId := p.TableId
	if tableId == "" {
		tableId = DefaultTableId
	}
	table := doc.Find("body").Find(fmt.Sprintf(`[id="%s"]`, tableId)).First()
	if table.Length() == 0 {
		err := fmt.Errorf("%w: no element with id %q", ErrTableNotFound, tableId)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sessions := schedule.Sessions{}
	current := schedule.UnknownSession
	skipped := 0

	var rowErr error
	table.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		marker := htmlutil.FirstClass(row)
		switch {
		case strings.HasPrefix(marker, groupHeaderPrefix):
			cell := row.Find("td").First()
			if cell.Length() == 0 {
				rowErr = &StructureError{Row: i, Reason: "group header has no cells"}
				return false
			}
			current = htmlutil.CleanText(cell)
			sessions[current] = map[string]schedule.ClassRecord{}
		case strings.HasPrefix(marker, gridRowPrefix):
			name, record, err := parseClassRow(i, row)
			if err != nil {
				rowErr = err
				return false
			}
			sessions.Put(current, name, record)
		default:
			skipped++
		}
		return true
	})
	if rowErr != nil {
		span.RecordError(rowErr)
		span.SetStatus(codes.Error, rowErr.Error())
		return nil, rowErr
	}

	span.SetAttributes(
		attribute.Int("sessions", len(sessions)),
		attribute.Int("classes", sessions.Count()),
		attribute.Int("skipped_rows", skipped),
	)
	return sessions, nil
}

func parseClassRow(i int, row *goquery.Selection) (string, schedule.ClassRecord, error) {
	cells := row.Find("td")
	if cells.Length() <= endCell {
		return "", schedule.ClassRecord{}, &StructureError{
			Row:    i,
			Reason: fmt.Sprintf("expected at least %d cells, got %d", endCell+1, cells.Length()),
		}
	}

	link := cells.Eq(nameCell).Find("a").First()
	if link.Length() == 0 {
		return "", schedule.ClassRecord{}, &StructureError{Row: i, Reason: "class name cell has no link"}
	}

	record := schedule.ClassRecord{
		City:  cellText(cells.Eq(cityCell)),
		Start: cellText(cells.Eq(startCell)),
		End:   cellText(cells.Eq(endCell)),
	}
	return htmlutil.CleanText(link), record, nil
}

// the listing wraps cell values in a span, fall back to the cell itself.
func cellText(cell *goquery.Selection) string {
	span := cell.Find("span").First()
	if span.Length() > 0 {
		return htmlutil.CleanText(span)
	}
	return htmlutil.CleanText(cell)
}
