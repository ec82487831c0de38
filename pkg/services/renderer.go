// Package services contains business logic implementations.
package services

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fleetq/fleetq/pkg/errors"
	"github.com/fleetq/fleetq/pkg/models"
)

// csvIDColumn is the leading CSV column carrying the endpoint id.
const csvIDColumn = "client_id"

// timestampLayout is the fixed render format for timestamp values.
const timestampLayout = "2006-01-02 15:04:05"

// RenderSession carries per-invocation renderer state: whether the CSV
// header has been emitted. One session spans one render invocation and must
// be owned by a single renderer; concurrent renderers need their own
// sessions.
type RenderSession struct {
	headerWritten bool
}

// NewRenderSession creates a fresh render session.
func NewRenderSession() *RenderSession {
	return &RenderSession{}
}

// renderer implements the Renderer interface.
type renderer struct {
	logger Logger
}

// NewRenderer creates a new result renderer.
func NewRenderer(logger Logger) Renderer {
	return &renderer{logger: logger}
}

// RenderBatch renders an ordered outcome list through a fresh session.
// Rendering the same batch twice produces byte-identical output.
func (r *renderer) RenderBatch(w io.Writer, outcomes []models.QueryOutcome, mode RenderMode) error {
	session := NewRenderSession()
	for _, outcome := range outcomes {
		if err := r.RenderOne(w, outcome, mode, session); err != nil {
			return err
		}
	}
	return nil
}

// RenderOne renders a single endpoint's outcome. Rows of one outcome are
// always written as one contiguous block.
func (r *renderer) RenderOne(w io.Writer, outcome models.QueryOutcome, mode RenderMode, session *RenderSession) error {
	if err := checkOutcomeShape(outcome); err != nil {
		return err
	}

	switch mode {
	case RenderCSV:
		return r.renderCSV(w, outcome, session)
	default:
		return r.renderTable(w, outcome)
	}
}

// renderTable prints the per-endpoint status line and, when rows exist, an
// aligned table. Column width is the maximum of the header length and every
// formatted value's length.
func (r *renderer) renderTable(w io.Writer, outcome models.QueryOutcome) error {
	if !outcome.Success {
		if _, err := fmt.Fprintf(w, "endpoint %s: ERROR: %s\n\n", outcome.EndpointID, outcome.ErrorMessage); err != nil {
			return err
		}
		return nil
	}

	if _, err := fmt.Fprintf(w, "endpoint %s: %d row(s) in %d ms\n",
		outcome.EndpointID, len(outcome.Rows), outcome.Elapsed.Milliseconds()); err != nil {
		return err
	}

	if len(outcome.Rows) > 0 {
		widths := make([]int, len(outcome.Columns))
		formatted := make([][]string, len(outcome.Rows))
		for i, col := range outcome.Columns {
			widths[i] = utf8.RuneCountInString(col)
		}
		for i, row := range outcome.Rows {
			formatted[i] = make([]string, len(row))
			for j, value := range row {
				s := formatValue(value)
				formatted[i][j] = s
				if n := utf8.RuneCountInString(s); n > widths[j] {
					widths[j] = n
				}
			}
		}

		header := make([]string, len(outcome.Columns))
		dashes := make([]string, len(outcome.Columns))
		for i, col := range outcome.Columns {
			header[i] = pad(col, widths[i])
			dashes[i] = strings.Repeat("-", widths[i])
		}
		if _, err := fmt.Fprintln(w, strings.Join(header, " | ")); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, strings.Join(dashes, "-+-")); err != nil {
			return err
		}

		for _, row := range formatted {
			cells := make([]string, len(row))
			for i, s := range row {
				cells[i] = pad(s, widths[i])
			}
			if _, err := fmt.Fprintln(w, strings.Join(cells, " | ")); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}

// renderCSV prints the shared CSV stream. The header is emitted exactly
// once per session, from the first successful outcome that has at least one
// row; every row is prefixed with its endpoint id.
func (r *renderer) renderCSV(w io.Writer, outcome models.QueryOutcome, session *RenderSession) error {
	if !outcome.Success || len(outcome.Rows) == 0 {
		return nil
	}

	if !session.headerWritten {
		cells := make([]string, 0, len(outcome.Columns)+1)
		cells = append(cells, csvIDColumn)
		for _, col := range outcome.Columns {
			cells = append(cells, escapeCSV(col))
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, ",")); err != nil {
			return err
		}
		session.headerWritten = true
	}

	for _, row := range outcome.Rows {
		cells := make([]string, 0, len(row)+1)
		cells = append(cells, escapeCSV(outcome.EndpointID))
		for _, value := range row {
			cells = append(cells, escapeCSV(formatValue(value)))
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, ",")); err != nil {
			return err
		}
	}

	return nil
}

// checkOutcomeShape rejects malformed outcomes. A mismatch between the
// column list and a row's value count is a contract violation upstream, so
// it surfaces as an internal error instead of corrupt output.
func checkOutcomeShape(outcome models.QueryOutcome) error {
	for i, row := range outcome.Rows {
		if len(row) != len(outcome.Columns) {
			return errors.Newf(errors.CodeInternal,
				"endpoint %s: row %d has %d values for %d columns",
				outcome.EndpointID, i+1, len(row), len(outcome.Columns))
		}
	}
	return nil
}

// formatValue renders one cell value. NULLs become the literal NULL marker
// only here, at the output boundary.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(timestampLayout)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// escapeCSV wraps a value in double quotes, doubling inner quotes, when it
// contains a comma, quote, or newline.
func escapeCSV(value string) string {
	if !strings.ContainsAny(value, ",\"\n\r") {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// pad right-pads a cell to the column width. Widths count runes so
// multibyte values stay aligned with their column.
func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
