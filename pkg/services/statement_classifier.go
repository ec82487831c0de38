// Package services contains business logic implementations.
package services

import (
	"fmt"
	"strings"

	"github.com/fleetq/fleetq/pkg/models"
)

// keywordTypes maps a statement's leading keyword onto its category. The
// categories are closed: anything not listed classifies as Unknown and is
// rejected by validation.
var keywordTypes = map[string]models.StatementType{
	"SELECT": models.StatementSelect,

	"INSERT": models.StatementDML,
	"UPDATE": models.StatementDML,
	"DELETE": models.StatementDML,
	"MERGE":  models.StatementDML,

	"CREATE":   models.StatementDDL,
	"ALTER":    models.StatementDDL,
	"DROP":     models.StatementDDL,
	"TRUNCATE": models.StatementDDL,
	"RENAME":   models.StatementDDL,

	"BEGIN":    models.StatementTransactionControl,
	"COMMIT":   models.StatementTransactionControl,
	"ROLLBACK": models.StatementTransactionControl,
	"START":    models.StatementTransactionControl, // START TRANSACTION

	"CALL":    models.StatementProcedure,
	"EXEC":    models.StatementProcedure,
	"EXECUTE": models.StatementProcedure,
}

// StatementClassifier statically proves a script contains only read
// operations. It is the first, fail-closed gate of the pipeline; the
// read-only transaction guard is the second.
type StatementClassifier struct{}

// NewStatementClassifier creates a new statement classifier.
func NewStatementClassifier() *StatementClassifier {
	return &StatementClassifier{}
}

// Validate strips comments, splits the script on semicolons, and classifies
// every non-blank statement. The result is valid iff every statement is a
// SELECT and at least one exists. All statements are classified even after
// the first failure so diagnostics cover the whole script.
func (c *StatementClassifier) Validate(query string) models.ValidationOutcome {
	stripped := stripComments(query)
	candidates := splitStatements(stripped)

	if len(candidates) == 0 {
		return models.ValidationOutcome{
			IsValid:      false,
			ErrorMessage: "query is empty after comment stripping",
		}
	}

	outcome := models.ValidationOutcome{
		IsValid:        true,
		StatementCount: len(candidates),
		Statements:     make([]models.StatementOutcome, 0, len(candidates)),
	}

	for i, stmt := range candidates {
		stmtType := c.Classify(stmt)
		stmtOutcome := models.StatementOutcome{
			Index:         i + 1,
			RawText:       stmt,
			IsValid:       stmtType == models.StatementSelect,
			StatementType: stmtType,
		}
		if !stmtOutcome.IsValid {
			stmtOutcome.ErrorMessage = fmt.Sprintf(
				"statement %d is %s; only SELECT statements are allowed", i+1, stmtType)
			if outcome.IsValid {
				outcome.IsValid = false
				outcome.ErrorMessage = stmtOutcome.ErrorMessage
			}
		}
		outcome.Statements = append(outcome.Statements, stmtOutcome)
	}

	return outcome
}

// Classify categorizes one statement by its leading keyword,
// case-insensitively.
func (c *StatementClassifier) Classify(statement string) models.StatementType {
	keyword := leadingKeyword(statement)
	if keyword == "" {
		return models.StatementUnknown
	}
	if t, ok := keywordTypes[keyword]; ok {
		return t
	}
	return models.StatementUnknown
}

// leadingKeyword extracts the first word of a statement, uppercased.
func leadingKeyword(statement string) string {
	statement = strings.TrimSpace(statement)
	end := 0
	for end < len(statement) {
		ch := statement[end]
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' {
			end++
			continue
		}
		break
	}
	return strings.ToUpper(statement[:end])
}

// stripComments removes line (--) and block (/* */) comments. The scan is
// quote-aware so comment markers inside string literals or quoted
// identifiers survive. Block comments nest, matching PostgreSQL. Comments
// are replaced with a single space to preserve token boundaries.
func stripComments(query string) string {
	var b strings.Builder
	b.Grow(len(query))

	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	blockDepth := 0

	for i := 0; i < len(query); i++ {
		ch := query[i]
		var next byte
		if i+1 < len(query) {
			next = query[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case ch == '-' && next == '-':
				state = stateLineComment
				b.WriteByte(' ')
				i++
			case ch == '/' && next == '*':
				state = stateBlockComment
				blockDepth = 1
				b.WriteByte(' ')
				i++
			case ch == '\'':
				state = stateSingleQuote
				b.WriteByte(ch)
			case ch == '"':
				state = stateDoubleQuote
				b.WriteByte(ch)
			default:
				b.WriteByte(ch)
			}
		case stateSingleQuote:
			b.WriteByte(ch)
			if ch == '\'' {
				// '' escapes a quote inside the literal.
				if next == '\'' {
					b.WriteByte(next)
					i++
				} else {
					state = stateNormal
				}
			}
		case stateDoubleQuote:
			b.WriteByte(ch)
			if ch == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if ch == '\n' {
				state = stateNormal
				b.WriteByte(ch)
			}
		case stateBlockComment:
			switch {
			case ch == '/' && next == '*':
				blockDepth++
				i++
			case ch == '*' && next == '/':
				blockDepth--
				i++
				if blockDepth == 0 {
					state = stateNormal
				}
			}
		}
	}

	return b.String()
}

// splitStatements splits comment-free text on semicolons outside quotes and
// drops blank candidates.
func splitStatements(text string) []string {
	var statements []string
	var b strings.Builder

	inSingle := false
	inDouble := false

	flush := func() {
		if stmt := strings.TrimSpace(b.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		b.Reset()
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteByte(ch)
		case ch == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteByte(ch)
		case ch == ';' && !inSingle && !inDouble:
			flush()
		default:
			b.WriteByte(ch)
		}
	}
	flush()

	return statements
}
