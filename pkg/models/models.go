// Package models provides data structures used throughout fleetq.
package models

import (
	"time"
)

// Endpoint describes one target database in the fleet. Endpoints are built
// by the config loader and are read-only for the duration of a run.
type Endpoint struct {
	ID       string `json:"id" yaml:"id"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"-" yaml:"password"`
}

// RunRequest represents one query run against a set of endpoints.
type RunRequest struct {
	Query      string        `json:"query"`
	Statements []string      `json:"statements,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}

// StatementsOrQuery returns the pre-split statements when the classifier
// supplied them, or the raw query text as a single statement.
func (r RunRequest) StatementsOrQuery() []string {
	if len(r.Statements) > 0 {
		return r.Statements
	}
	return []string{r.Query}
}

// ValidationOutcome is the result of classifying a query script. Produced
// once per script; immutable after creation.
type ValidationOutcome struct {
	IsValid        bool               `json:"is_valid"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	StatementCount int                `json:"statement_count"`
	Statements     []StatementOutcome `json:"statements,omitempty"`
}

// StatementOutcome records the classification of a single statement.
// Index is 1-based, matching the statement's position in the script.
type StatementOutcome struct {
	Index         int           `json:"index"`
	RawText       string        `json:"raw_text"`
	IsValid       bool          `json:"is_valid"`
	StatementType StatementType `json:"statement_type"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// StatementType categorizes a SQL statement by its leading keyword.
type StatementType int

const (
	StatementSelect             StatementType = iota // SELECT
	StatementDML                                     // INSERT, UPDATE, DELETE, MERGE
	StatementDDL                                     // CREATE, ALTER, DROP, TRUNCATE, RENAME
	StatementTransactionControl                      // BEGIN, COMMIT, ROLLBACK, START TRANSACTION
	StatementProcedure                               // CALL, EXEC, EXECUTE
	StatementUnknown                                 // anything else
)

// String returns the string representation of the statement type.
func (st StatementType) String() string {
	switch st {
	case StatementSelect:
		return "SELECT"
	case StatementDML:
		return "DML"
	case StatementDDL:
		return "DDL"
	case StatementTransactionControl:
		return "TRANSACTION_CONTROL"
	case StatementProcedure:
		return "PROCEDURE"
	default:
		return "UNKNOWN"
	}
}

// QueryOutcome is the recorded result of running the query against one
// endpoint. Exactly one is produced per endpoint per run; immutable once
// created. Success=false implies Columns and Rows are empty and
// ErrorMessage is set.
type QueryOutcome struct {
	EndpointID   string        `json:"endpoint_id"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Columns      []string      `json:"columns,omitempty"`
	Rows         []Row         `json:"rows,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Row is an ordered snapshot of one result-set row. Values are positional,
// aligned with QueryOutcome.Columns. NULL values are nil until render time.
type Row []any

// FailedOutcome builds the outcome recorded for an endpoint whose
// execution failed. Columns and rows stay empty by construction.
func FailedOutcome(endpointID string, err error, elapsed time.Duration) QueryOutcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return QueryOutcome{
		EndpointID:   endpointID,
		Success:      false,
		ErrorMessage: msg,
		Elapsed:      elapsed,
	}
}

// ProbeResult is the outcome of a connectivity pre-check against one
// endpoint.
type ProbeResult struct {
	EndpointID    string        `json:"endpoint_id"`
	Success       bool          `json:"success"`
	Message       string        `json:"message,omitempty"`
	ErrorCode     string        `json:"error_code,omitempty"`
	ServerVersion string        `json:"server_version,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
}
