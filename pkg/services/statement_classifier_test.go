package services

import (
	"strings"
	"testing"

	"github.com/fleetq/fleetq/pkg/models"
)

func TestStatementClassifier_Classify(t *testing.T) {
	classifier := NewStatementClassifier()

	tests := []struct {
		name     string
		sql      string
		expected models.StatementType
	}{
		// Select statements
		{"SELECT", "SELECT * FROM test", models.StatementSelect},
		{"SELECT lowercase", "select * from test", models.StatementSelect},
		{"SELECT with whitespace", "  SELECT 1  ", models.StatementSelect},

		// DML statements
		{"INSERT", "INSERT INTO test VALUES (1)", models.StatementDML},
		{"UPDATE", "UPDATE test SET id = 2", models.StatementDML},
		{"DELETE", "DELETE FROM test WHERE id = 1", models.StatementDML},
		{"MERGE", "MERGE INTO test USING src ON test.id = src.id", models.StatementDML},
		{"DELETE lowercase", "delete from test", models.StatementDML},

		// DDL statements
		{"CREATE TABLE", "CREATE TABLE test (id INT)", models.StatementDDL},
		{"ALTER TABLE", "ALTER TABLE test ADD COLUMN name TEXT", models.StatementDDL},
		{"DROP TABLE", "DROP TABLE test", models.StatementDDL},
		{"TRUNCATE", "TRUNCATE TABLE test", models.StatementDDL},
		{"RENAME", "RENAME TABLE a TO b", models.StatementDDL},

		// Transaction control
		{"BEGIN", "BEGIN", models.StatementTransactionControl},
		{"COMMIT", "COMMIT", models.StatementTransactionControl},
		{"ROLLBACK", "ROLLBACK", models.StatementTransactionControl},
		{"START TRANSACTION", "START TRANSACTION", models.StatementTransactionControl},

		// Procedure calls
		{"CALL", "CALL refresh_stats()", models.StatementProcedure},
		{"EXEC", "EXEC sp_who", models.StatementProcedure},
		{"EXECUTE", "EXECUTE plan1", models.StatementProcedure},

		// Edge cases
		{"Empty string", "", models.StatementUnknown},
		{"Whitespace only", "   ", models.StatementUnknown},
		{"WITH CTE", "WITH cte AS (SELECT 1) SELECT * FROM cte", models.StatementUnknown},
		{"Unknown statement", "FROBNICATE EVERYTHING", models.StatementUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifier.Classify(tt.sql)
			if result != tt.expected {
				t.Errorf("Classify(%q) = %v, want %v", tt.sql, result, tt.expected)
			}
		})
	}
}

func TestStatementClassifier_Validate(t *testing.T) {
	classifier := NewStatementClassifier()

	tests := []struct {
		name       string
		sql        string
		valid      bool
		statements int
		errSubstr  string
	}{
		{"single select", "SELECT 1", true, 1, ""},
		{"trailing semicolon", "SELECT 1;", true, 1, ""},
		{"two selects", "SELECT 1; SELECT 2;", true, 2, ""},
		{"selects with comments", "-- header\nSELECT 1;\n/* mid */\nSELECT 2;", true, 2, ""},
		{"select with blank statements", "SELECT 1;;;  ;", true, 1, ""},
		{"delete", "DELETE FROM t;", false, 1, "DML"},
		{"select then drop", "SELECT 1; DROP TABLE t;", false, 2, "DDL"},
		{"commit", "COMMIT;", false, 1, "TRANSACTION_CONTROL"},
		{"procedure call", "CALL nuke();", false, 1, "PROCEDURE"},
		{"gibberish", "FROBNICATE;", false, 1, "UNKNOWN"},
		{"empty", "", false, 0, "empty"},
		{"whitespace only", "   \n\t ", false, 0, "empty"},
		{"comment only", "-- just a comment", false, 0, "empty"},
		{"block comment only", "/* nothing here */", false, 0, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := classifier.Validate(tt.sql)
			if outcome.IsValid != tt.valid {
				t.Errorf("Validate(%q).IsValid = %v, want %v (error: %s)",
					tt.sql, outcome.IsValid, tt.valid, outcome.ErrorMessage)
			}
			if outcome.StatementCount != tt.statements {
				t.Errorf("Validate(%q).StatementCount = %d, want %d",
					tt.sql, outcome.StatementCount, tt.statements)
			}
			if tt.errSubstr != "" && !strings.Contains(outcome.ErrorMessage, tt.errSubstr) {
				t.Errorf("Validate(%q).ErrorMessage = %q, want it to mention %q",
					tt.sql, outcome.ErrorMessage, tt.errSubstr)
			}
		})
	}
}

func TestStatementClassifier_ValidateClassifiesEverything(t *testing.T) {
	classifier := NewStatementClassifier()

	// Classification keeps going after the first failure so diagnostics
	// cover the whole script.
	outcome := classifier.Validate("DELETE FROM t; SELECT 1; DROP TABLE t;")
	if outcome.IsValid {
		t.Fatal("expected invalid outcome")
	}
	if len(outcome.Statements) != 3 {
		t.Fatalf("expected 3 classified statements, got %d", len(outcome.Statements))
	}

	wantTypes := []models.StatementType{
		models.StatementDML,
		models.StatementSelect,
		models.StatementDDL,
	}
	for i, stmt := range outcome.Statements {
		if stmt.Index != i+1 {
			t.Errorf("statement %d has index %d", i, stmt.Index)
		}
		if stmt.StatementType != wantTypes[i] {
			t.Errorf("statement %d classified as %v, want %v", i+1, stmt.StatementType, wantTypes[i])
		}
	}
	// First failure wins the top-level error.
	if !strings.Contains(outcome.ErrorMessage, "statement 1") {
		t.Errorf("top-level error %q should point at statement 1", outcome.ErrorMessage)
	}
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{"no comments", "SELECT 1", "SELECT 1"},
		{"line comment", "SELECT 1 -- trailing\n", "SELECT 1  \n"},
		{"block comment", "SELECT /* inline */ 1", "SELECT   1"},
		{"nested block comment", "SELECT /* a /* b */ c */ 1", "SELECT   1"},
		{"marker inside string", "SELECT '--not a comment'", "SELECT '--not a comment'"},
		{"block marker inside string", "SELECT '/* kept */'", "SELECT '/* kept */'"},
		{"marker inside identifier", `SELECT "a--b" FROM t`, `SELECT "a--b" FROM t`},
		{"escaped quote", "SELECT 'it''s -- fine'", "SELECT 'it''s -- fine'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripComments(tt.in); got != tt.out {
				t.Errorf("stripComments(%q) = %q, want %q", tt.in, got, tt.out)
			}
		})
	}
}

func TestStripCommentsPreservesClassification(t *testing.T) {
	classifier := NewStatementClassifier()

	// Stripping comments then reclassifying must not change the category.
	statements := []string{
		"SELECT 1",
		"/* lead */ SELECT 1",
		"-- lead\nSELECT 1",
		"DELETE FROM t -- oops",
		"/* x */ DROP TABLE t",
	}
	for _, stmt := range statements {
		direct := classifier.Classify(strings.TrimSpace(stripComments(stmt)))
		viaValidate := classifier.Validate(stmt)
		if len(viaValidate.Statements) != 1 {
			t.Fatalf("Validate(%q) produced %d statements", stmt, len(viaValidate.Statements))
		}
		if viaValidate.Statements[0].StatementType != direct {
			t.Errorf("classification of %q diverged: %v vs %v",
				stmt, viaValidate.Statements[0].StatementType, direct)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  []string
	}{
		{"single", "SELECT 1", []string{"SELECT 1"}},
		{"two", "SELECT 1; SELECT 2", []string{"SELECT 1", "SELECT 2"}},
		{"semicolon in string", "SELECT 'a;b'; SELECT 2", []string{"SELECT 'a;b'", "SELECT 2"}},
		{"semicolon in identifier", `SELECT ";" FROM t`, []string{`SELECT ";" FROM t`}},
		{"blank candidates dropped", ";;SELECT 1;;", []string{"SELECT 1"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitStatements(tt.in)
			if len(got) != len(tt.out) {
				t.Fatalf("splitStatements(%q) = %v, want %v", tt.in, got, tt.out)
			}
			for i := range got {
				if got[i] != tt.out[i] {
					t.Errorf("splitStatements(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.out[i])
				}
			}
		})
	}
}
