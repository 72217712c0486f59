package errors

import (
	"strings"
	"testing"
)

func TestParseErrorCollectorCap(t *testing.T) {
	collector := NewParseErrorCollector(3, true)

	for i := 1; i <= 2; i++ {
		if !collector.Add(InvalidDateError("export.csv", i, "date", "bogus")) {
			t.Fatalf("collector should continue below the cap (error %d)", i)
		}
	}
	if collector.Add(InvalidDateError("export.csv", 3, "date", "bogus")) {
		t.Error("collector should stop once the cap is reached")
	}
	if len(collector.GetErrors()) != 3 {
		t.Errorf("collected = %d, want 3", len(collector.GetErrors()))
	}

	collector.Clear()
	if collector.HasErrors() {
		t.Error("cleared collector should have no errors")
	}
}

func TestParseErrorCollectorStopsOnUnrecoverable(t *testing.T) {
	collector := NewParseErrorCollector(10, false)

	if !collector.Add(InvalidAmountError("export.csv", 2, "amount", "abc")) {
		t.Error("recoverable row errors should not stop processing")
	}
	if collector.Add(MissingColumnError("export.csv", []string{"id", "date"}, []string{"id"})) {
		t.Error("unrecoverable errors should stop processing")
	}

	summary := collector.GetSummary()
	if summary.Total != 2 {
		t.Errorf("summary total = %d, want 2", summary.Total)
	}
	if summary.ByCode[CodeMissingColumn] != 1 {
		t.Errorf("expected one missing-column error in the summary")
	}
}

func TestMissingColumnErrorNamesMissingColumns(t *testing.T) {
	err := MissingColumnError("export.csv", []string{"id", "date", "amount"}, []string{"ID", "Amount"})

	if err.Recoverable {
		t.Error("missing columns should not be recoverable")
	}
	if !strings.Contains(err.Message, "date") {
		t.Errorf("message should name the missing column: %s", err.Message)
	}
	if strings.Contains(err.Message, "amount") {
		t.Errorf("column matching should be case-insensitive: %s", err.Message)
	}
}

func TestFormatParseErrorsForUserGroupsByFile(t *testing.T) {
	errs := []*EnhancedParseError{
		InvalidDateError("export.csv", 2, "date", "03-2024"),
		InvalidAmountError("export.csv", 3, "amount", "$x"),
	}

	out := FormatParseErrorsForUser(errs)
	if !strings.Contains(out, "Found 2 parse errors") {
		t.Errorf("expected error count header, got:\n%s", out)
	}
	if !strings.Contains(out, "export.csv") {
		t.Errorf("expected file grouping, got:\n%s", out)
	}
}
