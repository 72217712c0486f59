package config

import (
	"testing"

	"golang-dedup-service/internal/reporter"
	"golang-dedup-service/pkg/logger"
)

func TestCreateDetectorConfigProfiles(t *testing.T) {
	tests := []struct {
		name        string
		profile     string
		expectError bool
	}{
		{name: "default profile", profile: "default"},
		{name: "empty profile falls back to default", profile: ""},
		{name: "strict profile", profile: "strict"},
		{name: "relaxed profile", profile: "relaxed"},
		{name: "unknown profile", profile: "aggressive", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := CreateDetectorConfig(tt.profile, 0, 0, 0, false)

			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := config.Validate(); err != nil {
				t.Errorf("profile config should validate: %v", err)
			}
		})
	}
}

func TestCreateDetectorConfigOverrides(t *testing.T) {
	config, err := CreateDetectorConfig("default", 3, 60, 0.75, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.DateWindowDays != 3 {
		t.Errorf("DateWindowDays = %d, want 3", config.DateWindowDays)
	}
	if config.DateRangeDays != 60 {
		t.Errorf("DateRangeDays = %d, want 60", config.DateRangeDays)
	}
	if config.MinConfidence != 0.75 {
		t.Errorf("MinConfidence = %f, want 0.75", config.MinConfidence)
	}
	if !config.IncludeReviewed {
		t.Error("IncludeReviewed should be set")
	}
}

func TestCreateDetectorConfigZeroOverridesKeepProfile(t *testing.T) {
	strict, err := CreateDetectorConfig("strict", 0, 0, 0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strict.DateWindowDays != 3 {
		t.Errorf("strict window = %d, want 3", strict.DateWindowDays)
	}
	if strict.MinConfidence != 0.8 {
		t.Errorf("strict min confidence = %f, want 0.8", strict.MinConfidence)
	}
}

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		format      string
		want        reporter.OutputFormat
		expectError bool
	}{
		{format: "console", want: reporter.FormatConsole},
		{format: "json", want: reporter.FormatJSON},
		{format: "csv", want: reporter.FormatCSV},
		{format: "xml", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			config, err := CreateReportConfig(tt.format)

			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Format != tt.want {
				t.Errorf("Format = %s, want %s", config.Format, tt.want)
			}
		})
	}
}

func TestCreateImporterConfigAliases(t *testing.T) {
	config := CreateImporterConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("importer config should validate: %v", err)
	}

	aliases := map[string]string{
		"txn_id":       "id",
		"posting_date": "date",
		"memo":         "description",
		"merchant":     "vendor",
	}
	for alias, standard := range aliases {
		if config.ColumnAliases[alias] != standard {
			t.Errorf("alias %s = %s, want %s", alias, config.ColumnAliases[alias], standard)
		}
	}
}

func TestCreateLoggerConfig(t *testing.T) {
	quiet := CreateLoggerConfig(false)
	if quiet.Level != logger.WarnLevel {
		t.Errorf("quiet level = %s, want warn", quiet.Level)
	}
	if quiet.Output != logger.StderrOutput {
		t.Errorf("output = %s, want stderr", quiet.Output)
	}

	chatty := CreateLoggerConfig(true)
	if chatty.Level != logger.DebugLevel {
		t.Errorf("verbose level = %s, want debug", chatty.Level)
	}
}
