package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/clarus-labs/repricer/internal/model"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"config", fmt.Errorf("%w: bad yaml", errConfig), exitConfigError},
		{"credentials", fmt.Errorf("%w: no key", errCredentials), exitNoCredentials},
		{"cancelled", fmt.Errorf("%w: job x", errCancelled), exitCancelled},
		{"provider down", fmt.Errorf("%w: job x", errProviderDown), exitProviderDown},
		{"unknown", errors.New("boom"), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCodeFor(tc.err); got != tc.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestLoadConfigDefaultsWhenNoPathGiven(t *testing.T) {
	old := configPath
	configPath = ""
	defer func() { configPath = old }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.TolerancePct != 50 {
		t.Errorf("TolerancePct = %v, want the default 50", cfg.TolerancePct)
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	old := configPath
	defer func() { configPath = old }()

	dir := t.TempDir()
	path := filepath.Join(dir, "repricer.yaml")
	if err := os.WriteFile(path, []byte("tolerance_pct: 33\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	configPath = path

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.TolerancePct != 33 {
		t.Errorf("TolerancePct = %v, want 33 from overlay", cfg.TolerancePct)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	old := configPath
	defer func() { configPath = old }()
	configPath = filepath.Join(t.TempDir(), "does-not-exist.yaml")

	if _, err := loadConfig(); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestReadRowsParsesJSONArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.json")
	body := `[{"row_index":0,"description":"Sofa","qty":1,"purchase_price":500},{"row_index":1,"description":"Lamp","qty":2}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	rows, err := readRows(path)
	if err != nil {
		t.Fatalf("readRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Description != "Sofa" || rows[0].PurchasePrice == nil || *rows[0].PurchasePrice != 500 {
		t.Errorf("rows[0] = %+v, unexpected values", rows[0])
	}
	if rows[1].Qty != 2 {
		t.Errorf("rows[1].Qty = %d, want 2", rows[1].Qty)
	}
}

func TestReadRowsMissingFile(t *testing.T) {
	if _, err := readRows(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected an error for a missing input file")
	}
}

func TestReadRowsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := readRows(path); err == nil {
		t.Error("expected a parse error for invalid JSON")
	}
}

func TestWriteResultsToFile(t *testing.T) {
	old := outputPath
	defer func() { outputPath = old }()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	outputPath = path

	results := []model.PricingResult{{RowIndex: 0, Status: model.StatusFound, Price: 10}}
	if err := writeResults(results); err != nil {
		t.Fatalf("writeResults() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty output file")
	}
}

func TestCountNonEmpty(t *testing.T) {
	results := []model.PricingResult{
		{Status: model.StatusFound},
		{},
		{Status: model.StatusEstimated},
	}
	if got := countNonEmpty(results); got != 2 {
		t.Errorf("countNonEmpty() = %d, want 2", got)
	}
}
