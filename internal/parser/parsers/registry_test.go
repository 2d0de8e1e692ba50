package parsers_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Vodeneev/crashwatch/internal/parser/parsers"
	_ "github.com/Vodeneev/crashwatch/internal/parser/parsers/all"
	"github.com/Vodeneev/crashwatch/internal/pkg/config"
)

func TestAvailableNames(t *testing.T) {
	names := parsers.AvailableNames()
	want := map[string]bool{"chromedp": false, "fixture": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, found := range want {
		if !found {
			t.Errorf("driver %q not registered (have %v)", n, names)
		}
	}
}

func TestOpenReaderSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.txt")
	if err := os.WriteFile(path, []byte("2.00x 10:00:00\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.PollerConfig{
		MaxRows: 20,
		Platforms: []config.PlatformConfig{
			{Name: "aviator", Driver: "fixture", URL: path},
			{Name: "jetx", Driver: "fixture", URL: path},
		},
	}
	set, err := parsers.OpenReaderSet(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer set.Close()

	r, ok := set.For("jetx")
	if !ok {
		t.Fatal("jetx has no reader")
	}
	rows, err := r.FetchLatestRows(context.Background(), "jetx")
	if err != nil || len(rows) != 1 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
	if _, ok := set.For("spaceman"); ok {
		t.Error("unexpected reader for unconfigured platform")
	}
}

func TestOpenReaderSetUnknownDriver(t *testing.T) {
	cfg := &config.PollerConfig{Platforms: []config.PlatformConfig{{Name: "a", Driver: "carrier-pigeon", URL: "x"}}}
	if _, err := parsers.OpenReaderSet(cfg); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
