package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Vodeneev/crashwatch/internal/parser/parsers"
	"github.com/Vodeneev/crashwatch/internal/pkg/config"
)

func TestRowsFromTexts(t *testing.T) {
	texts := []string{"2,45x\n12:01:05", "  ", "1.07x 12:00:40", "3x 11:59:59"}

	rows := rowsFromTexts(texts, 3)
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Text != "2,45x 12:01:05" || rows[0].DisplayOrder != 0 {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].DisplayOrder != 2 {
		t.Errorf("blank cell must keep page positions, got order %d", rows[1].DisplayOrder)
	}
}

func TestCellsScriptEscapesSelector(t *testing.T) {
	s := cellsScript(`div[data-x="a"]`, 20)
	if !strings.Contains(s, `"div[data-x=\"a\"]"`) || !strings.Contains(s, "slice(0, 20)") {
		t.Errorf("script = %s", s)
	}
}

func TestFetchUnknownPlatform(t *testing.T) {
	r := NewReader(&config.PollerConfig{MaxRows: 20}, nil)
	_, err := r.FetchLatestRows(context.Background(), "nope")
	if !errors.Is(err, parsers.ErrUnknownPlatform) {
		t.Fatalf("err = %v", err)
	}
}
