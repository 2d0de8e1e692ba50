package normalize

import (
	"fmt"
	"testing"

	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text  string
		ok    bool
		mult  string
		clock string
	}{
		{"2.45x 12:01:05", true, "2.45", "12:01:05"},
		{"2,45x12:01:05", true, "2.45", "12:01:05"},
		{"1.07X 9:00:40", true, "1.07", "09:00:40"},
		{"13.5× 23:59:59", true, "13.5", "23:59:59"},
		{"3x 00:00:01", true, "3", "00:00:01"},
		{"2.00x139:15:00", true, "2", "09:15:00"},
		{"1.00 07:07:07", true, "1", "07:07:07"},
		{"0.99x 12:00:00", false, "", ""},
		{"2.45x", false, "", ""},
		{"12:01:05", false, "", ""},
		{"abc 12:01:05", false, "", ""},
		{"2.45x 12:61:05", false, "", ""},
		{"", false, "", ""},
	}
	for _, tt := range tests {
		nr, ok := Parse("aviator", models.RawRow{Text: tt.text, DisplayOrder: 3})
		if ok != tt.ok {
			t.Errorf("Parse(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if want := models.MinMultiplier; nr.Multiplier.LessThan(want) {
			t.Errorf("Parse(%q) multiplier below minimum: %s", tt.text, nr.Multiplier)
		}
		if nr.Multiplier.String() != tt.mult {
			t.Errorf("Parse(%q) multiplier = %s, want %s", tt.text, nr.Multiplier, tt.mult)
		}
		if nr.Clock.String() != tt.clock {
			t.Errorf("Parse(%q) clock = %s, want %s", tt.text, nr.Clock, tt.clock)
		}
		if nr.Platform != "aviator" || nr.DisplayOrder != 3 {
			t.Errorf("Parse(%q) = %+v", tt.text, nr)
		}
	}
}

func TestParseBatch_MalformedRowIsolated(t *testing.T) {
	rows := make([]models.RawRow, 0, 20)
	for i := 0; i < 20; i++ {
		text := fmt.Sprintf("%d.%02dx 12:%02d:00", 1+i%5, i, 59-i)
		if i == 7 {
			text = "loading..."
		}
		rows = append(rows, models.RawRow{Text: text, DisplayOrder: i})
	}

	parsed, dropped := ParseBatch("aviator", rows)
	if len(parsed) != 19 || dropped != 1 {
		t.Fatalf("parsed %d dropped %d, want 19 and 1", len(parsed), dropped)
	}
	for _, nr := range parsed {
		if nr.DisplayOrder == 7 {
			t.Error("malformed row was not dropped")
		}
	}
}
