// Package fixture serves result cells from local text files, one cell per line.
package fixture

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Vodeneev/crashwatch/internal/parser/parsers"
	"github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/models"
)

func init() {
	parsers.Register("fixture", func(cfg *config.PollerConfig, platforms []config.PlatformConfig) (parsers.Reader, error) {
		paths := make(map[string]string, len(platforms))
		for _, p := range platforms {
			paths[p.Name] = p.URL
		}
		return NewReader(paths, cfg.MaxRows), nil
	})
}

type Reader struct {
	paths   map[string]string
	maxRows int
}

func NewReader(paths map[string]string, maxRows int) *Reader {
	return &Reader{paths: paths, maxRows: maxRows}
}

// FetchLatestRows reads the file on every call so it can be edited while the poller runs.
func (r *Reader) FetchLatestRows(ctx context.Context, platform string) ([]models.RawRow, error) {
	path, ok := r.paths[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", parsers.ErrUnknownPlatform, platform)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", parsers.ErrSourceUnavailable, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", parsers.ErrSourceUnavailable, platform, err)
	}
	defer f.Close()

	var rows []models.RawRow
	sc := bufio.NewScanner(f)
	for order := 0; sc.Scan(); {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if r.maxRows > 0 && order >= r.maxRows {
			break
		}
		rows = append(rows, models.RawRow{Text: line, DisplayOrder: order})
		order++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", parsers.ErrSourceUnavailable, platform, err)
	}
	return rows, nil
}

func (r *Reader) Close() error { return nil }
