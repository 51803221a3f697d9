package lightpaint

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"libdb.so/lightpaint/internal/imaging"
	"libdb.so/lightpaint/internal/led"
	"libdb.so/lightpaint/internal/metrics"
)

// Catalog is the sorted list of paintable images found on the media. A nil
// *Catalog means no media is present.
type Catalog struct {
	Root    string
	Entries []string
}

// Len returns the number of images. It is 0 for a nil catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

// Path returns the path of entry i.
func (c *Catalog) Path(i int) string {
	return filepath.Join(c.Root, c.Entries[i])
}

// Scanner builds catalogs, showing its progress on the strip.
type Scanner struct {
	strip   *Strip
	color   led.RGBColor
	pause   time.Duration
	probe   func(path string) error
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewScanner creates a scanner that paints progress on strip.
func NewScanner(cfg *Config, strip *Strip, logger *slog.Logger, m *metrics.Metrics) *Scanner {
	return &Scanner{
		strip:   strip,
		color:   cfg.Status.Scan,
		pause:   time.Duration(cfg.Status.ScanPause),
		probe:   imaging.Probe,
		logger:  logger,
		metrics: m,
	}
}

// Scan lists root and returns the entries that decode as images, sorted.
// Each listed entry lights its share of the strip as it is checked; hidden
// files, directories and anything that is not an image are skipped.
//
// An error means root could not be listed at all.
func (s *Scanner) Scan(root string) (*Catalog, error) {
	files, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list media")
	}

	catalog := &Catalog{
		Root:    root,
		Entries: []string{},
	}

	if len(files) == 0 {
		s.finish(catalog)
		return catalog, nil
	}

	for i, f := range files {
		lower, upper := led.Segment(s.strip.Len(), i, len(files))
		s.strip.SetRange(lower, upper, s.color)
		if err := s.strip.Show(); err != nil {
			return nil, errors.Wrap(err, "failed to show scan progress")
		}

		name := f.Name()
		if strings.HasPrefix(name, ".") || f.IsDir() {
			continue
		}

		if err := s.probe(filepath.Join(root, name)); err != nil {
			s.logger.Debug("skipping non-image", "file", name, "reason", err)
			continue
		}

		catalog.Entries = append(catalog.Entries, name)
		time.Sleep(s.pause)
	}

	if err := s.strip.Clear(); err != nil {
		return nil, errors.Wrap(err, "failed to clear strip")
	}

	sort.Strings(catalog.Entries)
	s.finish(catalog)

	return catalog, nil
}

func (s *Scanner) finish(c *Catalog) {
	s.metrics.Scans.Inc()
	s.metrics.CatalogImages.Set(float64(c.Len()))
	s.logger.Info("scanned media", "root", c.Root, "images", c.Len())
}
