package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/pacificgeo/landsat-mosaic/common"
	"github.com/pacificgeo/landsat-mosaic/service"
)

// Manifest records which cells of a product/year run have been
// completed, so reruns after a partial failure skip finished work. It
// is persisted next to the cell rasters.
type Manifest struct {
	mu      sync.Mutex
	product string
	year    int
	done    service.StringSet
}

type manifestFile struct {
	Product   string    `json:"product"`
	Year      int       `json:"year"`
	UpdatedAt time.Time `json:"updated_at"`
	Completed []string  `json:"completed"`
}

// LoadManifest fetches the run's manifest from the store. A missing
// manifest is an empty one, not an error.
func LoadManifest(ctx context.Context, store service.Storage, product string, year int) (*Manifest, error) {
	m := &Manifest{product: product, year: year, done: service.StringSet{}}
	r, err := store.Get(ctx, common.ManifestKey(product, year))
	if err != nil {
		var notFound service.ErrFileNotFound
		if errors.As(err, &notFound) {
			return m, nil
		}
		return nil, fmt.Errorf("LoadManifest.%w", err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("LoadManifest.ReadAll: %w", err)
	}
	var file manifestFile
	if err := json.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("LoadManifest.Unmarshal: %w", err)
	}
	for _, key := range file.Completed {
		m.done.Push(key)
	}
	return m, nil
}

// Save persists the manifest, overwriting.
func (m *Manifest) Save(ctx context.Context, store service.Storage) error {
	m.mu.Lock()
	file := manifestFile{
		Product:   m.product,
		Year:      m.year,
		UpdatedAt: time.Now().UTC(),
		Completed: m.done.Slice(),
	}
	m.mu.Unlock()
	sort.Strings(file.Completed)

	b, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("Manifest.Save.Marshal: %w", err)
	}
	if err := store.Put(ctx, common.ManifestKey(m.product, m.year), bytes.NewReader(b)); err != nil {
		return fmt.Errorf("Manifest.Save.%w", err)
	}
	return nil
}

// Done reports whether the cell was completed by a previous run.
func (m *Manifest) Done(cell common.GridCell) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done.Exists(cell.Key())
}

// MarkDone records the cell as completed.
func (m *Manifest) MarkDone(cell common.GridCell) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done.Push(cell.Key())
}
