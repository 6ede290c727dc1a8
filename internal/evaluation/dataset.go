// Package evaluation measures how well a provider honours the analysis contract over a
// labelled set of product photos.
package evaluation

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Item is one labelled product photo.
type Item struct {
	ID        string `json:"id" parquet:"id"`
	ImagePath string `json:"image_path" parquet:"image_path"`
	// ProductName is the expected product name, compared by edit distance.
	ProductName string `json:"product_name,omitempty" parquet:"product_name,optional"`
	Category    string `json:"category,omitempty" parquet:"category,optional"`
	Language    string `json:"language,omitempty" parquet:"language,optional"`
	// ExpectedScore is a reference score, when one was assigned by a reviewer.
	ExpectedScore *int32 `json:"expected_score,omitempty" parquet:"expected_score"`
}

// Loader reads a dataset file (JSONL or Parquet).
type Loader struct {
	datasetPath string
	logger      *slog.Logger
}

func NewLoader(datasetPath string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{datasetPath: datasetPath, logger: logger}
}

// Load loads every item. Relative image paths are resolved against the dataset directory.
func (l *Loader) Load() ([]Item, error) {
	return l.LoadSample(0)
}

// LoadSample loads at most limit items. A limit <= 0 loads everything.
func (l *Loader) LoadSample(limit int) ([]Item, error) {
	var (
		items []Item
		err   error
	)
	ext := strings.ToLower(filepath.Ext(l.datasetPath))
	switch ext {
	case ".parquet":
		items, err = l.loadParquet(limit)
	case ".jsonl", ".json":
		items, err = l.loadJSONL(limit)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", ext)
	}
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(l.datasetPath)
	for i := range items {
		if items[i].ImagePath != "" && !filepath.IsAbs(items[i].ImagePath) {
			items[i].ImagePath = filepath.Join(base, items[i].ImagePath)
		}
	}
	l.logger.Debug("Dataset loaded", "path", l.datasetPath, "items", len(items))
	return items, nil
}

func (l *Loader) loadJSONL(limit int) ([]Item, error) {
	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	var items []Item
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var item Item
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		if item.ID == "" {
			item.ID = fmt.Sprintf("line-%d", lineNum)
		}
		items = append(items, item)

		if limit > 0 && len(items) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}
	return items, nil
}

func (l *Loader) loadParquet(limit int) ([]Item, error) {
	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	l.logger.Debug("Parquet file opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[Item](pf)
	defer reader.Close()

	var items []Item
	rows := make([]Item, 128)
	for {
		n, err := reader.Read(rows)
		items = append(items, rows[:n]...)
		if limit > 0 && len(items) >= limit {
			return items[:limit], nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return items, nil
}

// WriteParquet writes items as a Parquet dataset.
func WriteParquet(path string, items []Item) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := parquet.WriteFile(path, items); err != nil {
		return fmt.Errorf("failed to write parquet file: %w", err)
	}
	return nil
}
