// Package export serializes completed extraction results to durable storage:
// one JSON document with the full result and one CSV with a row per product.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-extract-catalog/models"
)

// PersistError indicates an export write failure. Fatal to the job, but a
// failed write never corrupts a previously exported artifact: files are
// written to a temp name and renamed into place.
type PersistError struct {
	Path string
	Err  error
}

func (e PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e PersistError) Unwrap() error {
	return e.Err
}

var csvHeader = []string{
	"sku", "title", "category", "manufacturer", "model",
	"price", "currency", "in_stock", "quantity", "image_urls", "last_updated",
}

// Sink writes run artifacts under one output directory.
type Sink struct {
	dir string
}

// NewSink creates the output directory if needed.
func NewSink(dir string) (*Sink, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, PersistError{Path: dir, Err: err}
	}
	return &Sink{dir: dir}, nil
}

// Write persists the result under the job identifier. Re-running an export
// for the same identifier overwrites the prior artifacts.
func (s *Sink) Write(jobID string, result *models.ExtractionResult) error {
	if err := s.writeJSON(jobID, result); err != nil {
		return err
	}
	return s.writeCSV(jobID, result)
}

// JSONPath returns the final JSON artifact path for a job.
func (s *Sink) JSONPath(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}

// CSVPath returns the final CSV artifact path for a job.
func (s *Sink) CSVPath(jobID string) string {
	return filepath.Join(s.dir, jobID+".csv")
}

func (s *Sink) writeJSON(jobID string, result *models.ExtractionResult) error {
	final := s.JSONPath(jobID)
	return s.atomicWrite(final, func(f *os.File) error {
		encoder := json.NewEncoder(f)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	})
}

func (s *Sink) writeCSV(jobID string, result *models.ExtractionResult) error {
	final := s.CSVPath(jobID)
	return s.atomicWrite(final, func(f *os.File) error {
		writer := csv.NewWriter(f)
		if err := writer.Write(csvHeader); err != nil {
			return err
		}
		for _, p := range result.Products {
			quantity := ""
			if p.Availability.Quantity != nil {
				quantity = strconv.Itoa(*p.Availability.Quantity)
			}
			record := []string{
				p.SKU,
				p.Title,
				p.Category,
				p.Manufacturer,
				p.Model,
				strconv.FormatFloat(p.Price.Amount, 'f', 2, 64),
				p.Price.Currency,
				strconv.FormatBool(p.Availability.InStock),
				quantity,
				strings.Join(p.ImageURLs, " "),
				p.LastUpdated.Format(time.RFC3339),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	})
}

// atomicWrite writes through a temp file in the same directory and renames
// it over the final name, so a crash mid-write never leaves a partial
// artifact visible.
func (s *Sink) atomicWrite(final string, fill func(*os.File) error) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(final)+".tmp-*")
	if err != nil {
		return PersistError{Path: final, Err: err}
	}
	tmpName := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return PersistError{Path: final, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return PersistError{Path: final, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return PersistError{Path: final, Err: err}
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return PersistError{Path: final, Err: err}
	}
	return nil
}
