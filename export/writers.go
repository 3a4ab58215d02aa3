// Package export writes collected reviews as CSV or JSON lines.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// utf8BOM lets spreadsheet applications detect UTF-8 CSV files.
const utf8BOM = "\ufeff"

// Header is the CSV column order.
var Header = []string{"review_id", "author", "rating", "title", "review_text", "review_date", "version", "region"}

// OutputWriter defines the interface for review output.
type OutputWriter interface {
	Write(reviews []models.Review) error
	Close() error
	Validate() error
}

// CSVWriter writes reviews as CSV records.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter writes the optional BOM and the header row to w.
func NewCSVWriter(w io.Writer, bom bool) (*CSVWriter, error) {
	if bom {
		if _, err := io.WriteString(w, utf8BOM); err != nil {
			return nil, fmt.Errorf("write csv bom: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return &CSVWriter{writer: writer}, nil
}

// CreateCSVFile creates filename and returns a CSV writer that owns it.
func CreateCSVFile(filename string, bom bool) (*CSVWriter, error) {
	f, err := createFile(filename)
	if err != nil {
		return nil, err
	}
	cw, err := NewCSVWriter(f, bom)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.file = f
	return cw, nil
}

// Write appends reviews to the CSV output.
func (cw *CSVWriter) Write(reviews []models.Review) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, r := range reviews {
		record := []string{
			r.ID,
			r.Author,
			strconv.Itoa(r.Rating),
			r.Title,
			r.Text,
			r.Date,
			r.Version,
			r.Region,
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle when the writer owns one.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	if cw.file == nil {
		return nil
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	return validateFile(cw.file, "csv")
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter wraps w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	buffer := bufio.NewWriter(w)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		writer:  buffer,
		encoder: encoder,
	}
}

// CreateJSONFile creates filename and returns a JSON lines writer that owns it.
func CreateJSONFile(filename string) (*JSONWriter, error) {
	f, err := createFile(filename)
	if err != nil {
		return nil, err
	}
	jw := NewJSONWriter(f)
	jw.file = f
	return jw, nil
}

// Write appends reviews in JSONL format.
func (jw *JSONWriter) Write(reviews []models.Review) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, r := range reviews {
		if err := jw.encoder.Encode(r); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file when owned.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	if jw.file == nil {
		return nil
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	return validateFile(jw.file, "json")
}

// DualWriter outputs to both CSV and JSON formats simultaneously.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// CreateDualFiles creates the CSV and JSON lines outputs.
func CreateDualFiles(csvFilename, jsonFilename string, bom bool) (*DualWriter, error) {
	csvWriter, err := CreateCSVFile(csvFilename, bom)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	jsonWriter, err := CreateJSONFile(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("failed to create JSON writer: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// Write writes reviews to both formats.
func (dw *DualWriter) Write(reviews []models.Review) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(reviews); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	if err := dw.jsonWriter.Write(reviews); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}
	return nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("CSV close failed: %w", err))
	}
	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("JSON close failed: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}
	return nil
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("CSV validation failed: %w", err))
	}
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("JSON validation failed: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}

// Create opens the writer for format ("csv", "json" or "dual"). In dual mode
// the JSON lines file sits next to filename with a .jsonl extension.
func Create(format, filename string, bom bool) (OutputWriter, error) {
	switch format {
	case "json":
		return CreateJSONFile(filename)
	case "csv":
		return CreateCSVFile(filename, bom)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jsonl"
		return CreateDualFiles(filename, jsonFilename, bom)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteBatches writes reviews in chunks of batchSize.
func WriteBatches(w OutputWriter, reviews []models.Review, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(reviews)
	}
	for start := 0; start < len(reviews); start += batchSize {
		end := min(start+batchSize, len(reviews))
		if err := w.Write(reviews[start:end]); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
	}
	return nil
}

func createFile(filename string) (*os.File, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filename, err)
	}
	return f, nil
}

func validateFile(f *os.File, kind string) error {
	if f == nil {
		return nil
	}
	info, err := os.Stat(f.Name())
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
