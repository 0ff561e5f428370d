package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileFormat selects how FileExporter encodes its output
type FileFormat string

const (
	FileFormatJSON FileFormat = "json"
	FileFormatYAML FileFormat = "yaml"
)

// FormatForPath picks YAML for .yaml and .yml paths and JSON otherwise
func FormatForPath(path string) FileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FileFormatYAML
	default:
		return FileFormatJSON
	}
}

// FileExporter writes the aggregate to a file, a writer, or both
type FileExporter struct {
	writer       io.Writer
	writerFormat FileFormat
	path         string
	labels       map[string]string
	startTime    time.Time
	now          func() time.Time
}

// FileOption is a functional option for FileExporter
type FileOption func(*FileExporter)

// WithFileWriter also writes every export to w in the given format
func WithFileWriter(w io.Writer, format FileFormat) FileOption {
	return func(f *FileExporter) {
		f.writer = w
		f.writerFormat = format
	}
}

// WithFilePath replaces path on every export, formatted by its extension
func WithFilePath(path string) FileOption {
	return func(f *FileExporter) {
		f.path = path
	}
}

// WithFileLabels records labels, such as the target URL, in the metadata
func WithFileLabels(labels map[string]string) FileOption {
	return func(f *FileExporter) {
		f.labels = labels
	}
}

func NewFileExporter(opts ...FileOption) *FileExporter {
	f := &FileExporter{
		startTime:    time.Now(),
		now:          time.Now,
		writerFormat: FileFormatJSON,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FileOutput is what FileExporter writes
type FileOutput struct {
	Metadata FileMetadata      `json:"metadata" yaml:"metadata"`
	Summary  *AggregateMetrics `json:"summary" yaml:"summary"`
}

type FileMetadata struct {
	GeneratedAt string            `json:"generated_at" yaml:"generated_at"`
	StartTime   string            `json:"start_time" yaml:"start_time"`
	Duration    string            `json:"duration" yaml:"duration"`
	Labels      map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

func (f *FileExporter) Export(metrics *AggregateMetrics) error {
	end := f.now()
	out := FileOutput{
		Metadata: FileMetadata{
			GeneratedAt: end.Format(time.RFC3339),
			StartTime:   f.startTime.Format(time.RFC3339),
			Duration:    end.Sub(f.startTime).String(),
			Labels:      f.labels,
		},
		Summary: metrics,
	}

	if f.path != "" {
		data, err := encode(out, FormatForPath(f.path))
		if err != nil {
			return err
		}
		if err := writeFileAtomic(f.path, data); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}

	if f.writer != nil {
		data, err := encode(out, f.writerFormat)
		if err != nil {
			return err
		}
		if _, err := f.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	return nil
}

func (f *FileExporter) Close() error {
	return nil
}

func encode(out FileOutput, format FileFormat) ([]byte, error) {
	var data []byte
	var err error
	if format == FileFormatYAML {
		data, err = yaml.Marshal(out)
	} else {
		data, err = json.MarshalIndent(out, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return data, nil
}

// writeFileAtomic keeps readers from seeing a half-written file
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
