// internal/agent/transcript.go
package agent

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// TranscriptFormat selects the export encoding.
type TranscriptFormat string

const (
	FormatYAML TranscriptFormat = "yaml"
	FormatJSON TranscriptFormat = "json"
)

// FormatForPath picks JSON for a .json extension and YAML otherwise.
func FormatForPath(path string) TranscriptFormat {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// EncodeTranscript writes the run result to w.
func EncodeTranscript(w io.Writer, result *RunResult, format TranscriptFormat) error {
	switch format {
	case FormatJSON:
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported transcript format: %q", format)
	}
}

// WriteTranscript exports the run result to path, creating or truncating it.
func WriteTranscript(path string, result *RunResult) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create transcript file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := EncodeTranscript(f, result, FormatForPath(path)); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
