package assertions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/requester/packages/http"
	"github.com/xeipuuv/gojsonschema"
)

// ErrNoBody is returned when a schema is validated against a capture
// without a body
var ErrNoBody = errors.New("response has no body")

// SchemaResult holds the outcome of validating a response body
type SchemaResult struct {
	Valid  bool
	Errors []string
}

// ValidateSchema validates the captured body against a JSON schema document.
// A body that is not valid JSON is reported as an error, a body that does not
// satisfy the schema yields a result with Valid set to false.
func ValidateSchema(c *http.Capture, schema []byte) (*SchemaResult, error) {
	if c == nil || len(c.Body) == 0 {
		return nil, ErrNoBody
	}
	if !json.Valid(c.Body) {
		return nil, &http.DecodeError{Format: "json", Err: errors.New("response body is not JSON")}
	}
	return validate(schema, c.Body)
}

// ValidateSchemaFile reads the schema from path and validates the body against it
func ValidateSchemaFile(c *http.Capture, path string) (*SchemaResult, error) {
	schema, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ValidateSchema(c, schema)
}

func validate(schema, document []byte) (*SchemaResult, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(document),
	)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}

	out := &SchemaResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, desc.String())
	}
	return out, nil
}

// validatePathWithinBase ensures that the resolved path is within the base directory.
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}

	return nil
}

func (e *Evaluator) schema(actual, expected any) (bool, string) {
	schemaPath := fmt.Sprintf("%v", expected)
	if !filepath.IsAbs(schemaPath) && e.baseDir != "" {
		schemaPath = filepath.Join(e.baseDir, schemaPath)
	}

	if err := validatePathWithinBase(schemaPath, e.baseDir); err != nil {
		return false, err.Error()
	}

	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		return false, fmt.Sprintf("failed to read schema file: %v", err)
	}

	actualJSON, err := json.Marshal(actual)
	if err != nil {
		return false, fmt.Sprintf("failed to marshal actual value: %v", err)
	}

	result, err := validate(schemaData, actualJSON)
	if err != nil {
		return false, err.Error()
	}
	if result.Valid {
		return true, ""
	}
	return false, fmt.Sprintf("schema validation failed: %s", strings.Join(result.Errors, "; "))
}
