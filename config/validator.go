package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidObjectStoreBackends returns the accepted objectstore.backend values
func ValidObjectStoreBackends() []string {
	return []string{"", "minio", "s3"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	for field, value := range map[string]string{
		"paths.communities_dir": c.Paths.CommunitiesDir,
		"paths.csv_dir":         c.Paths.CSVDir,
		"paths.library_dir":     c.Paths.LibraryDir,
	} {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, ValidationError{Field: field, Value: value, Message: "must not be empty"})
		}
	}

	if c.Workers < 1 {
		errs = append(errs, ValidationError{Field: "workers", Value: c.Workers, Message: "must be at least 1"})
	}
	if c.Selection.Headroom < 0 {
		errs = append(errs, ValidationError{Field: "selection.headroom", Value: c.Selection.Headroom, Message: "must be non-negative"})
	}
	if c.Analysis.ExpectedRows < 0 {
		errs = append(errs, ValidationError{Field: "analysis.expected_rows", Value: c.Analysis.ExpectedRows, Message: "must be non-negative"})
	}

	errs = append(errs, c.validateConverter()...)
	errs = append(errs, c.validateObjectStore()...)

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, ValidationError{Field: "kafka.topic", Value: c.Kafka.Topic, Message: "required when kafka.brokers is set"})
	}

	return errs
}

func (c *Config) validateConverter() ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(c.Converter.Binary) == "" {
		errs = append(errs, ValidationError{Field: "converter.binary", Value: c.Converter.Binary, Message: "must not be empty"})
	}
	if !strings.Contains(c.Converter.Args, "{input}") {
		errs = append(errs, ValidationError{Field: "converter.args", Value: c.Converter.Args, Message: "must reference {input}"})
	}
	if c.Converter.Timeout <= 0 {
		errs = append(errs, ValidationError{Field: "converter.timeout", Value: c.Converter.Timeout, Message: "must be positive"})
	}

	return errs
}

func (c *Config) validateObjectStore() ValidationErrors {
	var errs ValidationErrors
	store := c.ObjectStore

	valid := false
	for _, b := range ValidObjectStoreBackends() {
		if store.Backend == b {
			valid = true
		}
	}
	if !valid {
		errs = append(errs, ValidationError{
			Field:   "objectstore.backend",
			Value:   store.Backend,
			Message: "must be one of: minio, s3 (or empty to disable)",
		})
	}
	if store.Backend == "minio" && store.Endpoint == "" {
		errs = append(errs, ValidationError{Field: "objectstore.endpoint", Value: store.Endpoint, Message: "required for minio"})
	}
	// minio-go expects host:port without a scheme
	if strings.Contains(store.Endpoint, "://") {
		errs = append(errs, ValidationError{Field: "objectstore.endpoint", Value: store.Endpoint, Message: "must not include a scheme"})
	}
	if store.Backend != "" && store.Bucket == "" {
		errs = append(errs, ValidationError{Field: "objectstore.bucket", Value: store.Bucket, Message: "must not be empty"})
	}

	return errs
}
