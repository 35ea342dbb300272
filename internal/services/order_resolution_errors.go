package services

import (
	"errors"
	"fmt"
)

// ErrOrderResolutionConfiguration indicates extractor credentials are missing.
var ErrOrderResolutionConfiguration = errors.New("order resolution: extractor not configured")

// ErrOrderResolutionUnavailable indicates the extractor could not be reached or refused the request.
var ErrOrderResolutionUnavailable = errors.New("order resolution: extractor unavailable")

// ErrOrderResolutionMalformed indicates the extractor answered with something other than the row schema.
var ErrOrderResolutionMalformed = errors.New("order resolution: malformed extractor response")

// ConfigurationError is returned before any network I/O when a required setting is blank.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	if e == nil || e.Setting == "" {
		return ErrOrderResolutionConfiguration.Error()
	}
	return fmt.Sprintf("%s: %s is not set", ErrOrderResolutionConfiguration.Error(), e.Setting)
}

// Is matches ErrOrderResolutionConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrOrderResolutionConfiguration
}

// ExtractorUnavailableError wraps transport and non-success failures from the extractor.
type ExtractorUnavailableError struct {
	Err error
}

func (e *ExtractorUnavailableError) Error() string {
	if e == nil || e.Err == nil {
		return ErrOrderResolutionUnavailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrOrderResolutionUnavailable.Error(), e.Err)
}

// Unwrap exposes the extractor failure.
func (e *ExtractorUnavailableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches ErrOrderResolutionUnavailable.
func (e *ExtractorUnavailableError) Is(target error) bool {
	return target == ErrOrderResolutionUnavailable
}

// ExtractorResponseMalformedError wraps decoding and schema failures.
type ExtractorResponseMalformedError struct {
	Err error
}

func (e *ExtractorResponseMalformedError) Error() string {
	if e == nil || e.Err == nil {
		return ErrOrderResolutionMalformed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrOrderResolutionMalformed.Error(), e.Err)
}

// Unwrap exposes the decoding failure.
func (e *ExtractorResponseMalformedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches ErrOrderResolutionMalformed.
func (e *ExtractorResponseMalformedError) Is(target error) bool {
	return target == ErrOrderResolutionMalformed
}
