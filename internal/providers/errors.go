package providers

import "fmt"

// ProviderError wraps a vendor API failure. StatusCode is the upstream
// HTTP status; Code is the vendor's error code when one was returned.
type ProviderError struct {
	Vendor     string
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s provider error (status %d, code %s): %s", e.Vendor, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s provider error (status %d): %s", e.Vendor, e.StatusCode, e.Message)
}

// ConfigurationError means the adapter cannot be used as configured,
// typically a missing credential or endpoint. Detected before any vendor
// call is made.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("provider configuration error: %s", e.Reason)
}

// CapabilityError means the requested operation is not supported by the
// target model or adapter.
type CapabilityError struct {
	Vendor    string
	Operation string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Vendor, e.Operation)
}

// PollTimeoutError means an async task did not finish within the polling
// window. Distinct from an upstream failure: the task may still complete.
type PollTimeoutError struct {
	Vendor   string
	TaskID   string
	Attempts int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("%s task %s did not complete after %d polls", e.Vendor, e.TaskID, e.Attempts)
}
