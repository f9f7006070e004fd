package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest marks requests rejected before any analysis runs.
var ErrInvalidRequest = errors.New("invalid analysis request")

var validate = validator.New()

// DecodeRequest parses and validates a JSON analysis request. Unknown fields
// are rejected so typos in option names do not silently fall back to defaults.
func DecodeRequest(data []byte) (AnalysisRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var req AnalysisRequest
	if err := dec.Decode(&req); err != nil {
		return AnalysisRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	req = normalizeRequest(req)
	if err := ValidateRequest(req); err != nil {
		return AnalysisRequest{}, err
	}
	return req, nil
}

// ParseRequest decodes a request message from the source topic. A missing
// request ID falls back to the request_id header, then the message key.
func ParseRequest(raw RawEvent) (AnalysisRequest, error) {
	req, err := DecodeRequest(raw.Value)
	if err != nil {
		return AnalysisRequest{}, fmt.Errorf("parse request: %w", err)
	}
	if req.RequestID == "" {
		req.RequestID = raw.Headers["request_id"]
	}
	if req.RequestID == "" {
		req.RequestID = string(raw.Key)
	}
	return req, nil
}

// ValidateRequest checks field constraints and wraps violations in ErrInvalidRequest.
func ValidateRequest(req AnalysisRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "excluded_with":
		return field + " cannot be combined with " + strings.ToLower(fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "uuid":
		return field + " must be a UUID"
	default:
		return fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param())
	}
}

func normalizeRequest(req AnalysisRequest) AnalysisRequest {
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Region = strings.TrimSpace(req.Region)
	req.Clip = strings.TrimSpace(req.Clip)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID != "" {
		req.KeepArtifacts = true
	}
	return req
}

// SerializeReport converts a SnowReport into an OutputEvent keyed by region so
// reports for one region stay ordered within a partition.
func SerializeReport(report SnowReport) (OutputEvent, error) {
	value, err := json.Marshal(report)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize report: %w", err)
	}

	headers := map[string]string{
		"region":       report.Region,
		"processed_at": report.ProcessedAt.UTC().Format(time.RFC3339),
	}
	if report.RequestID != "" {
		headers["request_id"] = report.RequestID
	}

	return OutputEvent{
		Key:     []byte(report.Region),
		Value:   value,
		Headers: headers,
	}, nil
}
