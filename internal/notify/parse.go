package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// PermanentError marks a send that will fail the same way if retried, such
// as an invalid recipient.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

func permanent(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

type gatewayResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ParseGatewayResponse extracts the provider message id from a gateway reply.
// The gateway may answer 2xx with status "rejected", which is treated as a
// failure.
func ParseGatewayResponse(statusCode int, body []byte) (string, error) {
	var parsed gatewayResponse
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			if statusCode >= 400 {
				return "", fmt.Errorf("notification gateway failed with status %d", statusCode)
			}
			return "", fmt.Errorf("unable to parse gateway response: %w", err)
		}
	}

	if statusCode >= 400 {
		msg := fmt.Sprintf("status %d", statusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		if statusCode < 500 && statusCode != http.StatusTooManyRequests && statusCode != http.StatusUnauthorized {
			return "", permanent("notification gateway rejected message: %s", msg)
		}
		return "", fmt.Errorf("notification gateway failed: %s", msg)
	}

	if strings.EqualFold(parsed.Status, "rejected") || strings.EqualFold(parsed.Status, "failed") {
		reason := parsed.Status
		if parsed.Error != nil && parsed.Error.Message != "" {
			reason = parsed.Error.Message
		}
		return "", permanent("notification rejected: %s", reason)
	}

	id := strings.TrimSpace(parsed.ID)
	if id == "" {
		return "", fmt.Errorf("notification gateway returned no message id")
	}
	return id, nil
}
