package models

import (
	"encoding/json"
	"fmt"

	apperrors "smssim/pkg/errors"
)

// WorkItem is one simulated outbound SMS. Items carry no identity beyond
// their queue position.
type WorkItem struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

func (w WorkItem) Validate() error {
	if !IsPhoneNumber(w.PhoneNumber) {
		return apperrors.ErrDecode.WithDetail("message", fmt.Sprintf("invalid phone_number %q", w.PhoneNumber))
	}
	return nil
}

// Encode produces the flat JSON object carried on the wire.
func (w WorkItem) Encode() ([]byte, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode work item: %w", err)
	}
	return data, nil
}

// DecodeWorkItem parses a queue payload. Any failure is reported as
// ErrDecode so callers can treat it as a per-item failure.
func DecodeWorkItem(data []byte) (WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(data, &item); err != nil {
		return WorkItem{}, apperrors.ErrDecode.WithCause(err)
	}
	if err := item.Validate(); err != nil {
		return WorkItem{}, err
	}
	return item, nil
}

// IsPhoneNumber reports whether s is a '+' followed by at least one decimal
// digit and nothing else.
func IsPhoneNumber(s string) bool {
	if len(s) < 2 || s[0] != '+' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
