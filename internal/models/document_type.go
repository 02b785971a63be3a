package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// DocumentType identifies which register a document belongs to.
type DocumentType string

const (
	DocumentIncomingExternal DocumentType = "INCOMING_EXTERNAL"
	DocumentOutgoingExternal DocumentType = "OUTGOING_EXTERNAL"
	DocumentIncomingInternal DocumentType = "INCOMING_INTERNAL"
	DocumentOutgoingInternal DocumentType = "OUTGOING_INTERNAL"
	DocumentWorkPlan         DocumentType = "WORK_PLAN"
	DocumentSchedule         DocumentType = "SCHEDULE"
)

// ErrUnknownDocumentType is returned for any value outside the known set.
var ErrUnknownDocumentType = errors.New("unknown document type")

var documentTypes = []DocumentType{
	DocumentIncomingExternal,
	DocumentOutgoingExternal,
	DocumentIncomingInternal,
	DocumentOutgoingInternal,
	DocumentWorkPlan,
	DocumentSchedule,
}

// DocumentTypes returns every known document type.
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, len(documentTypes))
	copy(out, documentTypes)
	return out
}

// ParseDocumentType accepts the canonical names, case-insensitively.
func ParseDocumentType(s string) (DocumentType, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for _, t := range documentTypes {
		if string(t) == want {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDocumentType, s)
}

func (t DocumentType) String() string { return string(t) }

// Valid reports whether t is one of the known document types.
func (t DocumentType) Valid() bool {
	return slices.Contains(documentTypes, t)
}

func (t DocumentType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentType, string(t))
	}
	return json.Marshal(string(t))
}

func (t *DocumentType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("document type: %w", err)
	}
	parsed, err := ParseDocumentType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
