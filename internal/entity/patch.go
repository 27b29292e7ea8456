package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrEmptyPatch = errors.New("patch contains no fields")

// PatchFieldError reports a patch key that cannot be applied.
type PatchFieldError struct {
	Field  string
	Reason string
}

func (e *PatchFieldError) Error() string {
	return fmt.Sprintf("field %q %s", e.Field, e.Reason)
}

// Patch lists the caller-mutable fields of an order. Nil means "not provided".
type Patch struct {
	Items      []Item
	CustomerID *string
	Status     *string
	Processed  *bool
}

// readOnlyFields are known order fields owned by the service.
var readOnlyFields = map[string]struct{}{
	"id":              {},
	"totalAmount":     {},
	"calculatedValue": {},
	"createdAt":       {},
	"updatedAt":       {},
	"processedAt":     {},
	"relatedOrderId":  {},
}

// ParsePatch decodes a JSON object into a Patch. Unknown and service-owned
// fields are rejected.
func ParsePatch(raw map[string]json.RawMessage) (Patch, error) {
	var patch Patch
	if len(raw) == 0 {
		return patch, ErrEmptyPatch
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := raw[key]
		switch key {
		case "items":
			if err := json.Unmarshal(value, &patch.Items); err != nil {
				return Patch{}, &PatchFieldError{Field: key, Reason: "is malformed"}
			}
			if err := ValidateItems(patch.Items); err != nil {
				return Patch{}, &PatchFieldError{Field: key, Reason: err.Error()}
			}
		case "customerId":
			var v string
			if err := json.Unmarshal(value, &v); err != nil || v == "" {
				return Patch{}, &PatchFieldError{Field: key, Reason: "must be a non-empty string"}
			}
			patch.CustomerID = &v
		case "status":
			var v string
			if err := json.Unmarshal(value, &v); err != nil || v == "" {
				return Patch{}, &PatchFieldError{Field: key, Reason: "must be a non-empty string"}
			}
			patch.Status = &v
		case "processed":
			var v bool
			if isNull(value) || json.Unmarshal(value, &v) != nil {
				return Patch{}, &PatchFieldError{Field: key, Reason: "must be a boolean"}
			}
			patch.Processed = &v
		default:
			if _, ok := readOnlyFields[key]; ok {
				return Patch{}, &PatchFieldError{Field: key, Reason: "is read-only"}
			}
			return Patch{}, &PatchFieldError{Field: key, Reason: "is unknown"}
		}
	}
	return patch, nil
}

// isNull reports a JSON null, which json.Unmarshal accepts into any type
// without touching the target.
func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

// Empty reports whether the patch carries no fields.
func (p Patch) Empty() bool {
	return p.Items == nil && p.CustomerID == nil && p.Status == nil && p.Processed == nil
}

// Validate checks a patch built in code rather than parsed from JSON.
func (p Patch) Validate() error {
	if p.Empty() {
		return ErrEmptyPatch
	}
	if p.Items != nil {
		if err := ValidateItems(p.Items); err != nil {
			return &PatchFieldError{Field: "items", Reason: err.Error()}
		}
	}
	if p.CustomerID != nil && *p.CustomerID == "" {
		return &PatchFieldError{Field: "customerId", Reason: "must be a non-empty string"}
	}
	if p.Status != nil && *p.Status == "" {
		return &PatchFieldError{Field: "status", Reason: "must be a non-empty string"}
	}
	return nil
}

// Apply merges the provided fields into o and stamps updatedAt.
func (p Patch) Apply(o *Order, now time.Time) {
	if p.Items != nil {
		o.Items = make([]Item, len(p.Items))
		copy(o.Items, p.Items)
	}
	if p.CustomerID != nil {
		o.CustomerID = *p.CustomerID
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.Processed != nil {
		o.Processed = *p.Processed
	}
	o.UpdatedAt = &now
}
