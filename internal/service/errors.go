package service

import (
	"fmt"
	"strings"
)

// ErrorKind classifies why an invoice lifecycle operation was refused or
// failed. Validation kinds are reported per item and never leave partial
// state behind; StoreFailure means persistence broke mid-flight.
type ErrorKind string

const (
	KindValidationFailed  ErrorKind = "ValidationFailed"
	KindProductNotFound   ErrorKind = "ProductNotFound"
	KindBatchNotFound     ErrorKind = "BatchNotFound"
	KindBatchExpired      ErrorKind = "BatchExpired"
	KindInsufficientStock ErrorKind = "InsufficientStock"
	KindInvoiceNotFound   ErrorKind = "InvoiceNotFound"
	KindCannotDelete      ErrorKind = "CannotDelete"
	KindStoreFailure      ErrorKind = "StoreFailure"
)

// ItemError is one validation finding tied to a specific invoice item.
// Available and Requested are only meaningful for InsufficientStock.
type ItemError struct {
	Index       int       `json:"index"`
	ProductID   string    `json:"productId,omitempty"`
	ProductName string    `json:"productName,omitempty"`
	BatchNumber string    `json:"batchNumber,omitempty"`
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Available   int       `json:"available,omitempty"`
	Requested   int       `json:"requested,omitempty"`
}

// LifecycleError carries the complete set of findings for a refused
// operation. Validation runs over every item before the first finding is
// returned, so Items holds all problems at once.
type LifecycleError struct {
	Kind    ErrorKind   `json:"kind"`
	Message string      `json:"message"`
	Items   []ItemError `json:"items,omitempty"`

	// Fatal marks an inconsistency the caller cannot retry away, such as
	// a failed compensation after a partial stock deduction.
	Fatal bool `json:"-"`
}

func (e *LifecycleError) Error() string {
	if len(e.Items) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, item.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(parts, "; "))
}

func newLifecycleError(kind ErrorKind, message string) *LifecycleError {
	return &LifecycleError{Kind: kind, Message: message}
}

// dominantKind picks the overall kind for a batch of item findings. A mix
// of kinds collapses to ValidationFailed so the caller still sees every
// item-level detail.
func dominantKind(items []ItemError) ErrorKind {
	if len(items) == 0 {
		return KindValidationFailed
	}
	kind := items[0].Kind
	for _, item := range items[1:] {
		if item.Kind != kind {
			return KindValidationFailed
		}
	}
	return kind
}

func newItemsError(items []ItemError, message string) *LifecycleError {
	return &LifecycleError{Kind: dominantKind(items), Message: message, Items: items}
}
