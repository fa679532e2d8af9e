package dom

import "fmt"

// DOMError represents a DOM exception with a name and message.
type DOMError struct {
	Name    string
	Message string
}

func (e *DOMError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// ErrHierarchyRequest creates a HierarchyRequestError.
func ErrHierarchyRequest(message string) *DOMError {
	return &DOMError{Name: "HierarchyRequestError", Message: message}
}

// ErrNotFound creates a NotFoundError.
func ErrNotFound(message string) *DOMError {
	return &DOMError{Name: "NotFoundError", Message: message}
}

// ErrWrongContext creates a WrongDocumentError for nodes of another context.
func ErrWrongContext(message string) *DOMError {
	return &DOMError{Name: "WrongDocumentError", Message: message}
}
