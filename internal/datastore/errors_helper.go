package datastore

import (
	"gorm.io/gorm"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// IsRecordNotFound reports whether err means the queried row does not
// exist.
func IsRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// validationError creates a validation error with datastore context.
func validationError(operation, reason string) error {
	return errors.Newf("%s", reason).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("operation", operation).
		Build()
}

// databaseError wraps a database failure with datastore context.
func databaseError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
