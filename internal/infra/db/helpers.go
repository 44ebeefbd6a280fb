package db

import (
	"errors"

	"gorm.io/gorm"
)

// notFound maps gorm's record-not-found onto the domain sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
