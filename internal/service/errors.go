package service

import "errors"

var (
	// ErrNotFound is returned when a requested book or report does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyBook is returned when analysis is requested for a book
	// with no chapters.
	ErrEmptyBook = errors.New("book has no chapters")
)
