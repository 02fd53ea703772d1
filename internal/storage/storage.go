package storage

import "errors"

const (
	UniqueViolation = "23505"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductTracked  = errors.New("product is already tracked")
	ErrAlertNotFound   = errors.New("alert not found")
)
