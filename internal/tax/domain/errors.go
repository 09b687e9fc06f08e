package domain

import "errors"

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidTaxRate      = errors.New("invalid_tax_rate")
	ErrNotFound            = errors.New("not_found")

	// ErrUnknownTaxRate means a line item referenced a tax-rate id absent
	// from the registry snapshot. Silently skipping it would understate tax
	// owed, so the whole computation fails.
	ErrUnknownTaxRate = errors.New("unknown_tax_rate")
)
