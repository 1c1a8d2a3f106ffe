package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownDataType = errors.New("unknown data type")
	ErrExportDisabled  = errors.New("export disabled: no write token configured")
)
