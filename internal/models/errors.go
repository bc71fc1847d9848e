package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound        = errors.New("resource not found") // General not found
	ErrPlotNotFound    = errors.New("plot not found")
	ErrVersionNotFound = errors.New("version not found")
	ErrProjectNotFound = errors.New("project state not found")

	// Patch / Input Errors
	ErrUnknownPatchAction = errors.New("no such patch action")
	ErrInvalidInput       = errors.New("invalid input data")
	ErrInvalidWorkflow    = errors.New("workflow payload is structurally invalid")

	// Version Chain Errors
	ErrVersionConflict = errors.New("version chain conflict, retry snapshot") // sibling version raced on the same base
	ErrBrokenChain     = errors.New("version chain is broken")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
)
