package uimodel

import "errors"

// Domain errors for the uimodel package.
var (
	// ErrEmptyDump is returned when parsing an empty or whitespace-only
	// hierarchy string.
	ErrEmptyDump = errors.New("uimodel: empty hierarchy dump")

	// ErrMalformedXML is returned when the hierarchy cannot be parsed as XML.
	ErrMalformedXML = errors.New("uimodel: malformed hierarchy xml")
)
