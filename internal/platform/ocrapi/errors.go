package ocrapi

import "errors"

// Common errors returned by the ocrapi package
var (
	// ErrInvalidConfig is returned by New when the client cannot be built
	// from the given settings.
	ErrInvalidConfig = errors.New("invalid ocr api configuration")

	// ErrNotPDF is returned by SubmitPDF for files without a .pdf extension.
	ErrNotPDF = errors.New("only PDF files can be submitted")

	// ErrNotImage is returned by OCRImage for files that are not a
	// supported image type.
	ErrNotImage = errors.New("only image files can be recognised")

	// ErrEmptyTaskID is returned when a task id argument is blank.
	ErrEmptyTaskID = errors.New("task id is empty")
)
