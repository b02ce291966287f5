// Package fakeocr provides an in-process stand-in for the OCR service,
// built on chi and httptest. Tests script the replies of the status endpoint
// per task id and inspect what the client sent.
package fakeocr
