// Package ocrapi is an HTTP client for the OCR service. It submits PDF jobs,
// reports service health and implements poller.StatusSource on top of the
// task status endpoint.
//
// Every failure, whether the network, a timeout, a non-2xx response, a body
// that does not match the status schema or a snapshot that breaks a task
// invariant, is returned as a *task.TransportError whose Message is suitable
// for display. For non-2xx responses the message is the server's "detail"
// field when one is present.
package ocrapi
