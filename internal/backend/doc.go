// Package backend is the typed client for the Usagedeck backend API.
//
// It speaks JSON over HTTP and reports backend failures as *APIError values
// carrying the HTTP status and the backend's message. Authorisation is not
// handled here; the injected http.Client is expected to carry the gateway
// transport.
package backend
