// Package httpapi exposes the engine over HTTP: a blocking chat endpoint, an
// SSE stream of engine events, conversation history and deletion, plus
// health and Prometheus endpoints.
package httpapi
