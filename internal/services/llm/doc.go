// Package llm provides an Ollama chat client for vision labeling.
//
// # Requests
//
// Chat sends a system message plus a user message carrying base64 encoded
// images to POST /api/chat with streaming disabled and temperature 0. A JSON
// schema may be supplied as the structured output format; the model's reply
// content is returned verbatim.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Chat: one request/response exchange.
// Client.HealthCheck: verify the server answers and the model is pulled.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors and network failures with
// exponential backoff, honouring Retry-After. Context cancellation aborts
// retries immediately. An optional token-bucket limiter caps request rate
// across all workers sharing a client.
package llm
