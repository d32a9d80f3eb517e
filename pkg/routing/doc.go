// Package routing maps inbound business requests to backend kinds.
//
// Resolution is a pure function of the HTTP method and path (plus, for chat,
// a shallow peek at the JSON body's "stream" flag, which callers perform with
// StreamRequested). The route table covers the OpenAI-compatible surface the
// gateway exposes; anything else resolves to a RouteNotFoundError.
//
// RAG mode is decided once at startup: with it enabled, chat-shaped traffic
// resolves to the rag-chat kind and embeddings to rag-embedding instead of
// plain chat. It is never a per-request decision.
package routing
