// Nexus is an OpenAI-compatible request gateway for heterogeneous inference
// backends.
//
// It keeps a live registry of backend instances grouped by kind (chat,
// whisper, image, tts, rag-chat, rag-embedding), health-checks them in the
// background, and dispatches each /v1/* request to a healthy instance with
// least-loaded round-robin selection, SSE-aware streaming, and failover
// retries.
//
// Usage:
//
//	# Start with default configuration
//	nexus run
//
//	# Start with a config file
//	nexus run --config /etc/nexus/nexus.yaml
//
//	# Route chat and embeddings to RAG backends
//	nexus run --rag
//
//	# Check a config file without starting
//	nexus validate --config nexus.yaml
//
//	# Show version information
//	nexus version
package main

func main() {
	Execute()
}
