package registry

import "fmt"

// Kind is the business category of a downstream backend instance.
// It is a closed set: routing switches over kinds exhaustively, and adding a
// new kind means extending AllKinds and the routing table together.
type Kind string

// The supported backend kinds.
const (
	// KindChat serves chat/completion style requests.
	KindChat Kind = "chat"

	// KindWhisper serves speech-to-text requests (transcription, translation).
	KindWhisper Kind = "whisper"

	// KindImage serves text-to-image requests.
	KindImage Kind = "image"

	// KindTTS serves text-to-speech requests.
	KindTTS Kind = "tts"

	// KindRAGChat serves retrieval-augmented chat requests. Used instead of
	// KindChat when the gateway runs in RAG mode.
	KindRAGChat Kind = "rag-chat"

	// KindRAGEmbedding serves embedding requests against a retrieval-capable
	// backend. Used instead of KindChat for embeddings in RAG mode.
	KindRAGEmbedding Kind = "rag-embedding"
)

// AllKinds lists every supported kind in a stable order.
// ListAll and the admin surface iterate this so that kinds with no
// registered instances still appear with empty collections.
func AllKinds() []Kind {
	return []Kind{KindChat, KindWhisper, KindImage, KindTTS, KindRAGChat, KindRAGEmbedding}
}

// ParseKind converts a wire-level string into a Kind.
// It returns an UnknownKindError for anything outside the closed set.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindChat, KindWhisper, KindImage, KindTTS, KindRAGChat, KindRAGEmbedding:
		return Kind(s), nil
	default:
		return "", &UnknownKindError{Value: s}
	}
}

// String returns the wire representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether the kind belongs to the closed set.
func (k Kind) Valid() bool {
	_, err := ParseKind(string(k))
	return err == nil
}

func (k Kind) instanceID(suffix string) string {
	return fmt.Sprintf("%s-server-%s", k, suffix)
}
