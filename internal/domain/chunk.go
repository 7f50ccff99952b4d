package domain

// Chunk is one element of a generation stream. The set of implementations is
// closed; consumers switch over the concrete types below.
type Chunk interface {
	isChunk()
}

type TextChunk struct {
	Text string
}

type CitationChunk struct {
	References []Reference
}

type GuardrailChunk struct {
	Action string
}

type SessionChunk struct {
	SessionID string
}

// ThrottledChunk reports that the backend rejected the call for rate reasons.
type ThrottledChunk struct {
	Err error
}

// SessionInvalidChunk reports that the continuation token was not accepted.
type SessionInvalidChunk struct {
	Err error
}

type FatalChunk struct {
	Err error
}

func (TextChunk) isChunk()           {}
func (CitationChunk) isChunk()       {}
func (GuardrailChunk) isChunk()      {}
func (SessionChunk) isChunk()        {}
func (ThrottledChunk) isChunk()      {}
func (SessionInvalidChunk) isChunk() {}
func (FatalChunk) isChunk()          {}

// GenerationRequest is one call to the retrieval and generation backend.
type GenerationRequest struct {
	Query           string
	SessionID       string
	NumberOfResults int
}
