// Package bedrock streams answers from a Bedrock knowledge base through
// RetrieveAndGenerateStream and translates the event stream into domain chunks.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"github.com/aws/smithy-go"

	"museum-chatbot/internal/domain"
)

const (
	DefaultModelARN        = "global.amazon.nova-2-lite-v1:0"
	DefaultNumberOfResults = 5
	maxNumberOfResults     = 100
	chunkBuffer            = 16
)

// streamAPI is the subset of *bedrockagentruntime.Client used here.
type streamAPI interface {
	RetrieveAndGenerateStream(ctx context.Context, in *bedrockagentruntime.RetrieveAndGenerateStreamInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateStreamOutput, error)
}

// eventReader is satisfied by *bedrockagentruntime.RetrieveAndGenerateStreamEventStream.
type eventReader interface {
	Events() <-chan types.RetrieveAndGenerateStreamResponseOutput
	Close() error
	Err() error
}

// UpstreamError carries the classified category of a backend failure.
type UpstreamError struct {
	Category domain.UpstreamCategory
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("bedrock: %s: %v", e.Category, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) UpstreamCategory() domain.UpstreamCategory {
	return e.Category
}

// Client is the generation gateway for one knowledge base.
type Client struct {
	open            func(ctx context.Context, in *bedrockagentruntime.RetrieveAndGenerateStreamInput) (string, eventReader, error)
	knowledgeBaseID string
	modelARN        string
}

// NewClient creates a Client for the given knowledge base. An empty modelARN
// selects DefaultModelARN.
func NewClient(api streamAPI, knowledgeBaseID, modelARN string) (*Client, error) {
	if api == nil {
		return nil, errors.New("bedrock: api must not be nil")
	}
	knowledgeBaseID = strings.TrimSpace(knowledgeBaseID)
	if knowledgeBaseID == "" {
		return nil, errors.New("bedrock: knowledge base id must not be empty")
	}
	if modelARN = strings.TrimSpace(modelARN); modelARN == "" {
		modelARN = DefaultModelARN
	}
	c := &Client{knowledgeBaseID: knowledgeBaseID, modelARN: modelARN}
	c.open = func(ctx context.Context, in *bedrockagentruntime.RetrieveAndGenerateStreamInput) (string, eventReader, error) {
		out, err := api.RetrieveAndGenerateStream(ctx, in)
		if err != nil {
			return "", nil, err
		}
		return aws.ToString(out.SessionId), out.GetStream(), nil
	}
	return c, nil
}

func (c *Client) KnowledgeBaseID() string { return c.knowledgeBaseID }

func (c *Client) ModelID() string { return c.modelARN }

// Invoke starts one backend call and returns its chunks in emission order.
// Failures are delivered as ThrottledChunk, SessionInvalidChunk or FatalChunk
// values; the channel is closed at end of stream. A fresh call is needed to retry.
func (c *Client) Invoke(ctx context.Context, req domain.GenerationRequest) <-chan domain.Chunk {
	out := make(chan domain.Chunk, chunkBuffer)
	go func() {
		defer close(out)
		send := func(ch domain.Chunk) bool {
			select {
			case out <- ch:
				return true
			case <-ctx.Done():
				return false
			}
		}

		sessionID, stream, err := c.open(ctx, c.buildInput(req))
		if err != nil {
			send(classify(err, req.SessionID != ""))
			return
		}
		defer func() { _ = stream.Close() }()

		if sessionID != "" && !send(domain.SessionChunk{SessionID: sessionID}) {
			return
		}
		for ev := range stream.Events() {
			ch, ok := translate(ev)
			if !ok {
				continue
			}
			if !send(ch) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			send(classify(err, req.SessionID != ""))
		}
	}()
	return out
}

func (c *Client) buildInput(req domain.GenerationRequest) *bedrockagentruntime.RetrieveAndGenerateStreamInput {
	n := req.NumberOfResults
	if n <= 0 {
		n = DefaultNumberOfResults
	}
	if n > maxNumberOfResults {
		n = maxNumberOfResults
	}
	in := &bedrockagentruntime.RetrieveAndGenerateStreamInput{
		Input: &types.RetrieveAndGenerateInput{Text: aws.String(req.Query)},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type: types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(c.knowledgeBaseID),
				ModelArn:        aws.String(c.modelARN),
				RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
					VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
						NumberOfResults: aws.Int32(int32(n)),
					},
				},
			},
		},
	}
	if req.SessionID != "" {
		in.SessionId = aws.String(req.SessionID)
	}
	return in
}

func translate(ev types.RetrieveAndGenerateStreamResponseOutput) (domain.Chunk, bool) {
	switch v := ev.(type) {
	case *types.RetrieveAndGenerateStreamResponseOutputMemberOutput:
		if v.Value.Text == nil || *v.Value.Text == "" {
			return nil, false
		}
		return domain.TextChunk{Text: *v.Value.Text}, true
	case *types.RetrieveAndGenerateStreamResponseOutputMemberCitation:
		refs := v.Value.RetrievedReferences
		if len(refs) == 0 && v.Value.Citation != nil {
			refs = v.Value.Citation.RetrievedReferences
		}
		out := make([]domain.Reference, 0, len(refs))
		for _, r := range refs {
			out = append(out, toReference(r))
		}
		return domain.CitationChunk{References: out}, true
	case *types.RetrieveAndGenerateStreamResponseOutputMemberGuardrail:
		if v.Value.Action == "" {
			return nil, false
		}
		return domain.GuardrailChunk{Action: string(v.Value.Action)}, true
	default:
		return nil, false
	}
}

func toReference(r types.RetrievedReference) domain.Reference {
	var ref domain.Reference
	if r.Content != nil {
		ref.Text = aws.ToString(r.Content.Text)
	}
	if r.Location != nil {
		ref.LocationType = string(r.Location.Type)
		switch r.Location.Type {
		case types.RetrievalResultLocationTypeS3:
			if r.Location.S3Location != nil {
				ref.Location = aws.ToString(r.Location.S3Location.Uri)
			}
		case types.RetrievalResultLocationTypeWeb:
			if r.Location.WebLocation != nil {
				ref.Location = aws.ToString(r.Location.WebLocation.Url)
			}
		}
	}
	if len(r.Metadata) > 0 {
		ref.Metadata = make(map[string]any, len(r.Metadata))
		for k, doc := range r.Metadata {
			if doc == nil {
				continue
			}
			var v any
			if err := doc.UnmarshalSmithyDocument(&v); err == nil {
				ref.Metadata[k] = v
			}
		}
	}
	return ref
}

// classify maps a backend error onto the chunk the relay reacts to.
// A rejected continuation token only counts as such when one was sent.
func classify(err error, hadSession bool) domain.Chunk {
	category := Categorize(err)
	wrapped := &UpstreamError{Category: category, Err: err}
	switch {
	case category == domain.UpstreamThrottling:
		return domain.ThrottledChunk{Err: wrapped}
	case hadSession && isSessionError(category, err):
		return domain.SessionInvalidChunk{Err: wrapped}
	default:
		return domain.FatalChunk{Err: wrapped}
	}
}

func isSessionError(category domain.UpstreamCategory, err error) bool {
	if category != domain.UpstreamValidation && category != domain.UpstreamNotFound {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "session")
}

// Categorize returns the category of a Bedrock API error.
func Categorize(err error) domain.UpstreamCategory {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return domain.UpstreamUnknown
	}
	switch apiErr.ErrorCode() {
	case "ValidationException":
		return domain.UpstreamValidation
	case "ResourceNotFoundException":
		return domain.UpstreamNotFound
	case "ThrottlingException":
		return domain.UpstreamThrottling
	case "AccessDeniedException":
		return domain.UpstreamAccessDenied
	case "ConflictException":
		return domain.UpstreamConflict
	case "DependencyFailedException":
		return domain.UpstreamDependencyFailed
	case "ServiceQuotaExceededException":
		return domain.UpstreamQuotaExceeded
	case "BadGatewayException":
		return domain.UpstreamBadGateway
	case "InternalServerException":
		return domain.UpstreamInternal
	default:
		return domain.UpstreamUnknown
	}
}
