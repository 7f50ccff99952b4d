package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"

	"museum-chatbot/internal/domain"
)

func TestCitationPolicy_Apply(t *testing.T) {
	policy := CitationPolicy{PublicPrefix: "public/", Region: "eu-west-1"}
	refs := []domain.Reference{
		{LocationType: "S3", Location: "s3://museum-docs/public/halls/Room 3.pdf", Text: "Room three", Metadata: map[string]any{"page": 2.0}},
		{LocationType: "S3", Location: "s3://museum-docs/internal/staff.pdf", Text: "secret"},
		{LocationType: "WEB", Location: "https://museum.example/visit", Text: "Visit"},
		{LocationType: "S3", Location: "https://not-an-s3-uri/public/x"},
		{LocationType: "S3", Location: "s3://bucket-only"},
		{LocationType: "WEB", Location: "  "},
		{LocationType: "CONFLUENCE", Location: "https://wiki.example/page"},
	}

	got := policy.Apply(refs)

	require.Equal(t, []domain.Citation{
		{Type: "S3", URL: "https://museum-docs.s3.eu-west-1.amazonaws.com/public/halls/Room%203.pdf", Snippet: "Room three", Metadata: map[string]any{"page": 2.0}},
		{Type: "WEB", URL: "https://museum.example/visit", Snippet: "Visit"},
	}, got)
}

func TestCitationPolicy_EmptyPrefixDropsStorage(t *testing.T) {
	policy := CitationPolicy{}
	got := policy.Apply([]domain.Reference{
		{LocationType: "S3", Location: "s3://museum-docs/public/a.pdf"},
		{LocationType: "web", Location: "https://museum.example"},
	})
	require.Len(t, got, 1)
	require.Equal(t, "https://museum.example", got[0].URL)
}

func TestCitationPolicy_NoRegion(t *testing.T) {
	policy := CitationPolicy{PublicPrefix: "public/"}
	got := policy.Apply([]domain.Reference{{LocationType: "S3", Location: "s3://b/public/a.pdf"}})
	require.Equal(t, "https://b.s3.amazonaws.com/public/a.pdf", got[0].URL)
}

func TestCitationPolicy_EmptyInput(t *testing.T) {
	require.Empty(t, CitationPolicy{PublicPrefix: "public/"}.Apply(nil))
}
