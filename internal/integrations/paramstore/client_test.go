package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves pages in order and records every input.
type fakeAPI struct {
	pages  []*ssm.GetParametersByPathOutput
	err    error
	inputs []*ssm.GetParametersByPathInput
}

func (f *fakeAPI) GetParametersByPath(_ context.Context, in *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.inputs) - 1
	if idx >= len(f.pages) {
		return &ssm.GetParametersByPathOutput{}, nil
	}
	return f.pages[idx], nil
}

func strPtr(s string) *string { return &s }

func param(name, value string) types.Parameter {
	return types.Parameter{Name: strPtr(name), Value: strPtr(value)}
}

func TestLoadPath_HappyPath(t *testing.T) {
	api := &fakeAPI{pages: []*ssm.GetParametersByPathOutput{
		{Parameters: []types.Parameter{param("/museum-chat/knowledge_base_id", "KB123")}, NextToken: strPtr("next")},
		{Parameters: []types.Parameter{param("/museum-chat/model_arn", "arn:model"), {Name: strPtr("/museum-chat/empty")}}},
	}}
	client, err := New(api)
	require.NoError(t, err)

	got, err := client.LoadPath(context.Background(), "/museum-chat/")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"knowledge_base_id": "KB123", "model_arn": "arn:model"}, got)
	require.Len(t, api.inputs, 2)
	require.Equal(t, "/museum-chat", *api.inputs[0].Path)
	require.True(t, *api.inputs[0].WithDecryption)
	require.Equal(t, "next", *api.inputs[1].NextToken)
}

func TestLoadPath_ApiError(t *testing.T) {
	client, err := New(&fakeAPI{err: errors.New("boom")})
	require.NoError(t, err)
	_, err = client.LoadPath(context.Background(), "/museum-chat")
	require.Error(t, err)
	require.ErrorContains(t, err, "boom")
}

func TestLoadPath_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).LoadPath(context.Background(), "/p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestLoadPath_EmptyPath(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)
	_, err = client.LoadPath(context.Background(), " / ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestSettings(t *testing.T) {
	s := Settings{"model_arn": " arn ", "blank": "  "}
	require.Equal(t, "arn", s.String("model_arn", "def"))
	require.Equal(t, "def", s.String("blank", "def"))
	require.Equal(t, "def", s.String("missing", "def"))

	v, err := s.Require("model_arn")
	require.NoError(t, err)
	require.Equal(t, "arn", v)
	_, err = s.Require("missing")
	require.ErrorContains(t, err, "missing")
}
