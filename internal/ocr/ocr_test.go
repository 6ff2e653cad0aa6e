package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

type fakeImages map[string][]byte

func (f fakeImages) Get(ctx context.Context, ref string) ([]byte, error) {
	data, ok := f[ref]
	if !ok {
		return nil, fmt.Errorf("image %s: %w", ref, domain.ErrNotFound)
	}
	return data, nil
}

type fakeTextract struct {
	detect func(doc []byte) (*textract.DetectDocumentTextOutput, error)
	calls  atomic.Int32
}

func (f *fakeTextract) DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.calls.Add(1)
	return f.detect(in.Document.Bytes)
}

func lineBlocks(lines ...string) *textract.DetectDocumentTextOutput {
	out := &textract.DetectDocumentTextOutput{
		Blocks: []types.Block{{BlockType: types.BlockTypePage}},
	}
	for _, l := range lines {
		out.Blocks = append(out.Blocks,
			types.Block{BlockType: types.BlockTypeLine, Text: sdkaws.String(l), Confidence: sdkaws.Float32(90)},
			types.Block{BlockType: types.BlockTypeWord, Text: sdkaws.String(strings.Fields(l)[0]), Confidence: sdkaws.Float32(10)},
		)
	}
	return out
}

func echoTextract() *fakeTextract {
	return &fakeTextract{detect: func(doc []byte) (*textract.DetectDocumentTextOutput, error) {
		return lineBlocks(string(doc), "TOTAL 12.50"), nil
	}}
}

func TestExtract_AllSucceedInOrder(t *testing.T) {
	images := fakeImages{"a": []byte("TESCO A"), "b": []byte("TESCO B"), "c": []byte("TESCO C")}
	e := NewExtractor(echoTextract(), images, 2, zerolog.Nop())

	res, err := e.Extract(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalImages)
	require.Len(t, res.Results, 3)
	for i, want := range []string{"TESCO A", "TESCO B", "TESCO C"} {
		assert.Equal(t, domain.OCRStatusSuccess, res.Results[i].Status)
		require.Len(t, res.Results[i].Lines, 2)
		assert.Equal(t, want, res.Results[i].Lines[0].Text)
		assert.InDelta(t, 90.0, res.Results[i].Confidence, 0.001)
	}
}

func TestExtract_OneBadImageDoesNotAbortOthers(t *testing.T) {
	images := fakeImages{"a": []byte("TESCO A"), "c": []byte("TESCO C")}
	e := NewExtractor(echoTextract(), images, 4, zerolog.Nop())

	res, err := e.Extract(context.Background(), []string{"a", "missing", "c"})
	require.NoError(t, err)
	require.Len(t, res.Results, 3)

	failed := 0
	for _, r := range res.Results {
		if r.Failed() {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.True(t, res.Results[1].Failed())
	assert.Equal(t, "missing", res.Results[1].ImageURL)
	assert.NotEmpty(t, res.Results[1].Error)
	assert.Equal(t, []string{"TESCO A", "TOTAL 12.50", "TESCO C", "TOTAL 12.50"}, res.Text())
}

func TestExtract_AllFailReturnsMostSevereKind(t *testing.T) {
	client := &fakeTextract{detect: func(doc []byte) (*textract.DetectDocumentTextOutput, error) {
		if string(doc) == "denied" {
			return nil, &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"}
		}
		return nil, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
	}}
	images := fakeImages{"a": []byte("throttled"), "b": []byte("denied")}
	e := NewExtractor(client, images, 1, zerolog.Nop())

	res, err := e.Extract(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 0, res.Succeeded())
}

func TestExtract_NoImages(t *testing.T) {
	client := echoTextract()
	e := NewExtractor(client, fakeImages{}, 1, zerolog.Nop())

	res, err := e.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, res.TotalImages)
	assert.Equal(t, int32(0), client.calls.Load())
}

func TestExtract_BlankImageIsAnError(t *testing.T) {
	client := &fakeTextract{detect: func(doc []byte) (*textract.DetectDocumentTextOutput, error) {
		return &textract.DetectDocumentTextOutput{}, nil
	}}
	e := NewExtractor(client, fakeImages{"a": []byte("x")}, 1, zerolog.Nop())

	_, err := e.Extract(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"auth", &smithy.GenericAPIError{Code: "UnrecognizedClientException"}, domain.ErrAuth},
		{"bad document", &smithy.GenericAPIError{Code: "UnsupportedDocumentException"}, domain.ErrMalformedResponse},
		{"throttled", &smithy.GenericAPIError{Code: "ProvisionedThroughputExceededException"}, domain.ErrNetwork},
		{"transport", errors.New("dial tcp: connection refused"), domain.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}
}
