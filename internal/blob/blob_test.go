package blob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey("receipts", "../my receipt.JPG")
	assert.True(t, strings.HasPrefix(key, "receipts/receipt-"))
	assert.True(t, strings.HasSuffix(key, "-my_receipt.JPG"))
	assert.NotContains(t, key, "..")

	assert.NotEqual(t, ObjectKey("", "a.jpg"), ObjectKey("", "a.jpg"))
	assert.False(t, strings.HasPrefix(ObjectKey("", "a.jpg"), "/"))
}

func TestLocalStore_PutGet(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), LocalURLPrefix)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := s.Put(ctx, "receipts/receipt-1.jpg", strings.NewReader("image-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/receipts/receipt-1.jpg", ref)

	data, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	data, err = s.Get(ctx, "http://localhost:8080"+ref)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	_, err = s.Get(ctx, "/uploads/receipts/missing.jpg")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Get(ctx, "/uploads/../secret")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Get(ctx, "gs://bucket/obj")
	assert.ErrorIs(t, err, ErrUnsupportedRef)
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/receipts/a.jpg", "bucket", "receipts/a.jpg", false},
		{"https://storage.googleapis.com/bucket/a.jpg", "bucket", "a.jpg", false},
		{"gs://bucket", "", "", true},
		{"s3://bucket/a.jpg", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantObject, object)
		})
	}
}

func TestFilenameFromURI(t *testing.T) {
	assert.Equal(t, "a.jpg", FilenameFromURI("gs://bucket/receipts/a.jpg"))
	assert.Equal(t, "b.png", FilenameFromURI("/uploads/receipts/b.png"))
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store_PutGet(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := NewS3Store(fake, "receipts-bucket", "eu-west-2")
	ctx := context.Background()

	ref, err := s.Put(ctx, "receipts/r.jpg", strings.NewReader("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://receipts-bucket.s3.eu-west-2.amazonaws.com/receipts/r.jpg", ref)

	data, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	data, err = s.Get(ctx, "s3://receipts-bucket/receipts/r.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	_, err = s.Get(ctx, "s3://receipts-bucket/missing.jpg")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Get(ctx, "/uploads/x.jpg")
	assert.ErrorIs(t, err, ErrUnsupportedRef)
}

func TestWithHTTPFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.jpg":
			w.Write([]byte("remote"))
		case "/broken.jpg":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	local, err := NewLocalStore(t.TempDir(), LocalURLPrefix)
	require.NoError(t, err)
	s := WithHTTPFallback(local, srv.Client())
	ctx := context.Background()

	data, err := s.Get(ctx, srv.URL+"/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))

	_, err = s.Get(ctx, srv.URL+"/gone.jpg")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Get(ctx, srv.URL+"/broken.jpg")
	assert.ErrorIs(t, err, domain.ErrNetwork)

	_, err = s.Get(ctx, "ftp://host/file")
	assert.ErrorIs(t, err, ErrUnsupportedRef)
}

func TestWithHTTPFallback_CapsImageSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/small.jpg":
			w.Write([]byte("12345678"))
		case "/chunked.jpg":
			// Flushing before the body is complete hides the Content-Length.
			w.Write([]byte("12345"))
			w.(http.Flusher).Flush()
			w.Write([]byte("6789"))
		default:
			w.Write([]byte("123456789"))
		}
	}))
	defer srv.Close()

	local, err := NewLocalStore(t.TempDir(), LocalURLPrefix)
	require.NoError(t, err)
	s := WithHTTPFallback(local, srv.Client())
	s.(*httpFallback).maxBytes = 8
	ctx := context.Background()

	data, err := s.Get(ctx, srv.URL+"/small.jpg")
	require.NoError(t, err)
	assert.Len(t, data, 8)

	_, err = s.Get(ctx, srv.URL+"/big.jpg")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Get(ctx, srv.URL+"/chunked.jpg")
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, int64(MaxImageBytes), WithHTTPFallback(local, srv.Client()).(*httpFallback).maxBytes)
}
