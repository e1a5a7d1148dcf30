package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestKey(t *testing.T) {
	if got := Key("form-entries/", "/c-1", "", "fe-1.json"); got != "form-entries/c-1/fe-1.json" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	data := []byte(`{"score":91}`)

	meta, err := s.Put(ctx, "form-entries/c-1/fe-1.json", "application/json", data)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Size != int64(len(data)) || meta.Hash != Hash(data) {
		t.Errorf("unexpected metadata %+v", meta)
	}

	data[0] = 'X'
	got, gotMeta, err := s.Get(ctx, "form-entries/c-1/fe-1.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"score":91}` {
		t.Errorf("stored data was mutated by caller: %s", got)
	}
	if gotMeta.ContentType != "application/json" {
		t.Errorf("unexpected content type %s", gotMeta.ContentType)
	}

	if keys := s.Keys("form-entries/c-1/"); len(keys) != 1 {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestMemoryStore_Errors(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
	if _, err := s.Put(ctx, "", "text/plain", nil); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
	if _, err := s.Put(ctx, "big", "text/plain", make([]byte, MaxFileSize+1)); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

type fakeS3 struct {
	objects map[string]*s3.PutObjectInput
	bodies  map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]*s3.PutObjectInput{}, bodies: map[string][]byte{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = in
	f.bodies[*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	put, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	modified := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return &s3.GetObjectOutput{
		Body:         io.NopCloser(bytes.NewReader(f.bodies[*in.Key])),
		ContentType:  put.ContentType,
		Metadata:     put.Metadata,
		LastModified: &modified,
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	client := newFakeS3()
	s := &S3Store{client: client, bucket: "clinic-archive", now: time.Now}
	ctx := context.Background()
	data := []byte(`{"id":"fe-1"}`)

	if _, err := s.Put(ctx, "form-entries/c-1/fe-1.json", "application/json", data); err != nil {
		t.Fatal(err)
	}
	put := client.objects["form-entries/c-1/fe-1.json"]
	if *put.Bucket != "clinic-archive" || put.ACL != types.ObjectCannedACLPrivate {
		t.Errorf("unexpected put input %+v", put)
	}

	got, meta, err := s.Get(ctx, "form-entries/c-1/fe-1.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) || meta.Hash != Hash(data) {
		t.Errorf("unexpected object %s %+v", got, meta)
	}
	if meta.CreatedAt.IsZero() {
		t.Error("expected last modified time")
	}
}

func TestS3Store_NotFound(t *testing.T) {
	s := &S3Store{client: newFakeS3(), bucket: "b", now: time.Now}
	if _, _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}
