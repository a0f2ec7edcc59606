package s3util

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	f.types[*in.Bucket+"/"+*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()

	if err := PutBytes(ctx, fake, "bucket", "edits/a.png", ContentType("png"), []byte("pixels")); err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	if got := fake.types["bucket/edits/a.png"]; got != "image/png" {
		t.Errorf("expected content type image/png, got %s", got)
	}

	data, err := GetBytes(ctx, fake, "bucket", "edits/a.png")
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if string(data) != "pixels" {
		t.Errorf("expected pixels, got %q", data)
	}

	if err := Delete(ctx, fake, "bucket", "edits/a.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	data, err = GetBytes(ctx, fake, "bucket", "edits/a.png")
	if err != nil || data != nil {
		t.Errorf("expected (nil, nil) for a missing object, got (%v, %v)", data, err)
	}
}

func TestGetBytesError(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = errors.New("access denied")
	if _, err := GetBytes(context.Background(), fake, "bucket", "k"); err == nil {
		t.Error("expected error")
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"png":  "image/png",
		"jpeg": "image/jpeg",
		"jpg":  "image/jpeg",
		"webp": "image/webp",
		"tiff": "application/octet-stream",
	}
	for in, want := range tests {
		if got := ContentType(in); got != want {
			t.Errorf("ContentType(%q): expected %s, got %s", in, want, got)
		}
	}
}
