package results

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

var _ s3manageriface.UploaderAPI = (*fakeUploader)(nil)

// fakeUploader records uploads instead of talking to S3.
type fakeUploader struct {
	inputs []*s3manager.UploadInput
	bodies [][]byte
	err    error
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3manager.UploadOutput{}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLocalDir_Copies(t *testing.T) {
	src := writeFile(t, t.TempDir(), "res_a.jpg", "jpeg bytes")
	dst := filepath.Join(t.TempDir(), "out")

	l := &LocalDir{Dir: dst}
	if err := l.Publish(context.Background(), "run/res_a.jpg", src); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "run", "res_a.jpg"))
	if err != nil {
		t.Fatalf("published file missing: %v", err)
	}
	if string(got) != "jpeg bytes" {
		t.Errorf("content: got %q", got)
	}
}

func TestLocalDir_SameFileIsNoop(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "res_a.jpg", "keep")

	l := &LocalDir{Dir: dir}
	if err := l.Publish(context.Background(), "res_a.jpg", src); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	got, _ := os.ReadFile(src)
	if string(got) != "keep" {
		t.Errorf("file changed: %q", got)
	}
}

func TestLocalDir_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := &LocalDir{Dir: t.TempDir()}
	if err := l.Publish(ctx, "x.jpg", "missing.jpg"); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestS3Mirror_Publish(t *testing.T) {
	fake := &fakeUploader{}
	m := &S3Mirror{Bucket: "craft-results", Prefix: "exp/run1", uploader: fake}
	src := writeFile(t, t.TempDir(), "res_a.txt", "hello")

	if err := m.Publish(context.Background(), "res_a.txt", src); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(fake.inputs) != 1 {
		t.Fatalf("got %d uploads, want 1", len(fake.inputs))
	}
	in := fake.inputs[0]
	if aws.StringValue(in.Bucket) != "craft-results" {
		t.Errorf("bucket: got %q", aws.StringValue(in.Bucket))
	}
	if aws.StringValue(in.Key) != "exp/run1/res_a.txt" {
		t.Errorf("key: got %q", aws.StringValue(in.Key))
	}
	if string(fake.bodies[0]) != "hello" {
		t.Errorf("body: got %q", fake.bodies[0])
	}
	if ct := aws.StringValue(in.ContentType); ct == "" {
		t.Error("content type not set")
	}
}

func TestS3Mirror_Errors(t *testing.T) {
	boom := errors.New("denied")
	m := &S3Mirror{Bucket: "b", uploader: &fakeUploader{err: boom}}
	src := writeFile(t, t.TempDir(), "a.jpg", "x")

	if err := m.Publish(context.Background(), "a.jpg", src); !errors.Is(err, boom) {
		t.Errorf("upload error: got %v", err)
	}
	if err := m.Publish(context.Background(), "a.jpg", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestMulti(t *testing.T) {
	fake := &fakeUploader{}
	dst := t.TempDir()
	src := writeFile(t, t.TempDir(), "a.jpg", "x")

	m := Multi{&LocalDir{Dir: dst}, &S3Mirror{Bucket: "b", uploader: fake}}
	if err := m.Publish(context.Background(), "a.jpg", src); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "a.jpg")); err != nil {
		t.Error("local copy missing")
	}
	if len(fake.inputs) != 1 {
		t.Error("s3 upload missing")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	if err := os.WriteFile(src, []byte("new bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "dst.jpg")
	if err := os.WriteFile(dst, []byte("older and longer contents"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "new bytes" {
		t.Errorf("dst: got %q", got)
	}

	tests := []struct {
		name     string
		src, dst string
	}{
		{"missing source", filepath.Join(dir, "nope.jpg"), filepath.Join(dir, "out.jpg")},
		{"missing destination directory", src, filepath.Join(dir, "no", "such", "out.jpg")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := CopyFile(tt.src, tt.dst); err == nil {
				t.Error("CopyFile should fail")
			}
		})
	}
}
