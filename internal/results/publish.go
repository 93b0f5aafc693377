// Package results publishes evaluation result images.
//
// LocalDir keeps results on the local filesystem and S3Mirror uploads them
// to a bucket. Both satisfy Publisher so the evaluation code does not care
// where results end up.
package results

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/gabriel-vasile/mimetype"
)

// Publisher stores a finished result file under name.
type Publisher interface {
	Publish(ctx context.Context, name, localPath string) error
}

// LocalDir copies result files into Dir. Files already in Dir are left
// alone.
type LocalDir struct {
	Dir string
}

// Publish copies localPath to Dir/name.
func (l *LocalDir) Publish(ctx context.Context, name, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := filepath.Join(l.Dir, name)
	srcAbs, err := filepath.Abs(localPath)
	if err != nil {
		return err
	}
	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if srcAbs == dstAbs {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	return CopyFile(localPath, dst)
}

// S3Mirror uploads result files to an S3 bucket under Prefix.
type S3Mirror struct {
	Bucket string
	Prefix string

	uploader s3manageriface.UploaderAPI
}

// NewS3Mirror opens an AWS session in region. Credentials come from the
// standard AWS environment and shared config.
func NewS3Mirror(bucket, region, prefix string) (*S3Mirror, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up aws session: %w", err)
	}
	return &S3Mirror{
		Bucket:   bucket,
		Prefix:   prefix,
		uploader: s3manager.NewUploader(sess),
	}, nil
}

// Key returns the object key for name.
func (s *S3Mirror) Key(name string) string {
	return path.Join(s.Prefix, filepath.ToSlash(name))
}

// Publish uploads localPath as Prefix/name.
func (s *S3Mirror) Publish(ctx context.Context, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	contentType := "application/octet-stream"
	if m, err := mimetype.DetectFile(localPath); err == nil {
		contentType = m.String()
	}

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(s.Key(name)),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, s.Bucket, s.Key(name), err)
	}
	return nil
}

// Multi publishes to every publisher in order and stops at the first error.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, name, localPath string) error {
	for _, p := range m {
		if err := p.Publish(ctx, name, localPath); err != nil {
			return err
		}
	}
	return nil
}

// CopyFile copies src to dst, truncating dst if it exists. The parent
// directory of dst must already exist.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		return errors.Join(err, out.Close())
	}
	return out.Close()
}
