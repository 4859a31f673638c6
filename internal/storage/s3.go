// Package storage mirrors finalized documents and their sidecars to S3.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/invoicebrain/internal/config"
	"github.com/local/invoicebrain/internal/document"
	"github.com/local/invoicebrain/internal/sidecar"
)

// Mirror uploads finalized artifacts to a bucket, optionally encrypted.
type Mirror struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	password string
}

// NewMirror builds the S3 client from the default AWS chain, overridden by
// static credentials and a custom endpoint when configured.
func NewMirror(ctx context.Context, cfg config.S3Config) (*Mirror, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 mirror: bucket not configured")
	}
	var opts []func(*awscfg.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsConf, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Mirror{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		password: cfg.EncryptionPassword,
	}, nil
}

// Key returns the object key of a finalized artifact.
func Key(prefix string, t document.DocType, name string) string {
	return path.Join(prefix, string(t), name)
}

// MirrorDocument uploads the working PDF and its sidecar concurrently.
// A missing sidecar is not an error.
func (m *Mirror) MirrorDocument(ctx context.Context, doc *document.Document) error {
	g, gctx := errgroup.WithContext(ctx)
	files := []string{doc.SourcePath, sidecar.PathFor(doc.SourcePath)}
	for i, p := range files {
		p, optional := p, i > 0
		g.Go(func() error {
			data, err := os.ReadFile(p)
			if err != nil {
				if optional && os.IsNotExist(err) {
					return nil
				}
				return fmt.Errorf("read %s: %w", filepath.Base(p), err)
			}
			return m.put(gctx, Key(m.prefix, doc.Type, filepath.Base(p)), data, map[string]string{
				"doc-id":      doc.ID,
				"doc-type":    string(doc.Type),
				"intake-name": doc.IntakeName,
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Str("doc_id", doc.ID).Str("bucket", m.bucket).Str("stem", doc.Stem()).Msg("document mirrored to S3")
	return nil
}

func (m *Mirror) put(ctx context.Context, key string, data []byte, meta map[string]string) error {
	if m.password != "" {
		enc, err := encryptCBC(data, m.password)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", key, err)
		}
		data = enc
		meta["encrypted"] = "true"
		meta["encryption-format"] = FormatCBC
	}
	_, err := m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(m.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	log.Debug().Str("key", key).Int("size", len(data)).Msg("uploaded object")
	return nil
}

// Fetch downloads an object and decrypts it when it carries the
// encryption magic.
func (m *Mirror) Fetch(ctx context.Context, key string) ([]byte, error) {
	res, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	if !IsEncrypted(data) {
		return data, nil
	}
	if m.password == "" {
		return nil, fmt.Errorf("object %s is encrypted and no password is configured", key)
	}
	return decryptCBC(data, m.password)
}

// Ping checks that the bucket is reachable.
func (m *Mirror) Ping(ctx context.Context) error {
	_, err := m.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(m.bucket)})
	return err
}

// Bucket returns the configured bucket name.
func (m *Mirror) Bucket() string { return m.bucket }
