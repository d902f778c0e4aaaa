// Package s3 provides an S3-backed flow/store.FlowStore, storing each
// flow's serialized document as a single object keyed by flow id under a
// configurable prefix. Suited for archival or cross-region replication of
// flow definitions rather than low-latency lookups.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	flowerrs "github.com/flowmesh/flowengine/flow/errs"
	"github.com/flowmesh/flowengine/flow/serialize"
)

const defaultPrefix = "flows/"

// Options configures the S3-backed store.
type Options struct {
	Client *s3.Client
	Bucket string
	Prefix string // defaults to "flows/"
}

// Store implements flow/store.FlowStore against an S3 bucket.
type Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	prefix     string
}

// New returns a Store backed by the given S3 bucket.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("s3 store: client is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("s3 store: bucket is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{
		client:     opts.Client,
		uploader:   manager.NewUploader(opts.Client),
		downloader: manager.NewDownloader(opts.Client),
		bucket:     opts.Bucket,
		prefix:     prefix,
	}, nil
}

func (s *Store) key(flowID string) string {
	return fmt.Sprintf("%s%s.json", s.prefix, flowID)
}

func (s *Store) Save(ctx context.Context, doc *serialize.Document) error {
	if doc.FlowID == "" {
		return errors.New("s3 store: flow id is required")
	}
	body, err := serialize.Marshal(doc)
	if err != nil {
		return fmt.Errorf("s3 store: marshal: %w", err)
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(doc.FlowID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 store: save %q: %w", doc.FlowID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, flowID string) (*serialize.Document, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(flowID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3 store: load %q: %w", flowID, flowerrs.ErrFlowNotFound)
		}
		return nil, fmt.Errorf("s3 store: load %q: %w", flowID, err)
	}
	doc, err := serialize.Unmarshal(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("s3 store: decode %q: %w", flowID, err)
	}
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, flowID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(flowID)),
	})
	if err != nil {
		return fmt.Errorf("s3 store: delete %q: %w", flowID, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 store: list: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			name = strings.TrimSuffix(name, ".json")
			if name != "" {
				ids = append(ids, name)
			}
		}
	}
	return ids, nil
}
