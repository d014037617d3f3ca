package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type ClientParams struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewClient creates an S3 client using path-style addressing, which works
// against MinIO and other S3-compatible endpoints.
func NewClient(ctx context.Context, params ClientParams) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithBaseEndpoint(params.Endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// SnapshotStore implements store.GraphStore with one JSON object per graph
// under <prefix>/<graphID>.json.
type SnapshotStore struct {
	client objectAPI
	bucket string
	prefix string
}

func NewSnapshotStore(client objectAPI, bucket, prefix string) *SnapshotStore {
	if prefix == "" {
		prefix = "graphs"
	}
	return &SnapshotStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *SnapshotStore) key(graphID string) string {
	return path.Join(s.prefix, graphID+".json")
}

func (s *SnapshotStore) Load(ctx context.Context, graphID string) (*common.Graph, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(graphID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get graph %s from S3: %w", graphID, err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read graph %s: %w", graphID, err)
	}
	return store.Decode(buf.Bytes())
}

func (s *SnapshotStore) Save(ctx context.Context, graphID string, g *common.Graph) error {
	if g == nil {
		g = common.NewGraph()
	}
	if err := store.Check(g); err != nil {
		return err
	}
	data, err := store.Encode(g)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(graphID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload graph %s to S3: %w", graphID, err)
	}
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, graphID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(graphID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete graph %s from S3: %w", graphID, err)
	}
	return nil
}
