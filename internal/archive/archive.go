// Package archive copies every synced proposal to S3-compatible object
// storage. The remote store only keeps summaries; the archive keeps the full
// working copy off the host.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"bidline/api/internal/proposal"
)

// ErrNotArchived is returned when no archive object exists for a proposal.
var ErrNotArchived = errors.New("proposal has not been archived")

const objectPrefix = "proposals/"

// Bucket is the object storage the archive writes to.
type Bucket interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// Entry is one archived proposal.
type Entry struct {
	Proposal   proposal.Proposal `json:"proposal"`
	Summary    proposal.Summary  `json:"summary"`
	ArchivedAt time.Time         `json:"archivedAt"`
}

type Archive struct {
	bucket Bucket
	now    func() time.Time
	log    zerolog.Logger
}

func New(bucket Bucket, log zerolog.Logger) *Archive {
	return &Archive{
		bucket: bucket,
		now:    func() time.Time { return time.Now().UTC() },
		log:    log.With().Str("component", "archive").Logger(),
	}
}

// ObjectName is the key holding the latest archived copy of id.
func ObjectName(id string) string {
	return objectPrefix + strings.TrimSpace(id) + ".json"
}

// ArchiveSynced stores the synced proposal. It has the shape of a sync hook.
func (a *Archive) ArchiveSynced(ctx context.Context, p proposal.Proposal, stored proposal.Summary) error {
	entry := Entry{Proposal: p, Summary: stored, ArchivedAt: a.now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode archive entry: %w", err)
	}
	if err := a.bucket.Put(ctx, ObjectName(p.ID), data); err != nil {
		return fmt.Errorf("archive %s: %w", p.ID, err)
	}
	a.log.Debug().Str("proposal_id", p.ID).Int("bytes", len(data)).Msg("proposal archived")
	return nil
}

// Latest returns the most recent archived copy of id.
func (a *Archive) Latest(ctx context.Context, id string) (Entry, error) {
	data, err := a.bucket.Get(ctx, ObjectName(id))
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode archive entry: %w", err)
	}
	entry.Proposal.Sanitize()
	return entry, nil
}

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioBucket implements Bucket on MinIO or any S3-compatible service.
type MinioBucket struct {
	client *minio.Client
	bucket string
}

// NewMinioBucket connects and creates the bucket when it is missing.
func NewMinioBucket(ctx context.Context, opts MinioOptions) (*MinioBucket, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
	}
	return &MinioBucket{client: client, bucket: opts.Bucket}, nil
}

func (b *MinioBucket) Put(ctx context.Context, name string, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (b *MinioBucket) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(err)
	}
	return data, nil
}

// Ping checks that the bucket is reachable.
func (b *MinioBucket) Ping(ctx context.Context) error {
	_, err := b.client.BucketExists(ctx, b.bucket)
	return err
}

func translate(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotArchived
	}
	return err
}
