// Package gcs archives pulse snapshots as objects in a Google Cloud Storage
// bucket. Objects are write-once: a pulse that is already archived is never
// overwritten.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/JakeFAU/pulseflow/internal/archive"
)

// Config names the bucket and the key prefix snapshots are written under.
type Config struct {
	Bucket string
	Prefix string
}

// Store uploads snapshots to one bucket.
type Store struct {
	client     *storage.Client
	bucket     *storage.BucketHandle
	cfg        Config
	ownsClient bool
}

var _ archive.Store = (*Store)(nil)

// Dial creates a client with Application Default Credentials unless opts
// override them.
func Dial(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Store, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	s, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.ownsClient = true
	return s, nil
}

// New archives through an existing client. The caller keeps ownership of it.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &Store{client: client, bucket: client.Bucket(cfg.Bucket), cfg: cfg}, nil
}

// Put uploads snap and returns its gs:// URI. Archiving the same pulse twice
// keeps the first object and returns its URI.
func (s *Store) Put(ctx context.Context, snap archive.Snapshot) (string, error) {
	key, err := archive.KeyFor(s.cfg.Prefix, snap)
	if err != nil {
		return "", err
	}
	uri := fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, key)

	w := s.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = archive.ContentType
	w.Metadata = map[string]string{
		"signalId": snap.SignalID,
		"pulseId":  snap.PulseID,
	}
	if _, err := w.Write(snap.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload snapshot %s: %w", snap.PulseID, err)
	}
	if err := w.Close(); err != nil {
		if alreadyArchived(err) {
			return uri, nil
		}
		return "", fmt.Errorf("upload snapshot %s: %w", snap.PulseID, err)
	}
	return uri, nil
}

// Close releases the client when Dial created it.
func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}

func alreadyArchived(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
