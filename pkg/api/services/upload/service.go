// Package upload ties the capability-token authority, the session
// manager, and the progress pipeline together behind the API surface.
package upload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/blobstore"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/notify"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/progress"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/session"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/storekey"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplink"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplog"
)

// Config tunes the upload service.
type Config struct {
	// MultipartThresholdBytes is the declared size at or above which an
	// upload gets a multipart session instead of a single presigned PUT.
	MultipartThresholdBytes int64

	// SignExpiry is the validity window advertised for presigned URLs.
	// Must match the session manager's signing expiry.
	SignExpiry time.Duration

	// PartSize is the part size recommended to multipart clients.
	PartSize int64

	// StorageAttempts bounds retries of transient storage failures on the
	// completion path.
	StorageAttempts int
}

// Default tuning.
const (
	DefaultMultipartThreshold = 100 * 1024 * 1024
	DefaultPartSize           = 64 * 1024 * 1024
	DefaultStorageAttempts    = 3
)

func (c *Config) withDefaults() {
	if c.MultipartThresholdBytes <= 0 {
		c.MultipartThresholdBytes = DefaultMultipartThreshold
	}
	if c.SignExpiry <= 0 {
		c.SignExpiry = session.DefaultSignExpiry
	}
	if c.PartSize <= 0 {
		c.PartSize = DefaultPartSize
	}
	if c.StorageAttempts < 1 {
		c.StorageAttempts = DefaultStorageAttempts
	}
}

// Service coordinates one upload from token check to completed object.
type Service struct {
	authority  *uplink.Authority
	sessions   *session.Manager
	gateway    blobstore.Gateway
	aggregator *progress.Aggregator
	publisher  *notify.Publisher
	logger     *uplog.Logger
	cfg        Config
}

// NewService creates the upload service.
func NewService(
	authority *uplink.Authority,
	sessions *session.Manager,
	gateway blobstore.Gateway,
	aggregator *progress.Aggregator,
	publisher *notify.Publisher,
	logger *uplog.Logger,
	cfg Config,
) *Service {
	cfg.withDefaults()
	if logger == nil {
		logger = uplog.NewDefault()
	}
	return &Service{
		authority:  authority,
		sessions:   sessions,
		gateway:    gateway,
		aggregator: aggregator,
		publisher:  publisher,
		logger:     logger,
		cfg:        cfg,
	}
}

// Params is what the params endpoint hands back to the client.
type Params struct {
	Method    string
	Key       storekey.Key
	URL       string
	UploadID  string
	PartSize  int64
	ExpiresIn int
}

// Methods handed out by Params.
const (
	MethodPut       = "put"
	MethodMultipart = "multipart"
)

// Params validates the token, derives the storage key, and hands out
// upload parameters: a single presigned PUT below the multipart
// threshold, a fresh multipart session at or above it. One use of the
// token is burned only after the parameters are successfully minted.
func (s *Service) Params(ctx context.Context, token, filename string, size int64) (*Params, error) {
	grant, err := s.authority.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	key, err := storekey.Derive(grant.ClientRef, grant.ProjectRef, filename)
	if err != nil {
		return nil, err
	}

	expiresIn := int(s.cfg.SignExpiry / time.Second)

	if size < s.cfg.MultipartThresholdBytes {
		var url string
		err := blobstore.Retry(ctx, s.cfg.StorageAttempts, func() error {
			var signErr error
			url, signErr = s.gateway.PresignPut(ctx, key.String(), s.cfg.SignExpiry)
			return signErr
		})
		if err != nil {
			return nil, err
		}
		if err := s.authority.RecordUse(ctx, token); err != nil {
			return nil, err
		}
		s.logger.Info("issued single-put upload", "key", key.String(), "size", size)
		return &Params{Method: MethodPut, Key: key, URL: url, ExpiresIn: expiresIn}, nil
	}

	sess, err := s.sessions.Start(ctx, key, token, contentTypeFor(filename))
	if err != nil {
		return nil, err
	}
	if err := s.authority.RecordUse(ctx, token); err != nil {
		// The gateway session exists but the token lost a use race; tear
		// the session down so no orphaned parts accumulate.
		if abortErr := s.sessions.Abort(ctx, sess.UploadID()); abortErr != nil {
			s.logger.Warn("abort after use-race failed",
				"uploadId", sess.UploadID(), "error", abortErr.Error())
		}
		return nil, err
	}

	s.logger.Info("issued multipart upload",
		"key", key.String(), "uploadId", sess.UploadID(), "size", size)
	return &Params{
		Method:    MethodMultipart,
		Key:       key,
		UploadID:  sess.UploadID(),
		PartSize:  s.cfg.PartSize,
		ExpiresIn: expiresIn,
	}, nil
}

// SignPart returns a presigned URL for one part of a multipart session.
// The token must be the one the session was started with; anything else
// is reported as an unknown session rather than leaking that the
// uploadId exists.
func (s *Service) SignPart(ctx context.Context, token, uploadID string, partNumber int) (string, error) {
	if _, err := s.authority.Validate(ctx, token); err != nil {
		return "", err
	}
	if err := s.checkSessionToken(token, uploadID); err != nil {
		return "", err
	}
	return s.sessions.SignPart(ctx, uploadID, partNumber)
}

// Complete assembles a multipart session into the final object and runs
// the canonical-key cleanup pass. Transient storage failures are retried
// with backoff; on exhaustion the session stays retryable and the error
// reports the transient class.
func (s *Service) Complete(ctx context.Context, token, uploadID string, parts []blobstore.Part) (string, storekey.Key, error) {
	if _, err := s.authority.Validate(ctx, token); err != nil {
		return "", "", err
	}
	if err := s.checkSessionToken(token, uploadID); err != nil {
		return "", "", err
	}

	sess, err := s.sessions.Get(uploadID)
	if err != nil {
		return "", "", err
	}
	key := sess.Key()

	var location string
	err = blobstore.Retry(ctx, s.cfg.StorageAttempts, func() error {
		var completeErr error
		location, completeErr = s.sessions.Complete(ctx, uploadID, parts)
		if errors.Is(completeErr, session.ErrStorageTimeout) {
			return fmt.Errorf("%w: %w", blobstore.ErrUnavailable, completeErr)
		}
		return completeErr
	})
	if err != nil {
		return "", "", err
	}

	if cleaned, ok := s.cleanupKey(ctx, key); ok {
		location, key = cleaned.location, cleaned.key
	}
	return location, key, nil
}

// Abort discards a multipart session.
func (s *Service) Abort(ctx context.Context, token, uploadID string) error {
	if _, err := s.authority.Validate(ctx, token); err != nil {
		return err
	}
	if err := s.checkSessionToken(token, uploadID); err != nil {
		return err
	}
	return s.sessions.Abort(ctx, uploadID)
}

// Progress feeds one raw progress sample into the aggregator and, when
// the throttle lets an event through, fans it out to the notification
// channels. Delivery is detached from the reporting request: a slow
// observer never delays the uploading client.
func (s *Service) Progress(ctx context.Context, token, uploadID, filename string, size, offset int64) error {
	grant, err := s.authority.Validate(ctx, token)
	if err != nil {
		return err
	}

	event := s.aggregator.Observe(progress.Sample{
		UploadID:      uploadID,
		FileName:      filename,
		BytesUploaded: offset,
		BytesTotal:    size,
		ClientRef:     grant.ClientRef,
		ProjectRef:    grant.ProjectRef,
	})
	if event == nil {
		return nil
	}

	go s.publisher.Publish(context.WithoutCancel(ctx), *event)
	return nil
}

// DownloadURL returns a presigned download link for a stored object. The
// key is derived from the token's grant, so a token can only reach
// objects under its own client/project prefix.
func (s *Service) DownloadURL(ctx context.Context, token, filename string) (string, error) {
	grant, err := s.authority.Validate(ctx, token)
	if err != nil {
		return "", err
	}

	key, err := storekey.Derive(grant.ClientRef, grant.ProjectRef, filename)
	if err != nil {
		return "", err
	}

	exists, err := s.gateway.Exists(ctx, key.String())
	if err != nil {
		return "", err
	}
	if !exists {
		return "", blobstore.ErrNotFound
	}
	return s.gateway.PresignGet(ctx, key.String(), s.cfg.SignExpiry)
}

func (s *Service) checkSessionToken(token, uploadID string) error {
	sess, err := s.sessions.Get(uploadID)
	if err != nil {
		return err
	}
	if sess.LinkToken() != token {
		return session.ErrUnknownSession
	}
	return nil
}

type cleanedKey struct {
	location string
	key      storekey.Key
}

// cleanupKey re-derives the canonical key for a completed object and
// renames the stored object when they differ (legacy widget prefixes
// survive normalization only on keys minted before the derivation rules
// tightened). Best-effort: a failed rename leaves the object where the
// completion put it.
func (s *Service) cleanupKey(ctx context.Context, key storekey.Key) (cleanedKey, bool) {
	canonical, err := storekey.CanonicalFilename(key.Filename())
	if err != nil || canonical == key.Filename() {
		return cleanedKey{}, false
	}

	dest := storekey.Key(key.Prefix() + canonical)
	location, err := s.gateway.Rename(ctx, key.String(), dest.String())
	if err != nil {
		s.logger.Warn("canonical key cleanup failed",
			"key", key.String(), "dest", dest.String(), "error", err.Error())
		return cleanedKey{}, false
	}
	s.logger.Info("renamed object to canonical key", "from", key.String(), "to", dest.String())
	return cleanedKey{location: location, key: dest}, true
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
