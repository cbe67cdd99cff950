package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/crypto"
	"github.com/forensic-testing/fts-intake/pkg/retry"
)

// ArchivePrefix is the key prefix of every archived export.
const ArchivePrefix = "exports/"

const metaSealed = "sealed"

// ArchiveEntry is an archived export as listed to admins.
type ArchiveEntry struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size_bytes"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Archive keeps a copy of every export in a Store, sealed when a Sealer is configured.
type Archive struct {
	store  Store
	sealer *crypto.Sealer
	retry  *retry.Config
	now    func() time.Time
	logger *zap.Logger
}

// NewArchive wraps store. sealer may be nil to store exports in the clear.
func NewArchive(store Store, sealer *crypto.Sealer, logger *zap.Logger) *Archive {
	return &Archive{
		store:  store,
		sealer: sealer,
		retry:  retry.DefaultConfig(),
		now:    time.Now,
		logger: logger.Named("archive"),
	}
}

// Save stores body under a fresh name with extension ext and returns the key.
func (a *Archive) Save(ctx context.Context, ext, contentType string, body []byte, metadata map[string]string) (Info, error) {
	name := fmt.Sprintf("%s-%s.%s", a.now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8], ext)
	key := ArchivePrefix + name

	md := cloneMetadata(metadata)
	if md == nil {
		md = map[string]string{}
	}
	payload := body
	if a.sealer != nil {
		sealed, err := a.sealer.Seal(body)
		if err != nil {
			return Info{}, fmt.Errorf("failed to seal export: %w", err)
		}
		payload = sealed
		md[metaSealed] = "true"
	}

	var info Info
	err := retry.DoIfRetryable(ctx, a.retry, func() error {
		var err error
		info, err = a.store.Put(ctx, key, bytes.NewReader(payload), PutOptions{ContentType: contentType, Metadata: md})
		return err
	})
	if err != nil {
		return Info{}, fmt.Errorf("failed to archive export: %w", err)
	}

	a.logger.Info("Export archived",
		zap.String("key", key),
		zap.Int("bytes", len(payload)),
		zap.Bool("sealed", a.sealer != nil),
		zap.String("driver", string(a.store.Driver())))
	return info, nil
}

// List returns archived exports, newest first.
func (a *Archive) List(ctx context.Context) ([]ArchiveEntry, error) {
	infos, err := a.store.List(ctx, ArchivePrefix)
	if err != nil {
		return nil, err
	}
	entries := make([]ArchiveEntry, 0, len(infos))
	for i := len(infos) - 1; i >= 0; i-- {
		entries = append(entries, ArchiveEntry{
			Name:        strings.TrimPrefix(infos[i].Key, ArchivePrefix),
			Size:        infos[i].Size,
			ContentType: infos[i].ContentType,
			CreatedAt:   infos[i].LastModified,
		})
	}
	return entries, nil
}

// Open reads and, if needed, unseals the archived export called name.
func (a *Archive) Open(ctx context.Context, name string) (Info, []byte, error) {
	if name == "" || path.Base(name) != name || strings.Contains(name, "..") {
		return Info{}, nil, fmt.Errorf("%w: %q", ErrBadKey, name)
	}

	info, rc, err := a.store.Get(ctx, ArchivePrefix+name)
	if err != nil {
		return Info{}, nil, err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return Info{}, nil, fmt.Errorf("failed to read archived export: %w", err)
	}

	if info.Metadata[metaSealed] == "true" {
		if a.sealer == nil {
			return Info{}, nil, fmt.Errorf("archived export %s is sealed and no archive key is configured", name)
		}
		body, err = a.sealer.Open(body)
		if err != nil {
			return Info{}, nil, err
		}
	}
	return info, body, nil
}
