package service

import (
	"context"
	"time"

	"github.com/daddykev/stardust-distro-sub000/internal/model"
	"github.com/daddykev/stardust-distro-sub000/internal/store"
)

const redacted = "********"

// TargetService manages the delivery target registry
type TargetService struct {
	targets *store.TargetStore
	now     func() time.Time
}

func NewTargetService(targets *store.TargetStore) *TargetService {
	return &TargetService{targets: targets, now: time.Now}
}

// Put creates or replaces a target after checking that its connection
// carries what its protocol needs.
func (s *TargetService) Put(ctx context.Context, id string, target *model.DeliveryTarget) (*model.DeliveryTarget, error) {
	target.ID = id
	if err := ValidateConnection(target); err != nil {
		return nil, err
	}
	target.UpdatedAt = s.now()
	if err := s.targets.Put(ctx, target); err != nil {
		return nil, err
	}
	return Redact(target), nil
}

// Get returns a target with its secrets masked
func (s *TargetService) Get(ctx context.Context, id string) (*model.DeliveryTarget, error) {
	target, err := s.targets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Redact(target), nil
}

// List returns every target with its secrets masked
func (s *TargetService) List(ctx context.Context) ([]*model.DeliveryTarget, error) {
	targets, err := s.targets.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.DeliveryTarget, 0, len(targets))
	for _, t := range targets {
		out = append(out, Redact(t))
	}
	return out, nil
}

// ValidateConnection checks the protocol-specific connection fields.
func ValidateConnection(t *model.DeliveryTarget) error {
	c := t.Connection
	switch t.Protocol {
	case model.ProtocolFTP:
		if c.Host == "" || c.Username == "" {
			return model.NewValidationError("connection", "FTP targets need host and username")
		}
	case model.ProtocolSFTP:
		if c.Host == "" || c.Username == "" {
			return model.NewValidationError("connection", "SFTP targets need host and username")
		}
		if c.Password == "" && c.PrivateKey == "" {
			return model.NewValidationError("connection", "SFTP targets need a password or private key")
		}
	case model.ProtocolS3:
		if c.Bucket == "" {
			return model.NewValidationError("connection.bucket", "S3 targets need a bucket")
		}
	case model.ProtocolAzure:
		if c.AccountName == "" || c.AccountKey == "" || c.ContainerName == "" {
			return model.NewValidationError("connection", "Azure targets need accountName, accountKey and containerName")
		}
	case model.ProtocolAPI, model.ProtocolDSP:
		if c.Endpoint == "" {
			return model.NewValidationError("connection.endpoint", "%s targets need an endpoint", t.Protocol)
		}
		if c.Auth != nil && c.Auth.Type == model.AuthTypeOAuth2 && c.Auth.Credentials.TokenURL == "" {
			return model.NewValidationError("connection.auth", "OAuth2 needs a tokenUrl")
		}
	case model.ProtocolStorage:
	default:
		return model.NewValidationError("protocol", "unsupported protocol %q", t.Protocol)
	}
	return nil
}

// Redact returns a copy of the target with credentials masked.
func Redact(t *model.DeliveryTarget) *model.DeliveryTarget {
	out := *t
	c := &out.Connection
	mask(&c.Password)
	mask(&c.PrivateKey)
	mask(&c.Passphrase)
	mask(&c.SecretAccessKey)
	mask(&c.AccountKey)
	if c.Auth != nil {
		auth := *c.Auth
		mask(&auth.Credentials.Token)
		mask(&auth.Credentials.Password)
		mask(&auth.Credentials.ClientSecret)
		c.Auth = &auth
	}
	return &out
}

func mask(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// HistoryService lists completed production deliveries of a release
type HistoryService struct {
	history *store.HistoryStore
}

func NewHistoryService(history *store.HistoryStore) *HistoryService {
	return &HistoryService{history: history}
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (s *HistoryService) List(ctx context.Context, releaseID string, limit int) ([]model.HistoryRecord, error) {
	return s.history.List(ctx, releaseID, limit)
}
