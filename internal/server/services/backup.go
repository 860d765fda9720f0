package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/logging"
	"github.com/loobric/smooth-core/internal/server/authz"
	sc "github.com/loobric/smooth-core/internal/server/config"
	"github.com/loobric/smooth-core/internal/server/models"
	"github.com/loobric/smooth-core/internal/server/repositories/repomanager"
)

// BackupFormatVersion identifies the export document layout.
const BackupFormatVersion = "1.0"

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// GrantExport is a grant row stripped of its secret hash for export.
type GrantExport struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	Scopes     []string   `json:"scopes"`
	Tags       []string   `json:"tags"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Revoked    bool       `json:"revoked"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Backup is the JSON export document: one owner's data, or everything for
// an admin export. Secrets and password hashes are never included.
type Backup struct {
	FormatVersion string             `json:"format_version"`
	Type          string             `json:"type"`
	CreatedAt     time.Time          `json:"created_at"`
	Counts        map[string]int     `json:"counts"`
	Resources     []*models.Resource `json:"resources"`
	Snapshots     []*models.Snapshot `json:"snapshots"`
	Grants        []GrantExport      `json:"grants"`
}

// BackupService exports a tenant's records, history and grant metadata as a
// JSON document and uploads it to S3-compatible object storage. Download
// happens through a short-lived presigned URL.
type BackupService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	logger      logging.Logger
	now         func() time.Time
}

// NewBackupService constructs a BackupService.
func NewBackupService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config, logger logging.Logger) *BackupService {
	return &BackupService{
		db:          db,
		repomanager: m,
		config:      cfg,
		logger:      logger.With("module", "backup"),
		now:         time.Now,
	}
}

// Export builds the backup document for the principal: admins export all
// data, everyone else exports only their own.
func (s *BackupService) Export(ctx context.Context, p *models.Principal) (*Backup, error) {
	ownerID := p.OwnerID
	backupType := "user"
	if authz.IsAdmin(p.Scopes) {
		ownerID = ""
		backupType = "admin"
	}

	resources, err := s.repomanager.Resources(s.db).ExportByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	snaps, err := s.repomanager.Snapshots(s.db).ExportByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var grants []GrantExport
	if p.IsSessionAuth {
		rows, err := s.repomanager.Grants(s.db).ListByUser(ctx, p.OwnerID)
		if err != nil {
			return nil, err
		}
		for _, g := range rows {
			grants = append(grants, GrantExport{
				ID: g.ID, UserID: g.UserID, Name: g.Name,
				Scopes: g.Scopes, Tags: g.Tags,
				ExpiresAt: g.ExpiresAt, Revoked: g.Revoked,
				LastUsedAt: g.LastUsedAt, CreatedAt: g.CreatedAt,
			})
		}
	}

	return &Backup{
		FormatVersion: BackupFormatVersion,
		Type:          backupType,
		CreatedAt:     s.now(),
		Counts: map[string]int{
			"resources": len(resources),
			"snapshots": len(snaps),
			"grants":    len(grants),
		},
		Resources: resources,
		Snapshots: snaps,
		Grants:    grants,
	}, nil
}

// Upload serializes the backup and stores it in the configured bucket.
// Returns the object key.
func (s *BackupService) Upload(ctx context.Context, backup *Backup) (string, error) {
	body, err := json.Marshal(backup)
	if err != nil {
		return "", common.ErrInternal
	}

	client, err := s.getS3Client(ctx)
	if err != nil {
		return "", err
	}

	key := s.storageKey()
	if _, err := putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.S3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return "", fmt.Errorf("uploading backup: %w", err)
	}

	s.logger.Info(ctx, "backup uploaded", "key", key, "bytes", len(body))
	return key, nil
}

// PresignedGetURL returns a temporary download URL for a stored backup.
func (s *BackupService) PresignedGetURL(ctx context.Context, key string) (string, error) {
	client, err := s.getS3Client(ctx)
	if err != nil {
		return "", err
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (s *BackupService) getS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3AccessKey,
			s.config.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}
	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	}), nil
}

func (s *BackupService) storageKey() string {
	d := s.now()
	return fmt.Sprintf("backups/%d/%02d/%02d/%v.json", d.Year(), d.Month(), d.Day(), uuid.New())
}
