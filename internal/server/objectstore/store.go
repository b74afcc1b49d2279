// Package objectstore is the S3 backend: objects are keyed by a numeric id
// that plays the role of a message id, metadata comes from HeadObject and
// payloads are fetched through presigned GET URLs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/logging"
	"github.com/dmitrijs2005/tgfilestream/internal/netx"
	"github.com/dmitrijs2005/tgfilestream/internal/rangex"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
)

const (
	metaFileName = "filename"
	metaKind     = "kind"

	defaultPresignTTL = 15 * time.Minute
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	headObject = func(c *s3.Client, ctx context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		return c.HeadObject(ctx, in)
	}
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Options configures a Store.
type Options struct {
	User        string
	Password    string
	Bucket      string
	Region      string
	Endpoint    string
	Prefix      string
	HTTPTimeout time.Duration
}

type Store struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	prefix     string
	httpClient *http.Client
	logger     logging.Logger
	nextID     func() int64
}

func New(ctx context.Context, opts Options, logger logging.Logger) (*Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.User,
			opts.Password,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		client:     client,
		presign:    newS3PresignClient(client),
		bucket:     opts.Bucket,
		prefix:     opts.Prefix,
		httpClient: netx.NewStreamClient(opts.HTTPTimeout),
		logger:     logger.With("module", "objectstore"),
		nextID:     func() int64 { return time.Now().UnixMicro() },
	}, nil
}

func (s *Store) key(id int64) string {
	return s.prefix + strconv.FormatInt(id, 10)
}

// FetchMessage describes the object stored under messageID. chatID is
// ignored: a bucket is a single channel.
func (s *Store) FetchMessage(ctx context.Context, _ int64, messageID int64) (*models.Message, error) {
	key := s.key(messageID)

	out, err := headObject(s.client, ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.mapError(ctx, "head", key, err)
	}

	media := &models.Media{
		FileID:       key,
		FileUniqueID: strings.Trim(aws.ToString(out.ETag), `"`),
		FileName:     out.Metadata[metaFileName],
		MimeType:     aws.ToString(out.ContentType),
		FileSize:     aws.ToInt64(out.ContentLength),
	}
	if media.FileName == "" {
		media.FileName = path.Base(key)
	}

	msg := &models.Message{MessageID: messageID}
	switch out.Metadata[metaKind] {
	case models.KindAudio:
		msg.Audio = media
	case models.KindVideo:
		msg.Video = media
	default:
		msg.Document = media
	}
	return msg, nil
}

// ResolveFile returns a presigned GET URL for the object key fileID.
func (s *Store) ResolveFile(ctx context.Context, fileID string) (string, error) {
	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	}, s3.WithPresignExpires(defaultPresignTTL))
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", common.ErrBackendUnavailable, fileID, err)
	}
	return req.URL, nil
}

// FetchFile downloads a presigned URL, limited to window when set.
func (s *Store) FetchFile(ctx context.Context, url string, window *rangex.Window) (io.ReadCloser, error) {
	return netx.FetchRange(ctx, s.httpClient, url, window)
}

// Put uploads body as a new object and returns the message describing it.
func (s *Store) Put(ctx context.Context, name, mimeType, kind string, size int64, body io.Reader) (*models.Message, error) {
	id := s.nextID()
	key := s.key(id)

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if kind == "" {
		kind = models.KindDocument
	}

	_, err := putObject(s.client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(mimeType),
		Metadata:      map[string]string{metaFileName: name, metaKind: kind},
	})
	if err != nil {
		return nil, s.mapError(ctx, "put", key, err)
	}

	s.logger.Info(ctx, "object stored", "key", key, "size", size)

	media := &models.Media{FileID: key, FileName: name, MimeType: mimeType, FileSize: size}
	msg := &models.Message{MessageID: id}
	switch kind {
	case models.KindAudio:
		msg.Audio = media
	case models.KindVideo:
		msg.Video = media
	default:
		msg.Document = media
	}
	return msg, nil
}

// DeleteMessage removes the object stored under messageID.
func (s *Store) DeleteMessage(ctx context.Context, _ int64, messageID int64) error {
	key := s.key(messageID)
	_, err := deleteObject(s.client, ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.mapError(ctx, "delete", key, err)
	}
	return nil
}

func (s *Store) mapError(ctx context.Context, op, key string, err error) error {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return &common.BackendError{Code: http.StatusNotFound, Description: "Not Found: object " + key}
	}
	s.logger.Warn(ctx, "s3 call failed", "op", op, "key", key, "error", err)
	return fmt.Errorf("%w: s3 %s %s: %v", common.ErrBackendUnavailable, op, key, err)
}
