package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"storagetree/internal/domain"
	"storagetree/internal/storage"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRegion  = "us-east-1"
)

// s3API - операции S3, которыми пользуется Client
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Client хранит дерево в S3-совместимом бакете.
// Каталог - это объект-маркер "key/", файл - обычный объект.
// Переименование каталога копирует все объекты под префиксом: неудачное
// копирование откатывается, а после копирования всех объектов перенос
// считается выполненным, даже если часть источников не удалилась.
type Client struct {
	client s3API
	bucket string
	logger *zap.Logger
}

var _ storage.Filesystem = (*Client)(nil)

func newClient(api s3API, bucket string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: api, bucket: bucket, logger: logger}
}

// NewClient создает новый экземпляр клиента S3
func NewClient(conf *Config, logger *zap.Logger) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("missing required configuration: %w", err)
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	region := conf.Region
	if region == "" {
		region = defaultRegion
	}

	opts := s3.Options{
		Region:           region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
		UsePathStyle:     conf.UsePathStyle,
	}
	if conf.Endpoint != "" {
		opts.BaseEndpoint = aws.String(conf.Endpoint)
	}

	api := s3.New(opts)

	// Проверяем подключение к бакету
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	_, err := api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(conf.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
	}

	return newClient(api, conf.Bucket, logger.Named("s3")), nil
}

func (h *Client) Exists(ctx context.Context, p string) (bool, error) {
	key := objectKey(p)
	found, err := h.headExists(ctx, key)
	if err != nil || found {
		return found, err
	}
	return h.prefixExists(ctx, key+"/")
}

func (h *Client) CreateDir(ctx context.Context, p string) error {
	exists, err := h.Exists(ctx, p)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", storage.ErrDestinationExists, p)
	}

	_, err = h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(objectKey(p) + "/"),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return ioError("create dir", p, err)
	}
	return nil
}

func (h *Client) RemoveDir(ctx context.Context, p string) error {
	marker := objectKey(p) + "/"

	out, err := h.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(h.bucket),
		Prefix:  aws.String(marker),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return ioError("list", p, err)
	}
	if len(out.Contents) == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotExist, p)
	}
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) != marker {
			return fmt.Errorf("%w: %s", storage.ErrNotEmpty, p)
		}
	}

	return h.deleteKey(ctx, marker)
}

func (h *Client) RemoveFile(ctx context.Context, p string) error {
	key := objectKey(p)
	found, err := h.headExists(ctx, key)
	if err != nil {
		return err
	}
	// Если объект не существует, сообщаем об этом вызывающему
	if !found {
		return fmt.Errorf("%w: %s", storage.ErrNotExist, p)
	}
	return h.deleteKey(ctx, key)
}

func (h *Client) RenameOrMove(ctx context.Context, oldPath, newPath string) error {
	exists, err := h.Exists(ctx, newPath)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", storage.ErrDestinationExists, newPath)
	}

	oldKey, newKey := objectKey(oldPath), objectKey(newPath)

	isFile, err := h.headExists(ctx, oldKey)
	if err != nil {
		return err
	}
	if isFile {
		return h.moveKey(ctx, oldKey, newKey)
	}

	// Каталог: переносим все объекты под префиксом, маркер включительно
	keys, err := h.listKeys(ctx, oldKey+"/")
	if err != nil {
		return ioError("list", oldPath, err)
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotExist, oldPath)
	}

	copied := make([]string, 0, len(keys))
	for _, key := range keys {
		target := newKey + strings.TrimPrefix(key, oldKey)
		if err := h.copyKey(ctx, key, target); err != nil {
			if rbErr := h.deleteKeys(ctx, copied); rbErr != nil {
				h.logger.Error("rollback of partial directory copy failed",
					zap.String("from", oldPath),
					zap.String("to", newPath),
					zap.Error(rbErr),
				)
				return multierr.Append(err, rbErr)
			}
			return err
		}
		copied = append(copied, target)
	}

	// Все копии на месте: перенос выполнен, остатки источника только логируем
	if err := h.deleteKeys(ctx, keys); err != nil {
		h.logger.Warn("source objects left after directory move",
			zap.String("from", oldPath),
			zap.String("to", newPath),
			zap.Error(err),
		)
	}
	return nil
}

// moveKey переносит один объект. Если исходный объект не удалился,
// копия убирается, чтобы файл не оказался в двух местах.
func (h *Client) moveKey(ctx context.Context, from, to string) error {
	if err := h.copyKey(ctx, from, to); err != nil {
		return err
	}
	if err := h.deleteKey(ctx, from); err != nil {
		if rbErr := h.deleteKey(ctx, to); rbErr != nil {
			h.logger.Error("rollback of file copy failed",
				zap.String("from", from),
				zap.String("to", to),
				zap.Error(rbErr),
			)
			return multierr.Append(err, rbErr)
		}
		return err
	}
	return nil
}

// WriteFile загружает файл в S3 потоком: тело не буферизуется,
// длина объекта задается заранее через size.
func (h *Client) WriteFile(ctx context.Context, p string, r io.Reader, size int64) (int64, error) {
	exists, err := h.Exists(ctx, p)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("%w: %s", storage.ErrDestinationExists, p)
	}

	key := objectKey(p)
	body := &countingReader{r: io.LimitReader(r, size)}
	_, err = h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		if body.eof && body.n < size {
			return body.n, fmt.Errorf("%w: %s: declared %d, received %d", storage.ErrSizeMismatch, p, size, body.n)
		}
		return body.n, ioError("upload", p, err)
	}

	// тело длиннее заявленного: загруженный объект не оставляем
	var extra [1]byte
	if n, _ := io.ReadFull(r, extra[:]); n > 0 {
		if err := h.deleteKey(ctx, key); err != nil {
			return size, err
		}
		return size + 1, fmt.Errorf("%w: %s: declared %d, received more", storage.ErrSizeMismatch, p, size)
	}
	return size, nil
}

// Open получает объект из S3
func (h *Client) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	result, err := h.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(objectKey(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotExist, p)
		}
		return nil, ioError("get", p, err)
	}
	return result.Body, nil
}

func (h *Client) FileSize(ctx context.Context, p string) (int64, error) {
	out, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(objectKey(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %s", storage.ErrNotExist, p)
		}
		return 0, ioError("head", p, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (h *Client) headExists(ctx context.Context, key string) (bool, error) {
	_, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, ioError("head", key, err)
}

func (h *Client) prefixExists(ctx context.Context, prefix string) (bool, error) {
	out, err := h.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(h.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, ioError("list", prefix, err)
	}
	return len(out.Contents) > 0, nil
}

func (h *Client) copyKey(ctx context.Context, from, to string) error {
	_, err := h.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(h.bucket),
		Key:        aws.String(to),
		CopySource: aws.String(h.bucket + "/" + escapeKey(from)),
	})
	if err != nil {
		return ioError("copy", from+" -> "+to, err)
	}
	return nil
}

func (h *Client) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(h.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(h.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// deleteKeys удаляет все ключи и собирает ошибки, не останавливаясь на первой
func (h *Client) deleteKeys(ctx context.Context, keys []string) error {
	var errs error
	for _, key := range keys {
		errs = multierr.Append(errs, h.deleteKey(ctx, key))
	}
	return errs
}

func (h *Client) deleteKey(ctx context.Context, key string) error {
	_, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ioError("delete", key, err)
	}
	return nil
}

// objectKey: "/alice/docs/x.txt" -> "alice/docs/x.txt"
func objectKey(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

// countingReader считает прочитанные байты и запоминает конец тела
type countingReader struct {
	r   io.Reader
	n   int64
	eof bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if errors.Is(err, io.EOF) {
		c.eof = true
	}
	return n, err
}

func ioError(op, p string, err error) error {
	return fmt.Errorf("%w: s3 %s %s: %v", domain.ErrIO, op, p, err)
}
