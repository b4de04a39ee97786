// storage.go — операции с объектным хранилищем поверх кэша аренды.
// Каждый вызов S3 выполняется через WithFreshClient: действительная
// аренда гарантирована, истёкший посреди вызова токен ведёт ровно к
// одному повтору с новой арендой. Исход каждой попытки upload/download/
// delete фиксируется в журнале активности.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/bucketgate/internal/api/middleware"
	"github.com/arturkryukov/bucketgate/internal/credential"
	"github.com/arturkryukov/bucketgate/internal/domain/model"
)

// storageOperationsTotal — счётчик операций с хранилищем.
var storageOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bg_storage_operations_total",
		Help: "Общее количество операций с объектным хранилищем.",
	},
	[]string{"operation", "outcome"},
)

// Границы срока действия ссылки на скачивание.
const (
	defaultPresignTTL = 15 * time.Minute
	maxPresignTTL     = time.Hour
)

// StorageService — тонкие обёртки над операциями S3.
type StorageService struct {
	cache   *credential.Cache
	audit   *AuditService
	bucket  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewStorageService создаёт сервис операций с хранилищем.
// bucket — имя бакета (BG_S3_BUCKET), timeout — таймаут отдельного
// вызова S3 (BG_S3_REQUEST_TIMEOUT).
func NewStorageService(
	cache *credential.Cache,
	audit *AuditService,
	bucket string,
	timeout time.Duration,
	logger *slog.Logger,
) *StorageService {
	return &StorageService{
		cache:   cache,
		audit:   audit,
		bucket:  bucket,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "storage_service")),
	}
}

// List возвращает объекты и «папки» под префиксом.
// Операции чтения списка в журнал активности не попадают.
func (s *StorageService) List(ctx context.Context, prefix string) (*model.ObjectListing, error) {
	var listing *model.ObjectListing

	err := s.cache.WithFreshClient(ctx, func(ctx context.Context, lease *credential.Lease) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		out, err := lease.Client.ListObjectsV2(callCtx, &s3.ListObjectsV2Input{
			Bucket:    aws.String(s.bucket),
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		})
		if err != nil {
			return err
		}

		listing = buildListing(prefix, out)
		return nil
	})
	if err != nil {
		storageOperationsTotal.WithLabelValues("list", model.OutcomeFailure).Inc()
		return nil, classifyStorageErr("получение списка объектов", err)
	}

	storageOperationsTotal.WithLabelValues("list", model.OutcomeSuccess).Inc()
	return listing, nil
}

// Upload загружает объект потоково через s3 manager.
// Тело, поддерживающее Seek, перематывается перед каждой попыткой,
// чтобы повтор после перевыпуска токена перечитал его с начала.
func (s *StorageService) Upload(ctx context.Context, actor *middleware.AuthPrincipal, key string, size int64, contentType string, body io.Reader) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidObjectKey
	}

	err := s.cache.WithFreshClient(ctx, func(ctx context.Context, lease *credential.Lease) error {
		if seeker, ok := body.(io.Seeker); ok {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("перемотка тела загрузки: %w", err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		input := &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   body,
		}
		if contentType != "" {
			input.ContentType = aws.String(contentType)
		}

		uploader := manager.NewUploader(lease.Client)
		_, err := uploader.Upload(callCtx, input)
		return err
	})

	s.finish("upload", model.ActionUpload, actor, key, size, err)
	if err != nil {
		return classifyStorageErr("загрузка объекта", err)
	}
	return nil
}

// Delete удаляет объект по ключу.
func (s *StorageService) Delete(ctx context.Context, actor *middleware.AuthPrincipal, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidObjectKey
	}

	err := s.cache.WithFreshClient(ctx, func(ctx context.Context, lease *credential.Lease) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		_, err := lease.Client.DeleteObject(callCtx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})

	s.finish("delete", model.ActionDelete, actor, key, 0, err)
	if err != nil {
		return classifyStorageErr("удаление объекта", err)
	}
	return nil
}

// Presign выпускает ограниченную по времени ссылку на скачивание.
// Срок действия зажимается в [defaultPresignTTL, maxPresignTTL].
// В журнале фиксируется как download: ссылка и есть путь скачивания.
func (s *StorageService) Presign(ctx context.Context, actor *middleware.AuthPrincipal, key string, expiresIn time.Duration) (string, time.Time, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", time.Time{}, ErrInvalidObjectKey
	}

	if expiresIn <= 0 {
		expiresIn = defaultPresignTTL
	}
	if expiresIn > maxPresignTTL {
		expiresIn = maxPresignTTL
	}

	var signedURL string
	err := s.cache.WithFreshClient(ctx, func(ctx context.Context, lease *credential.Lease) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		req, err := lease.Presign.PresignGetObject(callCtx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(expiresIn))
		if err != nil {
			return err
		}

		signedURL = req.URL
		return nil
	})

	s.finish("presign", model.ActionDownload, actor, key, 0, err)
	if err != nil {
		return "", time.Time{}, classifyStorageErr("выпуск ссылки на скачивание", err)
	}
	return signedURL, time.Now().Add(expiresIn), nil
}

// Download открывает поток содержимого объекта. Закрыть Body обязан
// вызывающий. Таймаут отдельного вызова здесь не накладывается:
// чтение тела продолжается при записи ответа и ограничено временем
// жизни запроса.
func (s *StorageService) Download(ctx context.Context, actor *middleware.AuthPrincipal, key string) (*model.ObjectContent, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidObjectKey
	}

	var content *model.ObjectContent
	err := s.cache.WithFreshClient(ctx, func(ctx context.Context, lease *credential.Lease) error {
		out, err := lease.Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}

		content = &model.ObjectContent{
			Key:         key,
			Size:        aws.ToInt64(out.ContentLength),
			ContentType: aws.ToString(out.ContentType),
			Body:        out.Body,
		}
		return nil
	})

	var size int64
	if content != nil {
		size = content.Size
	}
	s.finish("download", model.ActionDownload, actor, key, size, err)
	if err != nil {
		return nil, classifyStorageErr("скачивание объекта", err)
	}
	return content, nil
}

// finish фиксирует исход операции в метриках и журнале активности.
func (s *StorageService) finish(operation, action string, actor *middleware.AuthPrincipal, key string, size int64, err error) {
	outcome := model.OutcomeSuccess
	detail := ""
	if err != nil {
		outcome = model.OutcomeFailure
		detail = err.Error()
	}

	storageOperationsTotal.WithLabelValues(operation, outcome).Inc()
	s.audit.Record(actor.Identifier, action, key, size, outcome, detail)
}

// classifyStorageErr приводит ошибку вызова хранилища к таксономии шлюза:
// таймаут — ErrUpstreamTimeout, отсутствующий ключ — ErrNotFound,
// остальное — как есть.
func classifyStorageErr(op string, err error) error {
	if credential.IsTimeout(err) {
		return fmt.Errorf("%s: %w", op, credential.ErrUpstreamTimeout)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// buildListing преобразует ответ ListObjectsV2 в доменную модель.
func buildListing(prefix string, out *s3.ListObjectsV2Output) *model.ObjectListing {
	listing := &model.ObjectListing{
		Prefix:    prefix,
		Truncated: aws.ToBool(out.IsTruncated),
	}

	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		// Маркер «папки» (ключ равен префиксу) в списке не показываем
		if key == prefix {
			continue
		}
		listing.Objects = append(listing.Objects, model.ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
		})
	}

	for _, cp := range out.CommonPrefixes {
		listing.Folders = append(listing.Folders, aws.ToString(cp.Prefix))
	}

	return listing
}
