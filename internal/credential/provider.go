// provider.go — выпуск аренды клиента S3: либо напрямую на долгоживущей
// паре ключей, либо через STS AssumeRole с откатом по списку кандидатов
// длительности сессии.
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// AssumeRoleAPI — срез STS API, нужный провайдеру. Выделен в интерфейс
// для подмены в тестах.
type AssumeRoleAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Options — параметры выпуска учётных данных.
type Options struct {
	// Region — регион S3
	Region string
	// AccessKeyID — долгоживущий ключ доступа
	AccessKeyID string
	// SecretAccessKey — долгоживущий секретный ключ
	SecretAccessKey string
	// RoleARN — ARN роли; пусто — без assume role, клиент строится
	// прямо на долгоживущей паре
	RoleARN string
	// SessionName — имя сессии при assume role
	SessionName string
	// Endpoint — кастомный endpoint S3 (MinIO и совместимые);
	// при непустом значении включается path-style адресация
	Endpoint string
	// Durations — кандидаты длительности сессии в секундах, по убыванию
	Durations []int32
	// RequestTimeout — таймаут одного обмена STS
	RequestTimeout time.Duration
}

// AWSProvider выпускает аренды клиента S3 через aws-sdk-go-v2.
type AWSProvider struct {
	opts   Options
	logger *slog.Logger

	// newSTS подменяется в тестах
	newSTS func(aws.Config) AssumeRoleAPI
}

// NewAWSProvider создаёт провайдер учётных данных.
func NewAWSProvider(opts Options, logger *slog.Logger) *AWSProvider {
	return &AWSProvider{
		opts:   opts,
		logger: logger.With(slog.String("component", "credential_provider")),
		newSTS: func(cfg aws.Config) AssumeRoleAPI {
			return sts.NewFromConfig(cfg)
		},
	}
}

// Provision выпускает новую аренду. Без RoleARN аренда бессрочная
// (ExpiresAt == nil); с RoleARN выполняется обмен STS с откатом
// по кандидатам длительности.
func (p *AWSProvider) Provision(ctx context.Context) (*Lease, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	baseCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(p.opts.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(p.opts.AccessKeyID, p.opts.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("конфигурация AWS: %w", err)
	}

	now := time.Now()

	if p.opts.RoleARN == "" {
		lease := p.buildLease(baseCfg, now, nil, 0)
		p.logger.Info("Клиент хранилища построен на долгоживущих ключах",
			slog.String("access_key", maskKey(p.opts.AccessKeyID)),
		)
		return lease, nil
	}

	return p.assumeRole(ctx, baseCfg, now)
}

// assumeRole выполняет обмен STS, пробуя кандидатов длительности по
// убыванию. Отказ «длительность превышает максимум роли» переводит
// к следующему кандидату; любой другой отказ прерывает обмен сразу.
func (p *AWSProvider) assumeRole(ctx context.Context, baseCfg aws.Config, now time.Time) (*Lease, error) {
	stsAPI := p.newSTS(baseCfg)

	var lastErr error
	for _, d := range p.opts.Durations {
		out, err := stsAPI.AssumeRole(ctx, &sts.AssumeRoleInput{
			RoleArn:         aws.String(p.opts.RoleARN),
			RoleSessionName: aws.String(p.opts.SessionName),
			DurationSeconds: aws.Int32(d),
		})
		if err != nil {
			if isDurationTooLong(err) {
				credentialFallbacksTotal.Inc()
				p.logger.Warn("Длительность сессии превышает максимум роли, пробуем меньшую",
					slog.Int("duration_seconds", int(d)),
				)
				lastErr = err
				continue
			}
			if IsTimeout(err) {
				return nil, fmt.Errorf("обмен STS: %w", ErrUpstreamTimeout)
			}
			return nil, fmt.Errorf("обмен STS отклонён (%v): %w", err, ErrProvisioning)
		}

		creds := out.Credentials
		if creds == nil {
			return nil, fmt.Errorf("STS вернул пустые учётные данные: %w", ErrProvisioning)
		}

		tmpCfg := baseCfg.Copy()
		tmpCfg.Credentials = credentials.NewStaticCredentialsProvider(
			aws.ToString(creds.AccessKeyId),
			aws.ToString(creds.SecretAccessKey),
			aws.ToString(creds.SessionToken),
		)

		// Предпочитаем время истечения из ответа STS; расчётное — запасной вариант
		expiresAt := now.Add(time.Duration(d) * time.Second)
		if creds.Expiration != nil {
			expiresAt = *creds.Expiration
		}

		lease := p.buildLease(tmpCfg, now, &expiresAt, d)
		p.logger.Info("Выпущены временные учётные данные",
			slog.String("access_key", maskKey(aws.ToString(creds.AccessKeyId))),
			slog.Int("duration_seconds", int(d)),
			slog.Time("expires_at", expiresAt),
		)
		return lease, nil
	}

	return nil, fmt.Errorf("кандидаты длительности исчерпаны (%v): %w", lastErr, ErrProvisioning)
}

// buildLease строит клиентов S3 на переданной конфигурации.
func (p *AWSProvider) buildLease(cfg aws.Config, issuedAt time.Time, expiresAt *time.Time, duration int32) *Lease {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if p.opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(p.opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Lease{
		Client:          client,
		Presign:         s3.NewPresignClient(client),
		IssuedAt:        issuedAt,
		ExpiresAt:       expiresAt,
		DurationSeconds: duration,
	}
}

// maskKey маскирует ключ доступа для логов: первые четыре символа и звёздочки.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
