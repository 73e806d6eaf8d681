package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"hr-agent-go/internal/config"
	"hr-agent-go/internal/tracing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var minioTracer = otel.Tracer("hr-agent-go/storage/minio")

// MinIO 提供原始简历文件的归档存储
type MinIO struct {
	client          *minio.Client
	cfg             *config.MinIOConfig
	originalsBucket string
	logger          *log.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	originalsBucket := cfg.OriginalsBucket
	if originalsBucket == "" {
		originalsBucket = "employee-originals" // 默认值
	}

	m := &MinIO{
		client:          client,
		cfg:             cfg,
		originalsBucket: originalsBucket,
		logger:          logger,
	}

	// 确保存储桶存在
	if err := m.ensureBucketExists(originalsBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保归档存储桶 %s 存在失败: %w", originalsBucket, err)
	}

	logger.Printf("[MinIO] 客户端初始化完成: endpoint=%s, bucket=%s", cfg.Endpoint, originalsBucket)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		m.logger.Printf("[MinIO] 存储桶 %s 不存在，创建中", bucketName)
		if err := m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
	}
	return nil
}

// ArchiveOriginal 将原始PDF归档到对象存储，返回对象键
// 对象键按提交UUID组织，相同提交的重试覆盖同一个对象
func (m *MinIO) ArchiveOriginal(ctx context.Context, submissionUUID string, data []byte, filename string) (string, error) {
	ctx, span := minioTracer.Start(ctx, "MinIO.ArchiveOriginal",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".pdf"
	}
	objectName := fmt.Sprintf("employee/%s/original%s", submissionUUID, ext)

	span.SetAttributes(
		attribute.String("minio.bucket", m.originalsBucket),
		attribute.String("minio.object", objectName),
		attribute.Int("minio.size", len(data)),
	)

	info, err := m.client.PutObject(ctx, m.originalsBucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentTypeForExt(ext)})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeMinIO)
		return "", fmt.Errorf("归档原始文件 %s 失败: %w", objectName, err)
	}

	span.SetAttributes(attribute.String("minio.etag", info.ETag))
	span.SetStatus(codes.Ok, "")
	m.logger.Printf("[MinIO] 原始文件已归档: %s (%d bytes)", objectName, info.Size)
	return objectName, nil
}

// GetOriginal 取回已归档的原始文件
func (m *MinIO) GetOriginal(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.originalsBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.originalsBucket, objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.originalsBucket, objectName, err)
	}
	return data, nil
}

// DeleteOriginal 删除已归档的原始文件
func (m *MinIO) DeleteOriginal(ctx context.Context, objectName string) error {
	if err := m.client.RemoveObject(ctx, m.originalsBucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectName, err)
	}
	return nil
}

// contentTypeForExt 按扩展名返回内容类型
func contentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
