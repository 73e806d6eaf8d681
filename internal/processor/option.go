package processor

import (
	"io"
	"log"
)

// IngestOption 入库编排器的配置选项
type IngestOption func(*IngestOrchestrator)

// WithDuplicateThreshold 覆盖默认的重复判定阈值
// threshold <= 0 时保持 DefaultDuplicateThreshold
func WithDuplicateThreshold(threshold float64) IngestOption {
	return func(o *IngestOrchestrator) {
		if threshold > 0 {
			o.threshold = threshold
		}
	}
}

// WithFingerprintGuard 设置文本指纹守卫（Redis实现），nil表示禁用
func WithFingerprintGuard(guard FingerprintGuard) IngestOption {
	return func(o *IngestOrchestrator) {
		o.guard = guard
	}
}

// WithArchiveStore 设置原始文件归档存储（MinIO实现），nil表示禁用
func WithArchiveStore(archive ArchiveStore) IngestOption {
	return func(o *IngestOrchestrator) {
		o.archive = archive
	}
}

// WithEventPublisher 设置入库事件发布器（RabbitMQ实现），nil表示禁用
func WithEventPublisher(publisher EventPublisher) IngestOption {
	return func(o *IngestOrchestrator) {
		o.publisher = publisher
	}
}

// WithIngestLogger 设置日志记录器
func WithIngestLogger(logger *log.Logger) IngestOption {
	return func(o *IngestOrchestrator) {
		if logger != nil {
			o.logger = logger
		} else {
			// 提供一个 discard logger 以防万一
			o.logger = log.New(io.Discard, "", 0)
		}
	}
}
