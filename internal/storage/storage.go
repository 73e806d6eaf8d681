package storage

import (
	"context"
	"fmt"
	"log"
	"os"

	"hr-agent-go/internal/config"
	"hr-agent-go/internal/processor"
	"hr-agent-go/internal/storage/models"
)

// Storage 存储管理器，聚合所有存储相关依赖
// MySQL与Qdrant是入库管道的硬依赖；Redis/MinIO/RabbitMQ按配置可选
type Storage struct {
	// 关系型数据库（必需）
	MySQL *MySQL

	// 向量数据库（必需）
	Qdrant *Qdrant

	// 键值存储（可选：文本指纹守卫）
	Redis *Redis

	// 对象存储（可选：原始文件归档）
	MinIO *MinIO

	// 消息队列（可选：入库事件发布）
	RabbitMQ *RabbitMQ
}

// NewStorage 创建存储管理器
// 必需组件初始化失败即返回错误；可选组件失败仅告警，管道按降级模式运行
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	storage := &Storage{}
	var err error

	// 初始化MySQL（必需）
	if cfg.MySQL.Host == "" {
		return nil, fmt.Errorf("MySQL配置缺失")
	}
	storage.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}
	log.Println("MySQL客户端初始化成功")

	// 初始化Qdrant（必需）
	if cfg.Qdrant.Endpoint == "" {
		storage.Close()
		return nil, fmt.Errorf("qdrant配置缺失")
	}
	storage.Qdrant, err = NewQdrant(&cfg.Qdrant)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("初始化Qdrant失败: %w", err)
	}
	log.Println("Qdrant客户端初始化成功")

	// 初始化Redis（可选）
	if cfg.Redis.Address != "" {
		storage.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			log.Printf("警告: 初始化Redis失败，指纹守卫不可用: %v", err)
			storage.Redis = nil
		}
	} else {
		log.Printf("Redis未配置, 跳过初始化.")
	}

	// 初始化MinIO（可选）
	if cfg.MinIO.Endpoint != "" {
		var minioLogger *log.Logger
		if cfg.Logger.Level == "debug" {
			minioLogger = log.New(os.Stderr, "[MinIOStorage] ", log.LstdFlags|log.Lshortfile)
		}
		storage.MinIO, err = NewMinIO(&cfg.MinIO, minioLogger)
		if err != nil {
			log.Printf("警告: 初始化MinIO失败，原始文件归档不可用: %v", err)
			storage.MinIO = nil
		}
	} else {
		log.Printf("MinIO未配置, 跳过初始化.")
	}

	// 初始化RabbitMQ（可选）
	if cfg.RabbitMQ.URL != "" {
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			log.Printf("警告: 初始化RabbitMQ失败，入库事件发布不可用: %v", err)
			storage.RabbitMQ = nil
		}
	} else {
		log.Printf("RabbitMQ未配置, 跳过初始化.")
	}

	return storage, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	// 关闭RabbitMQ连接
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Printf("关闭RabbitMQ连接失败: %v", err)
		}
	}

	// 关闭MySQL连接
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Printf("关闭MySQL连接失败: %v", err)
		}
	}

	// 关闭Redis连接
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("关闭Redis连接失败: %v", err)
		}
	}
	// Qdrant与MinIO客户端不需要显式Close
}

// 入库管道接口的实现检查
var (
	_ processor.VectorIndex      = (*Qdrant)(nil)
	_ processor.FingerprintGuard = (*Redis)(nil)
	_ processor.ArchiveStore     = (*MinIO)(nil)
	_ processor.EventPublisher   = (*RabbitMQ)(nil)
)

//
// 元数据存储适配: 把MySQL桥接到入库管道的 MetadataStore / StoreHandle 接口
//

// MySQLMetadataStore 基于MySQL连接池的元数据存储
// Acquire 做一次PingContext存活探测；句柄本身不独占连接，Release为幂等空操作
type MySQLMetadataStore struct {
	mysql *MySQL
}

// NewMySQLMetadataStore 创建MySQL元数据存储适配器
func NewMySQLMetadataStore(mysql *MySQL) *MySQLMetadataStore {
	return &MySQLMetadataStore{mysql: mysql}
}

var _ processor.MetadataStore = (*MySQLMetadataStore)(nil)

// Acquire 探测存储可用性并返回写入句柄
func (s *MySQLMetadataStore) Acquire(ctx context.Context) (processor.StoreHandle, error) {
	if s.mysql == nil {
		return nil, fmt.Errorf("MySQL客户端未初始化")
	}
	if err := s.mysql.Ping(ctx); err != nil {
		return nil, fmt.Errorf("MySQL存活探测失败: %w", err)
	}
	return &mysqlStoreHandle{mysql: s.mysql}, nil
}

// mysqlStoreHandle 一次ingest调用期间的写入句柄
type mysqlStoreHandle struct {
	mysql    *MySQL
	released bool
}

var _ processor.StoreHandle = (*mysqlStoreHandle)(nil)

// SaveEmployeeProfile 将管道的写入载荷转换为GORM模型并落库
func (h *mysqlStoreHandle) SaveEmployeeProfile(ctx context.Context, row *processor.EmployeeProfileRow) error {
	if h.released {
		return fmt.Errorf("存储句柄已释放")
	}
	if row == nil {
		return fmt.Errorf("写入载荷不能为空")
	}

	recordJSON, err := models.StructToJSON(row.Record)
	if err != nil {
		return fmt.Errorf("序列化员工记录失败: %w", err)
	}

	profile := &models.EmployeeProfile{
		SubmissionUUID:   row.SubmissionUUID,
		EmployeeID:       row.EmployeeID,
		FirstName:        row.FirstName,
		LastName:         row.LastName,
		SummaryText:      row.SummaryText,
		EmbeddingPointID: row.EmbeddingPointID,
		RecordJSON:       recordJSON,
		TextMD5:          row.TextMD5,
	}
	return h.mysql.SaveEmployeeProfile(ctx, profile)
}

// Release 归还句柄；幂等
func (h *mysqlStoreHandle) Release() {
	h.released = true
}
