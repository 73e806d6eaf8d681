package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// IngestModulePrefix 入库模块
	IngestModulePrefix = "ingest"

	// EntityFingerprint 文本指纹实体
	EntityFingerprint = "fingerprint"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyTextFingerprint 已入库文本的MD5指纹 (STRING)
	// 格式: app:ingest:fingerprint:{md5}
	KeyTextFingerprint = AppPrefix + ":" + IngestModulePrefix + ":" + EntityFingerprint + ":%s"

	// KeyTextFingerprintLock 指纹处理锁，串行化并发的相同文本提交 (STRING)
	// 格式: app:ingest:lock:{md5}
	KeyTextFingerprintLock = AppPrefix + ":" + IngestModulePrefix + ":" + EntityLock + ":%s"
)
