package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// EmployeeProfile 员工元数据主表
// 每次成功入库写入一行：提交UUID为主键，TextMD5 唯一索引兜底并发下的重复写入
type EmployeeProfile struct {
	SubmissionUUID   string         `gorm:"type:char(36);primaryKey"`
	EmployeeID       string         `gorm:"type:varchar(100);index:idx_ep_employee_id"`
	FirstName        string         `gorm:"type:varchar(255)"`
	LastName         string         `gorm:"type:varchar(255)"`
	SummaryText      string         `gorm:"type:text"`
	EmbeddingPointID string         `gorm:"type:char(36);index:idx_ep_embedding_point_id"`
	RecordJSON       datatypes.JSON `gorm:"type:json"`
	TextMD5          string         `gorm:"type:char(32);uniqueIndex:uq_ep_text_md5"`
	OriginalFilename string         `gorm:"type:varchar(255)"`
	OriginalFilePath string         `gorm:"type:varchar(1024)"`
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (EmployeeProfile) TableName() string {
	return "employee_profiles"
}

// StructToJSON Helper function to convert any struct to datatypes.JSON
func StructToJSON(v interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
