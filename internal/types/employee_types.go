package types

import "strings"

// IngestionStatus 表示一次简历入库的最终状态
type IngestionStatus string

const (
	// IngestionStored 简历被判定为新记录并已写入
	IngestionStored IngestionStatus = "stored"
	// IngestionDuplicate 简历被判定为近似重复，未写入
	IngestionDuplicate IngestionStatus = "duplicate"
)

// EmployeeRecord 从简历中提取出的结构化员工记录
// 所有字段都允许为空：简历中缺失的信息以空值形式保留，字段本身不会被省略
type EmployeeRecord struct {
	EmployeeID         string              `json:"employee_id"`
	FirstName          string              `json:"first_name"`
	LastName           string              `json:"last_name"`
	DateOfBirth        string              `json:"date_of_birth"`
	Address            Address             `json:"address"`
	ContactDetails     ContactDetails      `json:"contact_details"`
	JobDetails         JobDetails          `json:"job_details"`
	WorkLocation       string              `json:"work_location"`
	ReportingManager   string              `json:"reporting_manager"`
	Skills             []string            `json:"skills"`
	PerformanceReviews []PerformanceReview `json:"performance_reviews"`
	Benefits           []string            `json:"benefits"`
	EmergencyContact   EmergencyContact    `json:"emergency_contact"`
	Notes              string              `json:"notes"`
}

// Address 员工住址
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// ContactDetails 联系方式
type ContactDetails struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// JobDetails 职位信息
type JobDetails struct {
	JobTitle       string `json:"job_title"`
	Department     string `json:"department"`
	HireDate       string `json:"hire_date"`
	EmploymentType string `json:"employment_type"`
}

// PerformanceReview 一条绩效评估记录
type PerformanceReview struct {
	Period   string `json:"period"`
	Rating   string `json:"rating"`
	Comments string `json:"comments"`
}

// EmergencyContact 紧急联系人
type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
}

// FullName 返回"名 姓"形式的姓名，两者都为空时返回空串
func (r *EmployeeRecord) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

// SimilarityResult 相似度查询的瞬时结果
// Found 为 false 表示索引为空（没有最近邻），此时 Score 恒为 0
type SimilarityResult struct {
	Found   bool    `json:"found"`
	Score   float64 `json:"score"`
	PointID string  `json:"point_id"`
	// 最近邻存储时使用的摘要文本，仅用于日志与排查
	SummaryText string `json:"summary_text,omitempty"`
}

// IngestionResult ingest 调用的带标签结果
// Status == stored 时 Record 非空；Status == duplicate 时 Score/Message 有效
type IngestionResult struct {
	Status         IngestionStatus `json:"status"`
	SubmissionUUID string          `json:"submission_uuid"`
	Record         *EmployeeRecord `json:"record,omitempty"`
	Score          float64         `json:"score,omitempty"`
	Message        string          `json:"message,omitempty"`
}
