package tracing

import (
	"strings"
)

const (
	// DefaultMaxLength 默认最大属性长度
	DefaultMaxLength = 200

	// MaxSQLLength SQL语句最大长度
	MaxSQLLength = 500

	// MaxRedisLength Redis键最大长度
	MaxRedisLength = 100

	// MaxResumeLength 简历摘要内容最大长度
	MaxResumeLength = 150
)

// maskPIILookup 需要掩码处理的字段关键字
// 员工记录里联系方式、住址、紧急联系人都属于敏感信息
var maskPIILookup = map[string]bool{
	"email":     true,
	"phone":     true,
	"password":  true,
	"身份证":       true,
	"id_card":   true,
	"address":   true,
	"地址":        true,
	"name":      true,
	"姓名":        true,
	"emergency": true,
	"contact":   true,
	"secret":    true,
	"token":     true,
}

// SafeAttributeValue 确保属性值安全，不把敏感信息写进span
// 1. 字段名命中敏感关键字时返回掩码后的值
// 2. 超过maxLength时截断并添加省略号
func SafeAttributeValue(name string, value string, maxLength int) string {
	lowerName := strings.ToLower(name)
	for keyword := range maskPIILookup {
		if strings.Contains(lowerName, keyword) {
			return MaskPII(value)
		}
	}

	return TruncateString(value, maxLength)
}

// MaskPII 对个人敏感信息进行掩码处理
func MaskPII(value string) string {
	if value == "" {
		return ""
	}

	runes := []rune(value)
	length := len(runes)

	if length <= 1 {
		return "*"
	}
	// 短值如"张三"(2) -> "张*"，"王小明"(3) -> "王*明"
	if length <= 4 {
		if length == 2 {
			return string(runes[0:1]) + "*"
		}
		return string(runes[0:1]) + strings.Repeat("*", length-2) + string(runes[length-1:])
	}

	// 邮箱、手机号等较长的值保留首尾各2位
	// "13812345678" -> "13*******78"
	return string(runes[0:2]) + strings.Repeat("*", length-4) + string(runes[length-2:])
}

// TruncateString 截断字符串，保留首尾并用省略号连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}

	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}

	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeSQL 安全处理SQL语句
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeRedisKey 安全处理Redis键
func SafeRedisKey(key string) string {
	return TruncateString(key, MaxRedisLength)
}

// SafeResumeContent 安全处理简历摘要内容
func SafeResumeContent(content string) string {
	return TruncateString(content, MaxResumeLength)
}
