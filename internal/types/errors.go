package types

import "errors"

// ErrMalformedRecordJSON LLM响应无法解析为员工记录数组
// 由parser在解析阶段返回，processor据此区分“模型调用失败”与“输出不符合数据契约”
var ErrMalformedRecordJSON = errors.New("llm response is not a valid employee record array")
