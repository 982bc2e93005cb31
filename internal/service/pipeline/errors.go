package pipeline

import "fmt"

// ExternalServiceError 上游生成服务不可达或返回非 2xx
// 发生在脚本阶段时整个运行中止（没有场景就无从继续），其余阶段按场景降级
type ExternalServiceError struct {
	Service string // 出错的上游（script / tts / image）
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// externalErr 包装上游错误
func externalErr(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}
