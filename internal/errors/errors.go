// Package errors classifies failures raised while driving account cycles.
//
// Every failure that crosses a package boundary carries a Code. The code decides
// whether the orchestrator retries the cycle, whether the unit is abandoned and
// whether the recorder raises an operator alert.
package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 标识失败类别，写入执行记录的 error_code 列。
type Code string

// Severity 决定日志级别；critical 的失败会触发告警。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 是错误码的默认描述。Retryable 表示周期可以在退避后从头重试。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
}

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	// CodeNotFound 用于查询不存在的执行记录。
	CodeNotFound Code = "NOT_FOUND"
	// CodeStorageFailure 覆盖名册与历史记录的读写失败。
	CodeStorageFailure Code = "STORAGE_FAILURE"
	// CodeQueueFailure 覆盖账户分发队列与事件投递失败。
	CodeQueueFailure Code = "QUEUE_FAILURE"
	// CodeTransientNetwork 是 RPC 或服务端请求失败，周期退避后重试。
	CodeTransientNetwork Code = "TRANSIENT_NETWORK"
	// CodeChainRevert 表示交易已上链但执行失败，只影响当前动作。
	CodeChainRevert Code = "CHAIN_REVERT"
	// CodeProtocolParse 表示服务端响应缺少载荷行或 JSON 非法，调用方回退到默认值。
	CodeProtocolParse Code = "PROTOCOL_PARSE"
	// CodeClaimRejected 是服务端返回 success=false 的水龙头领取。
	CodeClaimRejected Code = "CLAIM_REJECTED"
	// CodeFatalProvisioning 表示私钥无法使用或无法轮换账户，执行单元就此终止。
	CodeFatalProvisioning Code = "FATAL_PROVISIONING"
	// CodeTimeout 是 RPC、确认等待或服务请求超出时限。
	CodeTimeout Code = "TIMEOUT"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:           {Message: "unknown error", Severity: SeverityCritical},
		CodeInvalidArgument:   {Message: "invalid argument", Severity: SeverityInfo},
		CodeNotFound:          {Message: "run not found", Severity: SeverityInfo},
		CodeStorageFailure:    {Message: "roster or history storage failure", Severity: SeverityCritical, Retryable: true},
		CodeQueueFailure:      {Message: "dispatch or event queue failure", Severity: SeverityCritical, Retryable: true},
		CodeTransientNetwork:  {Message: "rpc or service request failed", Severity: SeverityWarning, Retryable: true},
		CodeChainRevert:       {Message: "transaction reverted", Severity: SeverityWarning},
		CodeProtocolParse:     {Message: "malformed service response", Severity: SeverityInfo},
		CodeClaimRejected:     {Message: "Claim failed", Severity: SeverityInfo},
		CodeFatalProvisioning: {Message: "account cannot be provisioned", Severity: SeverityCritical},
		CodeTimeout:           {Message: "deadline exceeded", Severity: SeverityWarning, Retryable: true},
	}
)

// Register 在包初始化时登记额外的错误码，例如执行单元崩溃。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码的描述，未登记的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 携带错误码、面向运维的描述以及底层原因。
type Error struct {
	code      Code
	message   string
	cause     error
	retryable *bool
}

// Option 调整单个错误实例。
type Option func(*Error)

// WithRetryable 覆盖错误码默认的重试属性，例如确认等待超时但交易可能已上链。
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// New 创建错误；message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 为底层错误附加错误码。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 输出 [CODE] 描述: 原因。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，errors.Is(err, New(CodeChainRevert, "")) 即可判断类别。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码，nil 视为 UNKNOWN。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含原因的描述。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Retryable 优先使用实例上的覆盖值。
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return AttributesOf(e.code).Retryable
}

// Severity 返回错误码登记的严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	return AttributesOf(e.code).Severity
}

// From 在错误链中查找 *Error。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误链中的错误码；普通错误视为 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 判断周期能否在退避后重试。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}

// IsFatal 判断错误是否属于账户级致命错误，命中时不再进行周期重试。
func IsFatal(err error) bool {
	return CodeOf(err) == CodeFatalProvisioning
}

// SeverityOf 返回任意错误的严重程度，未分类的错误按 UNKNOWN 视为 critical。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
