package protocol

import (
	"errors"
	"fmt"
)

// LocalProtocolError 本端误用：在当前角色/状态下发送了不合法的事件，
// 或在连接关闭后继续操作。调用方修正调用即可，连接状态不受影响。
type LocalProtocolError struct {
	Msg string
	Err error
}

func (e *LocalProtocolError) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *LocalProtocolError) Unwrap() error { return e.Err }

// RemoteProtocolError 对端违规：帧头/正文格式错误、未知操作码或协议版本、
// 解压失败，或在认证状态不允许时收到事件。返回该错误时连接已被关闭。
type RemoteProtocolError struct {
	Msg string
	Err error
}

func (e *RemoteProtocolError) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *RemoteProtocolError) Unwrap() error { return e.Err }

func localErrorf(format string, args ...any) error {
	return &LocalProtocolError{Msg: fmt.Sprintf(format, args...)}
}

func remoteErrorf(format string, args ...any) error {
	return &RemoteProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// asRemote 把解析过程中的任意错误规范化为 RemoteProtocolError
func asRemote(err error) *RemoteProtocolError {
	var remote *RemoteProtocolError
	if errors.As(err, &remote) {
		return remote
	}
	return &RemoteProtocolError{Err: err}
}

// IsLocal 判断 err 是否为本端协议错误
func IsLocal(err error) bool {
	var local *LocalProtocolError
	return errors.As(err, &local)
}

// IsRemote 判断 err 是否为对端协议错误
func IsRemote(err error) bool {
	var remote *RemoteProtocolError
	return errors.As(err, &remote)
}

// WarningKind 非致命命令警告的类别
type WarningKind int

const (
	WarningUnknownCommand WarningKind = iota // 未注册的命令名
	WarningInvalidCommand                    // 已注册命令的正文不符合其结构
)

func (k WarningKind) String() string {
	switch k {
	case WarningUnknownCommand:
		return "unknown_command"
	case WarningInvalidCommand:
		return "invalid_command"
	default:
		return "unknown"
	}
}

// UnknownCommandWarning 命令降级为 GenericCommand 时发出的通知，不会中断解析
type UnknownCommandWarning struct {
	Kind WarningKind
	Cmd  string
	Body []byte
	Err  error // WarningInvalidCommand 时为具体类型的解码错误
}

func (w *UnknownCommandWarning) Error() string {
	if w.Kind == WarningInvalidCommand {
		return fmt.Sprintf("invalid command: %s (%s): %v", w.Cmd, w.Body, w.Err)
	}
	return fmt.Sprintf("unknown command: %s (%s)", w.Cmd, w.Body)
}

func (w *UnknownCommandWarning) Unwrap() error { return w.Err }
