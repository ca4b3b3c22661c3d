package protocol

import (
	"errors"
	"fmt"
	"sync"
)

// Registry 命令名 → 解码函数的映射。
// 未知命令第一次出现时会被记为通用类型，之后同名命令不再重复告警。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]DecodeFunc // 值为 nil 表示已见过、按通用类型处理
}

// NewRegistry 创建空的命令注册表
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]DecodeFunc),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry 返回进程级默认注册表，未指定 WithRegistry 的连接都使用它
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register 注册命令解码函数，重复注册时后者覆盖前者
func (r *Registry) Register(name string, decode DecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = decode
}

// RegisterType 以类型名的 UPPER_SNAKE 形式注册，如 "DanmuMsg" → DANMU_MSG
func (r *Registry) RegisterType(typeName string, decode DecodeFunc) {
	r.Register(UpperSnake(typeName), decode)
}

// Resolve 查找命令名。seen 为 false 表示从未见过；
// seen 为 true 且 decode 为 nil 表示已知按通用类型处理。
func (r *Registry) Resolve(name string) (decode DecodeFunc, seen bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decode, seen = r.entries[name]
	return decode, seen
}

// MemoizeGeneric 把未知命令记为通用类型。已注册的命令不受影响，返回是否新增。
func (r *Registry) MemoizeGeneric(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return false
	}
	r.entries[name] = nil
	return true
}

// Len 返回已注册（含已记为通用类型）的命令名数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset 清空注册表，测试使用
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]DecodeFunc)
}

// Clone 复制注册表
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry()
	for name, decode := range r.entries {
		c.entries[name] = decode
	}
	return c
}

var errCmdMismatch = errors.New("command: cmd field mismatch")

// Decode 解码命令正文：先按通用结构解码（失败即为错误），
// 再按 cmd 选择具体类型。未知命令或具体类型解码失败时降级为 GenericCommand 并返回告警；
// strict 为 true 时具体类型解码失败返回错误。
func (r *Registry) Decode(body []byte, strict bool) (Command, *UnknownCommandWarning, error) {
	generic, err := UnmarshalGenericCommand(body)
	if err != nil {
		return nil, nil, err
	}

	decode, seen := r.Resolve(generic.Cmd)
	if !seen {
		if r.MemoizeGeneric(generic.Cmd) {
			return generic, &UnknownCommandWarning{
				Kind: WarningUnknownCommand,
				Cmd:  generic.Cmd,
				Body: generic.Raw,
			}, nil
		}
		decode, _ = r.Resolve(generic.Cmd)
	}
	if decode == nil {
		return generic, nil, nil
	}

	cmd, err := decode(body)
	if err == nil && cmd.CommandName() != generic.Cmd {
		// 具体类型按结构体解码，键名不区分大小写，cmd 以精确匹配的结果为准
		err = fmt.Errorf("%w: got %q, want %q", errCmdMismatch, cmd.CommandName(), generic.Cmd)
	}
	if err != nil {
		if strict {
			return nil, nil, err
		}
		return generic, &UnknownCommandWarning{
			Kind: WarningInvalidCommand,
			Cmd:  generic.Cmd,
			Body: generic.Raw,
			Err:  err,
		}, nil
	}
	return cmd, nil, nil
}
