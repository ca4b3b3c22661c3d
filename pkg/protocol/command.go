package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Command 通过 OpCommand 传输的 JSON 业务命令，cmd 字段为类型判别符
type Command interface {
	Event
	CommandName() string
}

// CommandBase 所有命令共有的 cmd 字段，具体命令类型通过内嵌它实现 Command
type CommandBase struct {
	Cmd string `json:"cmd"`
}

func (b CommandBase) CommandName() string { return b.Cmd }

func (CommandBase) EventName() string { return "Command" }

// GenericCommand 没有注册具体类型的命令。
// 编码时只输出 cmd，Raw 保存收到的原始正文，方便调用方自行解析。
type GenericCommand struct {
	CommandBase
	Raw []byte `json:"-"`
}

// NewCommand 创建只有 cmd 字段的命令
func NewCommand(cmd string) *GenericCommand {
	return &GenericCommand{CommandBase: CommandBase{Cmd: cmd}}
}

// DecodeFunc 把命令正文解码为具体的命令类型
type DecodeFunc func(body []byte) (Command, error)

// JSONDecoder 为命令结构体 T 生成 DecodeFunc，*T 必须实现 Command
func JSONDecoder[T any, P interface {
	*T
	Command
}]() DecodeFunc {
	return func(body []byte) (Command, error) {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, err
		}
		return P(&v), nil
	}
}

var errMissingCmd = errors.New("command: missing required field cmd")

// MarshalCommand 编码命令正文（紧凑 JSON，字段按声明顺序）
func MarshalCommand(c Command) ([]byte, error) {
	return marshalJSON(c)
}

// UnmarshalGenericCommand 按通用结构解码命令，只要求 cmd 为字符串，其余字段忽略
func UnmarshalGenericCommand(body []byte) (*GenericCommand, error) {
	fields, err := objectFields(body)
	if err != nil {
		return nil, err
	}
	cmd, err := field[string](fields, "cmd")
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, errMissingCmd
	}
	c := NewCommand(*cmd)
	c.Raw = bytes.Clone(body)
	return c, nil
}

// objectFields 把 JSON 对象拆成字段，键名区分大小写
func objectFields(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// field 解码名为 name 的字段，字段不存在或为 null 时返回 nil
func field[T any](fields map[string]json.RawMessage, name string) (*T, error) {
	raw, ok := fields[name]
	if !ok {
		return nil, nil
	}
	var v *T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("field %s: %w", name, err)
	}
	return v, nil
}
