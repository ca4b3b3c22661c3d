package protocol

import (
	"go.uber.org/zap"

	"github.com/qiminjie89/livebus/pkg/logger"
)

const (
	DefaultMaxFrameSize = 8 << 20  // 8MB
	DefaultMaxBatchSize = 16 << 20 // 16MB
)

// WarningHandler 接收非致命的命令告警
type WarningHandler func(w *UnknownCommandWarning)

type options struct {
	registry     *Registry
	logger       *zap.Logger
	onWarning    WarningHandler
	strict       bool
	maxFrameSize int
	maxBatchSize int
	codecs       map[Protover]Codec
}

// Option 连接选项
type Option func(*options)

// WithRegistry 指定命令注册表，默认使用 DefaultRegistry()
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithLogger 指定日志，默认使用 logger.L()
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithWarningHandler 指定未知/不合法命令的告警处理函数，默认写 WARN 日志
func WithWarningHandler(h WarningHandler) Option {
	return func(o *options) {
		o.onWarning = h
	}
}

// WithStrictCommands 为 true 时，已注册命令的正文不符合其结构视为对端协议错误
func WithStrictCommands(strict bool) Option {
	return func(o *options) {
		o.strict = strict
	}
}

// WithMaxFrameSize 单帧大小上限，<= 0 表示不限制
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		o.maxFrameSize = n
	}
}

// WithMaxBatchSize 批量包解压后大小上限，<= 0 表示不限制
func WithMaxBatchSize(n int) Option {
	return func(o *options) {
		o.maxBatchSize = n
	}
}

// WithCodec 替换或新增某个协议版本的压缩算法
func WithCodec(protover Protover, codec Codec) Option {
	return func(o *options) {
		o.codecs[protover] = codec
	}
}

func newOptions(opts []Option) options {
	o := options{
		maxFrameSize: DefaultMaxFrameSize,
		maxBatchSize: DefaultMaxBatchSize,
		codecs:       DefaultCodecs(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	if o.logger == nil {
		o.logger = logger.L()
	}
	if o.onWarning == nil {
		l := o.logger
		o.onWarning = func(w *UnknownCommandWarning) {
			l.Warn(w.Kind.String(),
				zap.String("cmd", w.Cmd),
				zap.ByteString("body", w.Body),
				zap.Error(w.Err),
			)
		}
	}
	return o
}
