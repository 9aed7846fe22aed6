package zaplog

import (
	"sort"

	"github.com/AnishMulay/capfs/internal/log_service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogService forwards events to a zap logger. Used by the CLI, where
// logs go to stderr instead of a node log file.
type ZapLogService struct {
	logger *zap.Logger
	nodeID string
}

func NewZapLogService(nodeID string, minLogLevel string) (*ZapLogService, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(minLogLevel))

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogService{logger: logger, nodeID: nodeID}, nil
}

// NewZapLogServiceFromLogger wraps an existing logger, e.g. zaptest or zap.NewNop.
func NewZapLogServiceFromLogger(logger *zap.Logger, nodeID string) *ZapLogService {
	return &ZapLogService{logger: logger, nodeID: nodeID}
}

func zapLevel(level string) zapcore.Level {
	switch log_service.GetLevelValue(level) {
	case log_service.DebugLevelValue:
		return zapcore.DebugLevel
	case log_service.WarnLevelValue:
		return zapcore.WarnLevel
	case log_service.ErrorLevelValue:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (z *ZapLogService) fields(event log_service.LogEvent) []zap.Field {
	keys := make([]string, 0, len(event.Metadata))
	for k := range event.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+1)
	fields = append(fields, zap.String("node", z.nodeID))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, event.Metadata[k]))
	}
	return fields
}

func (z *ZapLogService) Debug(event log_service.LogEvent) {
	z.logger.Debug(event.Message, z.fields(event)...)
}

func (z *ZapLogService) Info(event log_service.LogEvent) {
	z.logger.Info(event.Message, z.fields(event)...)
}

func (z *ZapLogService) Warn(event log_service.LogEvent) {
	z.logger.Warn(event.Message, z.fields(event)...)
}

func (z *ZapLogService) Error(event log_service.LogEvent) {
	z.logger.Error(event.Message, z.fields(event)...)
}

func (z *ZapLogService) Sync() error {
	return z.logger.Sync()
}

var _ log_service.LogService = (*ZapLogService)(nil)
