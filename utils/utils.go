package utils

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogOption struct {
	Dir   string
	Name  string
	Level string
	// Console mirrors every entry to stdout.
	Console bool
}

// NewLog builds the process logger. Components take a named child with
// logger.Named("scanner").Sugar().
func NewLog(opt LogOption) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opt.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opt.Level))); err != nil {
			return nil, err
		}
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := make([]zapcore.Core, 0, 2)
	if opt.Dir != "" {
		if err := os.MkdirAll(opt.Dir, os.ModePerm); err != nil {
			return nil, err
		}
		name := opt.Name
		if name == "" {
			name = "harvester"
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(opt.Dir, name+".log"),
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level))
	}
	if opt.Console || opt.Dir == "" {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.Lock(os.Stdout), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
