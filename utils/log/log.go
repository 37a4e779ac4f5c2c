// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines log configuration.
type Config struct {
	Level       string `yaml:"level"`
	Disable     bool   `yaml:"disable"`
	ServiceName string `yaml:"service_name"`
	Path        string `yaml:"path"`
	Encoding    string `yaml:"encoding"`
}

var _default *zap.SugaredLogger
var once sync.Once

// New creates a logger that is not default.
func New(config Config, fields map[string]interface{}) (*zap.Logger, error) {
	if config.Disable {
		return zap.NewNop(), nil
	}
	if config.Encoding == "" {
		config.Encoding = "console"
	}
	level := zapcore.InfoLevel
	if config.Level != "" {
		if err := level.UnmarshalText([]byte(config.Level)); err != nil {
			return nil, err
		}
	}
	outputPaths := []string{"stdout"}
	if config.Path != "" {
		outputPaths = []string{config.Path}
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	if config.ServiceName != "" {
		fields["service_name"] = config.ServiceName
	}
	return zap.Config{
		Level: zap.NewAtomicLevelAt(level),
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: config.Encoding,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			NameKey:        "logger_name",
			LevelKey:       "level",
			TimeKey:        "ts",
			CallerKey:      "caller",
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       outputPaths,
		InitialFields:     fields,
	}.Build()
}

// ConfigureLogger configures a global zap logger instance.
func ConfigureLogger(config Config) (*zap.SugaredLogger, error) {
	logger, err := New(config, nil)
	if err != nil {
		return nil, err
	}
	_default = logger.Sugar()
	return _default, nil
}

// Default returns the default global logger.
func Default() *zap.SugaredLogger {
	once.Do(func() {
		if _default == nil {
			logger, err := New(Config{}, nil)
			if err != nil {
				panic(err)
			}
			_default = logger.Sugar()
		}
	})
	return _default
}

// Debug logs at debug level using the default logger.
func Debug(args ...interface{}) {
	Default().Debug(args...)
}

// Info logs at info level using the default logger.
func Info(args ...interface{}) {
	Default().Info(args...)
}

// Warn logs at warn level using the default logger.
func Warn(args ...interface{}) {
	Default().Warn(args...)
}

// Error logs at error level using the default logger.
func Error(args ...interface{}) {
	Default().Error(args...)
}

// Fatal logs at fatal level using the default logger, then exits.
func Fatal(args ...interface{}) {
	Default().Fatal(args...)
}

// Debugf logs at debug level using the default logger.
func Debugf(format string, args ...interface{}) {
	Default().Debugf(format, args...)
}

// Infof logs at info level using the default logger.
func Infof(format string, args ...interface{}) {
	Default().Infof(format, args...)
}

// Warnf logs at warn level using the default logger.
func Warnf(format string, args ...interface{}) {
	Default().Warnf(format, args...)
}

// Errorf logs at error level using the default logger.
func Errorf(format string, args ...interface{}) {
	Default().Errorf(format, args...)
}

// Fatalf logs at fatal level using the default logger, then exits.
func Fatalf(format string, args ...interface{}) {
	Default().Fatalf(format, args...)
}

// With creates a child logger with structured context using the default
// logger.
func With(args ...interface{}) *zap.SugaredLogger {
	return Default().With(args...)
}
