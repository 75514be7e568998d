/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package database

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/listkit/utils"
)

// Logger is the key/value logging contract of the database package; fields
// alternate key and value.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

var (
	packageLoggerMu sync.RWMutex
	packageLogger   Logger
)

// SetLogger replaces the logger used by managers and hooks created
// afterwards. nil restores the "DATABASE" logrus logger.
func SetLogger(logger Logger) {
	packageLoggerMu.Lock()
	defer packageLoggerMu.Unlock()
	packageLogger = logger
}

func GetLogger() Logger {
	packageLoggerMu.RLock()
	logger := packageLogger
	packageLoggerMu.RUnlock()
	if logger != nil {
		return logger
	}
	return NewLogrusLogger(utils.NewLogger("DATABASE"))
}

type logrusLogger struct {
	log logrus.FieldLogger
}

// NewLogrusLogger adapts log so key/value pairs become logrus fields.
func NewLogrusLogger(log logrus.FieldLogger) Logger {
	return &logrusLogger{log: log}
}

func (l *logrusLogger) with(fields []interface{}) logrus.FieldLogger {
	if len(fields) < 2 {
		return l.log
	}
	data := make(logrus.Fields, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		data[fmt.Sprint(fields[i])] = fields[i+1]
	}
	return l.log.WithFields(data)
}

func (l *logrusLogger) Debug(msg string, fields ...interface{}) { l.with(fields).Debug(msg) }
func (l *logrusLogger) Info(msg string, fields ...interface{})  { l.with(fields).Info(msg) }
func (l *logrusLogger) Warn(msg string, fields ...interface{})  { l.with(fields).Warn(msg) }
func (l *logrusLogger) Error(msg string, fields ...interface{}) { l.with(fields).Error(msg) }
