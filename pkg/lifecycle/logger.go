/*
 * Copyright 2025 Carver Automation Corporation.
 *
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

// Package lifecycle builds the injected loggers and tracing used by simctl components.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/version"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/sdk/trace"
)

// LoggerImpl implements the logger.Logger interface without using global state
type LoggerImpl struct {
	logger zerolog.Logger
}

// NewLoggerImpl creates a new logger implementation
func NewLoggerImpl(config *logger.Config) (*LoggerImpl, error) {
	zlog, err := logger.New(config)
	if err != nil {
		return nil, err
	}

	return &LoggerImpl{logger: zlog}, nil
}

func (l *LoggerImpl) Debug() *zerolog.Event {
	return l.logger.Debug()
}

func (l *LoggerImpl) Info() *zerolog.Event {
	return l.logger.Info()
}

func (l *LoggerImpl) Warn() *zerolog.Event {
	return l.logger.Warn()
}

func (l *LoggerImpl) Error() *zerolog.Event {
	return l.logger.Error()
}

func (l *LoggerImpl) With() zerolog.Context {
	return l.logger.With()
}

func (l *LoggerImpl) WithComponent(component string) zerolog.Logger {
	return l.logger.With().Str("component", component).Logger()
}

// CreateComponentLogger creates a logger for a specific component.
func CreateComponentLogger(_ context.Context, component string, config *logger.Config) (logger.Logger, error) {
	loggerImpl, err := NewLoggerImpl(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &LoggerImpl{
		logger: loggerImpl.logger.With().Str("component", component).Logger(),
	}, nil
}

// Child derives a logger for a sub-component sharing the parent's output and level.
func Child(parent logger.Logger, component string) logger.Logger {
	return &LoggerImpl{logger: parent.WithComponent(component)}
}

// InitializeTracing installs the process tracer provider for a component.
func InitializeTracing(ctx context.Context, component string, config *logger.Config, log logger.Logger) (*trace.TracerProvider, error) {
	service := component

	var otelCfg *logger.OTelConfig
	if config != nil {
		otelCfg = &config.OTel

		if config.OTel.ServiceName != "" {
			service = config.OTel.ServiceName
		}
	}

	return logger.InitializeTracing(ctx, logger.TracingConfig{
		ServiceName:    service,
		ServiceVersion: version.GetVersion(),
		Logger:         log,
		OTel:           otelCfg,
	})
}
