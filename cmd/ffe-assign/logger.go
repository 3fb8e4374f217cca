// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025 Datadog, Inc.

package main

import (
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/DataDog/dd-ffe-go/exposure"
	"github.com/DataDog/dd-ffe-go/internal/log"
)

// logrusLogger prints SDK logs through logrus.
type logrusLogger struct {
	l *logrus.Logger
}

var _ log.Logger = (*logrusLogger)(nil)

func newLogrusLogger(w io.Writer, level string) (*logrusLogger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{l: l}, nil
}

func (l *logrusLogger) debug() bool {
	return l.l.IsLevelEnabled(logrus.DebugLevel)
}

// Log implements log.Logger.
func (l *logrusLogger) Log(msg string) {
	lvl, text := splitLevel(msg)
	l.l.WithField("component", "ffe").Log(lvl, text)
}

// splitLevel extracts the level from a "<prefix> <LEVEL>: <text>" message.
func splitLevel(msg string) (logrus.Level, string) {
	head, text, ok := strings.Cut(msg, ": ")
	if !ok {
		return logrus.InfoLevel, msg
	}
	switch head[strings.LastIndexByte(head, ' ')+1:] {
	case "ERROR":
		return logrus.ErrorLevel, text
	case "WARN":
		return logrus.WarnLevel, text
	case "INFO":
		return logrus.InfoLevel, text
	case "DEBUG":
		return logrus.DebugLevel, text
	}
	return logrus.InfoLevel, msg
}

// eventPrinter writes events as JSON lines.
type eventPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newEventPrinter(w io.Writer) *eventPrinter {
	return &eventPrinter{enc: json.NewEncoder(w)}
}

type printedEvent struct {
	Type  string `json:"type"`
	Event any    `json:"event"`
}

func (p *eventPrinter) LogAssignment(e exposure.AssignmentEvent) {
	p.print(printedEvent{Type: "assignment", Event: e})
}

func (p *eventPrinter) LogBanditAction(e exposure.BanditEvent) {
	p.print(printedEvent{Type: "bandit", Event: e})
}

func (p *eventPrinter) print(e printedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(e); err != nil {
		log.Warn("failed to print %s event: %v", e.Type, err)
	}
}
