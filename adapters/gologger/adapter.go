// Package gologger resolves glog loggers and maps them onto the go-job
// logging contracts used by the sweep queue worker.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Bridge carries one resolved logging setup in both the glog and go-job
// shapes, so the sweep worker and the rest of the module log through the
// same destination.
type Bridge struct {
	Provider    glog.LoggerProvider
	Logger      glog.Logger
	JobProvider job.LoggerProvider
	JobLogger   job.Logger
}

// NewBridge resolves name/provider/logger with glog's precedence
// (provider over logger over nop) and wraps the result for go-job.
func NewBridge(name string, provider glog.LoggerProvider, logger glog.Logger) Bridge {
	resolvedProvider, resolvedLogger := glog.Resolve(name, provider, logger)
	bridge := Bridge{
		Provider: resolvedProvider,
		Logger:   resolvedLogger,
	}
	if resolvedProvider != nil {
		bridge.JobProvider = job.GoLoggerProvider(resolvedProvider)
	}
	if resolvedLogger != nil {
		bridge.JobLogger = job.GoLogger(resolvedLogger)
	}
	return bridge
}
