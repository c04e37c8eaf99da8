// Package obslog provides the structured logger handed to every
// component at construction time (no ambient singleton, per the
// engine's "global state" design note). It wraps zap behind the logr
// interface, the way jordigilh-kubernaut wires its shared logging
// package to its controller-runtime-style components.
package obslog

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// New builds a production logger. Set dev=true for human-readable
// console output during local development.
func New(dev bool) (logr.Logger, error) {
	var zl *zap.Logger
	var err error
	if dev {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

// Noop returns a logger that discards everything; used by tests and by
// components constructed without an explicit logger.
func Noop() logr.Logger {
	return logr.Discard()
}

// Rejection logs a pre-storage quality-gate rejection with the fields
// §4.2 Stage A requires: episode id, score, threshold, failing sub-scores.
func Rejection(log logr.Logger, episodeID string, score, threshold float64, failing []string) {
	log.Info("episode rejected by quality gate",
		"episode_id", episodeID,
		"score", score,
		"threshold", threshold,
		"failing_subscores", failing,
	)
}

// HandledFailure logs any error recovered locally per §7's propagation
// policy: operation, kind, episode id (if any), and the cause chain.
func HandledFailure(log logr.Logger, operation, kind, episodeID string, cause error) {
	log.Info("handled failure",
		"operation", operation,
		"kind", kind,
		"episode_id", episodeID,
		"cause", errString(cause),
	)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
