package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
)

// AssignmentChanged is published after every successful assignment write
type AssignmentChanged struct {
	Slot   string       `json:"slot"`
	UID    string       `json:"uid"`
	Intent model.Intent `json:"intent"`
	Actor  string       `json:"actor"`
	Admin  bool         `json:"admin"`
	At     time.Time    `json:"at"`
}

// Publisher delivers assignment events to downstream consumers
type Publisher interface {
	PublishAssignmentChanged(ctx context.Context, evt AssignmentChanged) error
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) PublishAssignmentChanged(ctx context.Context, evt AssignmentChanged) error {
	p.Logger.Info("Assignment changed",
		zap.String("slot", evt.Slot),
		zap.String("uid", evt.UID),
		zap.String("intent", string(evt.Intent)),
		zap.String("actor", evt.Actor),
		zap.Bool("admin", evt.Admin))
	return nil
}
