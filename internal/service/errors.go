package service

import (
	"context"
	"errors"

	"github.com/shinyyama/collab-messaging/internal/apperr"
	"github.com/shinyyama/collab-messaging/internal/model"
	"github.com/shinyyama/collab-messaging/internal/reqctx"
	"github.com/shinyyama/collab-messaging/internal/repository"
	"github.com/sirupsen/logrus"
)

// storeErr translates repository and model errors into the application taxonomy.
func storeErr(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(notFoundMsg)
	case errors.Is(err, model.ErrInvalidParticipants):
		return apperr.Wrap(apperr.KindConflictInvariant, "a conversation needs two distinct participants", err)
	case errors.Is(err, model.ErrEmptyMessage):
		return apperr.Wrap(apperr.KindValidation, "content or attachment is required", err)
	case errors.Is(err, model.ErrSelfMessage):
		return apperr.Wrap(apperr.KindValidation, "cannot send a message to yourself", err)
	}
	return apperr.Wrap(apperr.KindInternal, "storage failure", err)
}

// degraded logs a failed best-effort side effect. It never returns the error.
func degraded(ctx context.Context, log *logrus.Logger, what string, err error, fields logrus.Fields) {
	if err == nil {
		return
	}
	entry := log.WithFields(fields).WithField("kind", apperr.KindDownstreamDegraded)
	if rid := reqctx.RID(ctx); rid != "" {
		entry = entry.WithField("request_id", rid)
	}
	entry.WithError(apperr.Degraded(what, err)).Warn("side effect failed")
}
