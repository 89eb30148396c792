package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/apperrors"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/repository"
)

// storeError translates repository failures into the apperrors taxonomy.
// AppErrors raised inside repository callbacks pass through unchanged.
func (s *fallEventService) storeError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound(apperrors.CodeEventNotFound, "event not found")
	case errors.Is(err, repository.ErrDeviceNotFound):
		return apperrors.NotFound(apperrors.CodeDeviceNotFound, "device not found")
	case errors.Is(err, repository.ErrEventUIDTaken):
		return apperrors.Conflict(apperrors.CodeEventUIDConflict, "eventUid already used by another device")
	case repository.IsUnavailable(err):
		s.logger.Warn("Store unavailable",
			zap.String("op", op),
			zap.Bool("ctx_done", ctx.Err() != nil),
			zap.Error(err),
		)
		return apperrors.Unavailable(err)
	case repository.IsInvalidInput(err):
		return apperrors.Validation(apperrors.CodeInvalidBody, "invalid value in request")
	default:
		s.logger.Error("Store operation failed", zap.String("op", op), zap.Error(err))
		return apperrors.Internal(err)
	}
}
