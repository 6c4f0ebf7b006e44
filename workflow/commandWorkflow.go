package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/sirupsen/logrus"
)

const (
	CommandGenerateMonth = "generate_month"
	CommandRecompute     = "recompute"

	commandHandlerName = "cashflow-command"
)

// SystemContext marks ctx as coming from a scheduler or command message rather than a user.
func SystemContext(ctx context.Context, correlationId string) context.Context {
	ctx = utils.SetActorInContext(ctx, 0, "system", models.UserRoleSystem)
	if correlationId != "" {
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
	}
	return ctx
}

// ProcessCommand runs one command message at most once per messageId.
// A redelivered message that already succeeded is acknowledged without doing anything.
func (s *CashflowService) ProcessCommand(ctx context.Context, messageId string, msg config.CommandMessage) error {
	if strings.TrimSpace(messageId) == "" {
		return utils.NewValidationError("message id is required")
	}
	ctx = SystemContext(ctx, msg.CorrelationId)
	logger := s.Logger.WithFields(logrus.Fields{
		"field":          "ProcessCommand",
		"command":        msg.Command,
		"message_id":     messageId,
		"correlation_id": msg.CorrelationId,
	})

	skip, err := s.Store.BeginIdempotency(ctx, commandHandlerName, messageId)
	if err != nil {
		if errors.Is(err, ErrIdempotencyInProgress) {
			return utils.NewConcurrencyConflictError(err)
		}
		return utils.AsAppError(err)
	}
	if skip {
		logger.Info("command already processed, skipping")
		return nil
	}

	if err := s.runCommand(ctx, msg); err != nil {
		if markErr := s.Store.MarkIdempotencyFailed(ctx, commandHandlerName, messageId, err); markErr != nil {
			config.LogError(s.Logger, "commandWorkflow.go", "ProcessCommand", "mark failed", messageId, markErr)
		}
		return err
	}
	if err := s.Store.MarkIdempotencySucceeded(ctx, commandHandlerName, messageId); err != nil {
		config.LogError(s.Logger, "commandWorkflow.go", "ProcessCommand", "mark succeeded", messageId, err)
		return utils.AsAppError(err)
	}
	logger.Info("command processed")
	return nil
}

func (s *CashflowService) runCommand(ctx context.Context, msg config.CommandMessage) error {
	switch strings.ToLower(strings.TrimSpace(msg.Command)) {
	case CommandGenerateMonth:
		year, month, err := utils.ParseMonth(msg.Month)
		if err != nil {
			return utils.NewValidationError("invalid month %q", msg.Month)
		}
		_, err = s.GenerateMonth(ctx, year, month)
		return err
	case CommandRecompute:
		var from time.Time
		if msg.FromDate != "" {
			d, err := utils.ParseDate(msg.FromDate)
			if err != nil {
				return utils.NewValidationError("invalid from_date %q", msg.FromDate)
			}
			from = d
		}
		_, err := s.RecomputeLedger(ctx, from)
		return err
	}
	return utils.NewValidationError("unknown command %q", msg.Command)
}
