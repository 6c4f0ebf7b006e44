package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

type ReferenceType string

const (
	ReferenceTypePaymentRequest   ReferenceType = "PR"
	ReferenceTypeMonthlyPayment   ReferenceType = "MP"
	ReferenceTypeScheduledPayment ReferenceType = "SP"
	ReferenceTypeActualInflow     ReferenceType = "AI"
	ReferenceTypeProjectedInflow  ReferenceType = "PI"
	ReferenceTypeOpeningBalance   ReferenceType = "OB"
	ReferenceTypeLedgerMonth      ReferenceType = "LM"
	ReferenceTypeLedgerRebuild    ReferenceType = "LR"
	ReferenceTypeLedgerCategory   ReferenceType = "LC"
)

// ReferenceTypeFor maps an obligation kind to its audit/outbox reference type.
func ReferenceTypeFor(kind ObligationKind) ReferenceType {
	switch kind {
	case ObligationKindMonthly:
		return ReferenceTypeMonthlyPayment
	case ObligationKindScheduled:
		return ReferenceTypeScheduledPayment
	}
	return ReferenceTypePaymentRequest
}

type History struct {
	ID            int           `gorm:"primary_key" json:"id"`
	ActionType    HistoryAction `gorm:"size:10;not null" json:"action_type"`
	Before        string        `gorm:"type:text" json:"before"`
	After         string        `gorm:"type:text" json:"after"`
	Description   string        `gorm:"type:text;not null" json:"description"`
	ReferenceID   int           `gorm:"index:idx_history_reference,priority:2" json:"reference_id"`
	ReferenceType ReferenceType `gorm:"size:10;index:idx_history_reference,priority:1" json:"reference_type"`
	UserId        int           `gorm:"index;not null" json:"user_id"`
	UserName      string        `gorm:"size:100" json:"user_name"`
	CorrelationId string        `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

// NewHistoryRecord builds an audit row with the actor taken from ctx.
func NewHistoryRecord(ctx context.Context,
	actionType HistoryAction,
	referenceId int,
	referenceType ReferenceType,
	before interface{},
	after interface{},
	description string) (*History, error) {

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}
	userName, _ := utils.GetUserNameFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	history := History{
		ActionType:    actionType,
		Description:   description,
		ReferenceID:   referenceId,
		ReferenceType: referenceType,
		UserId:        userId,
		UserName:      userName,
		CorrelationId: correlationId,
	}
	var err error
	if history.Before, err = utils.MarshalToJSON(before); err != nil {
		return nil, err
	}
	if history.After, err = utils.MarshalToJSON(after); err != nil {
		return nil, err
	}
	return &history, nil
}

func DescribeAmount(typename string, verb string, date time.Time, amount decimal.Decimal) string {
	return fmt.Sprintf("%s %s for %s: %s.", typename, verb, utils.FormatDate(date), amount.StringFixed(2))
}
