package models

import (
	"encoding/json"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentRequest is a one-off payment that moves through an approval workflow.
// Only Transfer Completed requests touch the ledger, on their due date.
type PaymentRequest struct {
	ID              int                  `gorm:"primary_key" json:"id"`
	HotelId         int                  `gorm:"not null;index" json:"hotel_id"`
	VendorId        int                  `gorm:"not null;index" json:"vendor_id"`
	DepartmentId    int                  `gorm:"not null;index" json:"department_id"`
	LedgerId        int                  `gorm:"not null;index" json:"ledger_id"`
	Amount          decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"amount"`
	EntryDate       time.Time            `gorm:"type:date;not null" json:"entry_date"`
	DueDate         time.Time            `gorm:"type:date;not null;index:idx_payment_request_due,priority:1" json:"due_date"`
	ApproverId      int                  `json:"approver_id"`
	PaymentGroup    string               `gorm:"size:100;not null;index" json:"payment_group"`
	Status          PaymentRequestStatus `gorm:"size:30;not null;index:idx_payment_request_due,priority:2" json:"status"`
	Remarks         string               `gorm:"type:text" json:"remarks"`
	Attachments     datatypes.JSON       `json:"attachments"`
	CreatedBy       int                  `gorm:"index" json:"created_by"`
	CreatedByName   string               `gorm:"size:100" json:"created_by_name"`
	StatusChangedBy int                  `json:"status_changed_by"`
	StatusChangedAt *time.Time           `json:"status_changed_at"`
	CreatedAt       time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// AttachmentRef points at a file kept by the external document store.
type AttachmentRef struct {
	Name        string `json:"name" binding:"required,max=255"`
	Url         string `json:"url" binding:"required,url"`
	ContentType string `json:"content_type,omitempty"`
}

type NewPaymentRequest struct {
	HotelId      int             `json:"hotel_id" binding:"required,gt=0"`
	VendorId     int             `json:"vendor_id" binding:"required,gt=0"`
	DepartmentId int             `json:"department_id" binding:"required,gt=0"`
	LedgerId     int             `json:"ledger_id" binding:"required,gt=0"`
	Amount       decimal.Decimal `json:"amount"`
	EntryDate    string          `json:"entry_date"`
	DueDate      string          `json:"due_date" binding:"required"`
	ApproverId   int             `json:"approver_id" binding:"gte=0"`
	PaymentGroup string          `json:"payment_group" binding:"required,max=100"`
	Remarks      string          `json:"remarks"`
	Attachments  []AttachmentRef `json:"attachments" binding:"dive"`
}

// ToModel validates input and builds an unsaved request. Status is left for the caller to set.
func (input NewPaymentRequest) ToModel(today time.Time) (*PaymentRequest, error) {
	input.PaymentGroup = strings.TrimSpace(input.PaymentGroup)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, utils.NewValidationError("amount must be greater than zero")
	}
	dueDate, err := utils.ParseDate(input.DueDate)
	if err != nil {
		return nil, utils.NewValidationError("due_date: %v", err)
	}
	entryDate := utils.NormalizeDate(today)
	if strings.TrimSpace(input.EntryDate) != "" {
		if entryDate, err = utils.ParseDate(input.EntryDate); err != nil {
			return nil, utils.NewValidationError("entry_date: %v", err)
		}
	}
	attachments, err := json.Marshal(input.Attachments)
	if err != nil {
		return nil, utils.NewValidationError("attachments: %v", err)
	}
	if len(input.Attachments) == 0 {
		attachments = []byte("[]")
	}
	return &PaymentRequest{
		HotelId:      input.HotelId,
		VendorId:     input.VendorId,
		DepartmentId: input.DepartmentId,
		LedgerId:     input.LedgerId,
		Amount:       input.Amount,
		EntryDate:    entryDate,
		DueDate:      dueDate,
		ApproverId:   input.ApproverId,
		PaymentGroup: input.PaymentGroup,
		Remarks:      strings.TrimSpace(input.Remarks),
		Attachments:  datatypes.JSON(attachments),
	}, nil
}

// ApplyEdit copies editable fields from a validated draft, keeping identity, status and audit fields.
func (r *PaymentRequest) ApplyEdit(draft *PaymentRequest) {
	r.HotelId = draft.HotelId
	r.VendorId = draft.VendorId
	r.DepartmentId = draft.DepartmentId
	r.LedgerId = draft.LedgerId
	r.Amount = draft.Amount
	r.EntryDate = draft.EntryDate
	r.DueDate = draft.DueDate
	r.ApproverId = draft.ApproverId
	r.PaymentGroup = draft.PaymentGroup
	r.Remarks = draft.Remarks
	r.Attachments = draft.Attachments
}

func (r PaymentRequest) ObligationKind() ObligationKind { return ObligationKindRequest }

func (r PaymentRequest) ObligationId() int { return r.ID }

func (r PaymentRequest) Occurrences(from, to time.Time) []Occurrence {
	if r.Status != PaymentRequestStatusTransferCompleted {
		return nil
	}
	due := utils.NormalizeDate(r.DueDate)
	if !inRange(due, utils.NormalizeDate(from), utils.NormalizeDate(to)) {
		return nil
	}
	return []Occurrence{{Date: due, Amount: r.Amount, Kind: ObligationKindRequest, ObligationId: r.ID}}
}

func (r PaymentRequest) ContributionOn(date time.Time) decimal.Decimal {
	return contributionFromOccurrences(r, date)
}

func (r PaymentRequest) LastOccurrence() *time.Time {
	due := utils.NormalizeDate(r.DueDate)
	return &due
}
