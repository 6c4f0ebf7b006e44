package models

import (
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

// MonthlyPayment recurs every month on DayOfMonth from StartDate until EndDate (nil = indefinite).
type MonthlyPayment struct {
	ID            int                  `gorm:"primary_key" json:"id"`
	HotelId       int                  `gorm:"not null;index" json:"hotel_id"`
	LedgerId      int                  `gorm:"not null;index" json:"ledger_id"`
	DayOfMonth    int                  `gorm:"not null" json:"day_of_month"`
	Amount        decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaymentStatus MonthlyPaymentStatus `gorm:"size:20;not null;index" json:"payment_status"`
	StartDate     time.Time            `gorm:"type:date;not null" json:"start_date"`
	EndDate       *time.Time           `gorm:"type:date;default:null" json:"end_date"`
	Remarks       string               `gorm:"type:text" json:"remarks"`
	CreatedBy     int                  `json:"created_by"`
	CreatedAt     time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMonthlyPayment struct {
	HotelId    int             `json:"hotel_id" binding:"required,gt=0"`
	LedgerId   int             `json:"ledger_id" binding:"required,gt=0"`
	DayOfMonth int             `json:"day_of_month" binding:"required,min=1,max=31"`
	Amount     decimal.Decimal `json:"amount"`
	// StartMonth is "YYYY-MM"; empty means the current month.
	StartMonth string `json:"start_month"`
	Remarks    string `json:"remarks"`
}

// ToModel validates input and builds an Active payment whose first occurrence is in StartMonth.
func (input NewMonthlyPayment) ToModel(today time.Time) (*MonthlyPayment, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, utils.NewValidationError("amount must be greater than zero")
	}
	year, month := today.Year(), today.Month()
	if strings.TrimSpace(input.StartMonth) != "" {
		var err error
		if year, month, err = utils.ParseMonth(input.StartMonth); err != nil {
			return nil, utils.NewValidationError("start_month: %v", err)
		}
	}
	return &MonthlyPayment{
		HotelId:       input.HotelId,
		LedgerId:      input.LedgerId,
		DayOfMonth:    input.DayOfMonth,
		Amount:        input.Amount,
		PaymentStatus: MonthlyPaymentStatusActive,
		StartDate:     utils.DateInMonth(year, month, input.DayOfMonth),
		Remarks:       strings.TrimSpace(input.Remarks),
	}, nil
}

// ApplyEdit copies the editable fields of draft. Status and EndDate are kept.
func (m *MonthlyPayment) ApplyEdit(draft *MonthlyPayment) {
	m.HotelId = draft.HotelId
	m.LedgerId = draft.LedgerId
	m.DayOfMonth = draft.DayOfMonth
	m.Amount = draft.Amount
	m.StartDate = draft.StartDate
	m.Remarks = draft.Remarks
}

// OccurrenceIn is the payment date in the given month, clamped to the month's last day.
func (m MonthlyPayment) OccurrenceIn(year int, month time.Month) time.Time {
	return utils.DateInMonth(year, month, m.DayOfMonth)
}

// NextOccurrenceOnOrAfter returns the first occurrence not before date, or false when the series has ended.
func (m MonthlyPayment) NextOccurrenceOnOrAfter(date time.Time) (time.Time, bool) {
	date = utils.NormalizeDate(date)
	occ := m.OccurrenceIn(date.Year(), date.Month())
	if occ.Before(date) {
		next := time.Date(date.Year(), date.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		occ = m.OccurrenceIn(next.Year(), next.Month())
	}
	start := utils.NormalizeDate(m.StartDate)
	if occ.Before(start) {
		occ = start
	}
	if m.EndDate != nil && occ.After(utils.NormalizeDate(*m.EndDate)) {
		return time.Time{}, false
	}
	return occ, true
}

func (m MonthlyPayment) ObligationKind() ObligationKind { return ObligationKindMonthly }

func (m MonthlyPayment) ObligationId() int { return m.ID }

// Occurrences ignores PaymentStatus: stopping a series closes it with EndDate, so past
// occurrences of an Inactive payment still count.
func (m MonthlyPayment) Occurrences(from, to time.Time) []Occurrence {
	from, to = utils.NormalizeDate(from), utils.NormalizeDate(to)
	start := utils.NormalizeDate(m.StartDate)
	if from.Before(start) {
		from = start
	}
	if m.EndDate != nil {
		to = utils.MinDate(to, utils.NormalizeDate(*m.EndDate))
	}
	if to.Before(from) {
		return nil
	}
	var out []Occurrence
	cursor := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cursor.After(to) {
		occ := m.OccurrenceIn(cursor.Year(), cursor.Month())
		if inRange(occ, from, to) {
			out = append(out, Occurrence{Date: occ, Amount: m.Amount, Kind: ObligationKindMonthly, ObligationId: m.ID})
		}
		cursor = cursor.AddDate(0, 1, 0)
	}
	return out
}

func (m MonthlyPayment) ContributionOn(date time.Time) decimal.Decimal {
	return contributionFromOccurrences(m, date)
}

func (m MonthlyPayment) LastOccurrence() *time.Time {
	if m.EndDate == nil {
		return nil
	}
	last := utils.NormalizeDate(*m.EndDate)
	occ := m.OccurrenceIn(last.Year(), last.Month())
	if occ.After(last) {
		prev := time.Date(last.Year(), last.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		occ = m.OccurrenceIn(prev.Year(), prev.Month())
	}
	if occ.Before(utils.NormalizeDate(m.StartDate)) {
		return nil
	}
	return &occ
}
