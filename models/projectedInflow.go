package models

import (
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/shopspring/decimal"
)

// ProjectedInflow is the per-category revenue forecast for one date. Informational only:
// it never feeds the closing balance.
type ProjectedInflow struct {
	ID          int                   `gorm:"primary_key" json:"id"`
	Date        time.Time             `gorm:"type:date;not null;uniqueIndex" json:"date"`
	TotalAmount decimal.Decimal       `gorm:"type:decimal(20,4);not null;default:0" json:"total_amount"`
	Lines       []ProjectedInflowLine `gorm:"foreignKey:ProjectedInflowId" json:"lines"`
	CreatedAt   time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type ProjectedInflowLine struct {
	ID                int             `gorm:"primary_key" json:"id"`
	ProjectedInflowId int             `gorm:"not null;uniqueIndex:uniq_projected_inflow_ledger" json:"projected_inflow_id"`
	LedgerId          int             `gorm:"not null;uniqueIndex:uniq_projected_inflow_ledger;index" json:"ledger_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProjectedInflowLine struct {
	LedgerId int             `json:"ledger_id" binding:"required,gt=0"`
	Amount   decimal.Decimal `json:"amount"`
}

type NewProjectedInflow struct {
	Lines []NewProjectedInflowLine `json:"lines" binding:"dive"`
}

func (input NewProjectedInflow) validate() error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	seen := make(map[int]bool, len(input.Lines))
	for _, line := range input.Lines {
		if seen[line.LedgerId] {
			return utils.NewValidationError("ledger %d appears more than once", line.LedgerId)
		}
		seen[line.LedgerId] = true
		if line.Amount.IsNegative() {
			return utils.NewValidationError("projected amount for ledger %d must not be negative", line.LedgerId)
		}
	}
	return nil
}

// LedgerIds returns the distinct ledger ids referenced by the input.
func (input NewProjectedInflow) LedgerIds() []int {
	ids := make([]int, 0, len(input.Lines))
	for _, line := range input.Lines {
		ids = append(ids, line.LedgerId)
	}
	return utils.UniqueSlice(ids)
}

// ReplaceLines validates input and swaps p's lines for it, recomputing the total.
func (p *ProjectedInflow) ReplaceLines(input NewProjectedInflow) error {
	if err := input.validate(); err != nil {
		return err
	}
	lines := make([]ProjectedInflowLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		lines = append(lines, ProjectedInflowLine{
			ProjectedInflowId: p.ID,
			LedgerId:          line.LedgerId,
			Amount:            line.Amount,
		})
	}
	p.Lines = lines
	p.recomputeTotal()
	return nil
}

// EnsureLines adds a zero line for every ledger id that has none yet and reports whether it added any.
func (p *ProjectedInflow) EnsureLines(ledgerIds []int) bool {
	existing := make(map[int]bool, len(p.Lines))
	for _, line := range p.Lines {
		existing[line.LedgerId] = true
	}
	added := false
	for _, id := range ledgerIds {
		if existing[id] {
			continue
		}
		p.Lines = append(p.Lines, ProjectedInflowLine{ProjectedInflowId: p.ID, LedgerId: id, Amount: decimal.Zero})
		existing[id] = true
		added = true
	}
	p.sortLines()
	return added
}

// AmountByLedger is the ledger id -> amount mapping of the entry.
func (p ProjectedInflow) AmountByLedger() map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, len(p.Lines))
	for _, line := range p.Lines {
		out[line.LedgerId] = out[line.LedgerId].Add(line.Amount)
	}
	return out
}

func (p *ProjectedInflow) recomputeTotal() {
	total := decimal.Zero
	for _, line := range p.Lines {
		total = total.Add(line.Amount)
	}
	p.TotalAmount = total
	p.sortLines()
}

func (p *ProjectedInflow) sortLines() {
	sort.SliceStable(p.Lines, func(i, j int) bool { return p.Lines[i].LedgerId < p.Lines[j].LedgerId })
}
