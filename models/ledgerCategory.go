package models

import (
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
)

// LedgerCategory groups projected inflow lines and payments (rooms, F&B, utilities, ...).
type LedgerCategory struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name" binding:"required"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLedgerCategory struct {
	Name string `json:"name" binding:"required,max=100"`
}

func (input NewLedgerCategory) ToModel() (*LedgerCategory, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	return &LedgerCategory{Name: input.Name, IsActive: utils.NewTrue()}, nil
}

func (c LedgerCategory) Active() bool {
	return utils.DereferencePtr(c.IsActive, true)
}

func (c LedgerCategory) GetId() int {
	return c.ID
}

func (c LedgerCategory) GetDefault(id int) Data {
	return LedgerCategory{
		ID:       id,
		Name:     "",
		IsActive: utils.NewFalse(),
	}
}
