package domain

import (
	"time"
)

// OrderRecord is the persisted form of an order in the trade journal.
// Decimals are stored as strings at the storage boundary.
type OrderRecord struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Instrument string `gorm:"index" json:"instrument"`
	Side       string `json:"side"`
	Type       string `json:"type"`
	Quantity   string `json:"quantity"`
	LimitPrice string `json:"limit_price"`

	Status      string    `gorm:"index" json:"status"`
	Reason      string    `json:"reason"`
	FilledPrice string    `json:"filled_price"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FillRecord is one confirmed execution in the trade journal.
type FillRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    string    `gorm:"index" json:"order_id"`
	Instrument string    `json:"instrument"`
	Side       string    `json:"side"`
	Quantity   string    `json:"quantity"`
	Price      string    `json:"price"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Record converts an order to its journal form.
func (o *Order) Record() OrderRecord {
	return OrderRecord{
		ID:          o.ID,
		Instrument:  o.Instrument,
		Side:        string(o.Side),
		Type:        string(o.Type),
		Quantity:    o.Quantity.String(),
		LimitPrice:  o.LimitPrice.String(),
		Status:      string(o.Status),
		Reason:      o.Reason,
		FilledPrice: o.FilledPrice.String(),
		CreatedAt:   o.CreatedAt,
	}
}

// Record converts a fill to its journal form.
func (f *Fill) Record() FillRecord {
	return FillRecord{
		OrderID:    f.OrderID,
		Instrument: f.Instrument,
		Side:       string(f.Side),
		Quantity:   f.Quantity.String(),
		Price:      f.Price.String(),
		ExecutedAt: f.ExecutedAt,
	}
}
