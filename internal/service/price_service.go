package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/oracle"
	"github.com/alanyoungcy/zetatrigger/internal/units"
)

// PriceView is the price as reported to API clients.
type PriceView struct {
	domain.PriceSnapshot
	Display string `json:"display"`
	Fresh   bool   `json:"fresh"`
	Reason  string `json:"reason,omitempty"`
}

// PriceService reads the oracle for display.
type PriceService struct {
	source oracle.Source
	guard  *oracle.Guard
}

// NewPriceService creates a PriceService.
func NewPriceService(source oracle.Source, guard *oracle.Guard) *PriceService {
	return &PriceService{source: source, guard: guard}
}

// Current returns the latest price and whether the engine would accept it.
func (s *PriceService) Current(ctx context.Context) (PriceView, error) {
	snap, err := s.source.ReadPrice(ctx)
	if err != nil {
		return PriceView{}, fmt.Errorf("price_service: read: %w", err)
	}
	v := PriceView{PriceSnapshot: snap, Display: units.FormatPrice(snap.Price), Fresh: true}
	if err := s.guard.Check(snap); err != nil {
		v.Fresh = false
		v.Reason = err.Error()
	}
	return v, nil
}
