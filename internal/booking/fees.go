package booking

import (
	"github.com/google/uuid"

	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// AddOnService is a provider catalog entry considered for a booking.
type AddOnService struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Name       string
	Price      int64
	Active     bool
	Available  bool
}

// FeeBreakdown is the priced result of a booking request. All amounts are
// minor currency units and FinalTotal always equals
// ConsultationFee + ServicesTotal + PlatformFee.
type FeeBreakdown struct {
	Currency        string
	ConsultationFee int64
	ServicesTotal   int64
	Subtotal        int64
	PlatformFee     int64
	FinalTotal      int64
	Lines           []ServiceLine
}

// FeeCalculator prices a booking: consultation fee plus selected add-on
// services plus the platform transaction fee. It has no side effects.
type FeeCalculator struct {
	feeBasisPoints int64
	logger         *logging.Logger
}

// NewFeeCalculator creates a calculator charging feeBasisPoints/10000 of
// the subtotal as the platform fee.
func NewFeeCalculator(feeBasisPoints int, logger *logging.Logger) *FeeCalculator {
	if logger == nil {
		logger = logging.Default()
	}
	return &FeeCalculator{feeBasisPoints: int64(feeBasisPoints), logger: logger}
}

// Calculate prices the booking. Selected services that do not belong to
// the provider, or are inactive or unavailable, are excluded and logged;
// they never fail the whole booking.
func (c *FeeCalculator) Calculate(providerID uuid.UUID, currency string, consultationFee int64, selected []uuid.UUID, catalog []AddOnService) FeeBreakdown {
	byID := make(map[uuid.UUID]AddOnService, len(catalog))
	for _, svc := range catalog {
		byID[svc.ID] = svc
	}

	var servicesTotal int64
	var lines []ServiceLine
	seen := make(map[uuid.UUID]bool, len(selected))
	for _, id := range selected {
		// A repeated selection is priced once; the line snapshot carries a
		// unique constraint per (booking, service).
		if seen[id] {
			continue
		}
		seen[id] = true
		svc, ok := byID[id]
		if !ok || svc.ProviderID != providerID {
			c.logger.Warn("add-on service not in provider catalog, excluded", "service_id", id, "provider_id", providerID)
			continue
		}
		if !svc.Active || !svc.Available {
			c.logger.Warn("add-on service inactive or unavailable, excluded", "service_id", id, "provider_id", providerID)
			continue
		}
		line := ServiceLine{
			ID:        uuid.New(),
			ServiceID: svc.ID,
			Name:      svc.Name,
			UnitPrice: svc.Price,
			Quantity:  1,
			Subtotal:  svc.Price,
		}
		servicesTotal += line.Subtotal
		lines = append(lines, line)
	}

	subtotal := consultationFee + servicesTotal
	platformFee := roundHalfUp(subtotal*c.feeBasisPoints, 10000)

	return FeeBreakdown{
		Currency:        currency,
		ConsultationFee: consultationFee,
		ServicesTotal:   servicesTotal,
		Subtotal:        subtotal,
		PlatformFee:     platformFee,
		FinalTotal:      subtotal + platformFee,
		Lines:           lines,
	}
}

// roundHalfUp divides numerator by denominator rounding half away from zero.
func roundHalfUp(numerator, denominator int64) int64 {
	return (numerator + denominator/2) / denominator
}
