package ride

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"ridebook/money"
)

const (
	minEstimateKM = 10
	maxEstimateKM = 30
)

// EstimateDistance is a placeholder distance for the booking form until
// a routing provider is wired in: somewhere between 10 and 30 km.
func EstimateDistance() decimal.Decimal {
	km := minEstimateKM + rand.Float64()*(maxEstimateKM-minEstimateKM)
	return money.Quantize(decimal.NewFromFloat(km))
}
