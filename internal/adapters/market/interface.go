package market

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/yhwang-dev/tradeshield/pkg/models"
)

// DataClient is the market data surface the pipeline consumes. The
// shadow tracker marks to market through GetCurrentPrice, the regime
// builder reads index history, the constitution cross-checks liquidity
// through holders and insider filings.
type DataClient interface {
	GetCurrentPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	GetHistory(ctx context.Context, ticker string, days int) ([]models.PriceBar, error)
	GetInstitutionalHolders(ctx context.Context, ticker string) ([]models.InstitutionalHolder, error)
	GetInsiderTrades(ctx context.Context, ticker string) ([]models.InsiderTrade, error)
}
