package ledger

import (
	"fmt"

	"github.com/dcdpr/taxcount/internal/amount"
)

// Pair names a trading pair's base and quote assets.
type Pair struct {
	Base  amount.Asset
	Quote amount.Asset
}

// pairTable is the fixed set of trading pairs this exchange ledger can
// reference. Trades CSV "pair" codes only ever come from this closed set;
// an unrecognized code is a parse error, not a new pair to infer.
var pairTable = map[string]Pair{
	"XBTUSD":  {amount.AssetBTC, amount.AssetUSD},
	"XBTEUR":  {amount.AssetBTC, amount.AssetEUR},
	"XBTCHF":  {amount.AssetBTC, amount.AssetCHF},
	"XBTJPY":  {amount.AssetBTC, amount.AssetJPY},
	"ETHUSD":  {amount.AssetETH, amount.AssetUSD},
	"ETHEUR":  {amount.AssetETH, amount.AssetEUR},
	"ETHXBT":  {amount.AssetETH, amount.AssetBTC},
	"ETHWUSD": {amount.AssetETHW, amount.AssetUSD},
	"ETHWXBT": {amount.AssetETHW, amount.AssetBTC},
	"USDCUSD": {amount.AssetUSDC, amount.AssetUSD},
	"USDTUSD": {amount.AssetUSDT, amount.AssetUSD},
	"EURUSD":  {amount.AssetEUR, amount.AssetUSD},
	"USDCHF":  {amount.AssetUSD, amount.AssetCHF},
}

// GetPair resolves a trades-CSV pair code to its (base, quote) assets.
func GetPair(code string) (Pair, error) {
	p, ok := pairTable[code]
	if !ok {
		return Pair{}, fmt.Errorf("unrecognized trading pair %q", code)
	}
	return p, nil
}
