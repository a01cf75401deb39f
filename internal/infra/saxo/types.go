package saxo

// FX spot universal instrument codes on the simulation gateway.
var uicBySymbol = map[string]int{
	"EUR/DKK": 16,
	"EUR/GBP": 17,
	"EUR/USD": 21,
	"GBP/USD": 22,
	"USD/JPY": 31,
}

var symbolByUIC = func() map[int]string {
	m := make(map[int]string, len(uicBySymbol))
	for sym, uic := range uicBySymbol {
		m[uic] = sym
	}
	return m
}()

// priceMessage is one streaming price update.
type priceMessage struct {
	Uic         int    `json:"Uic"`
	AssetType   string `json:"AssetType"`
	LastUpdated string `json:"LastUpdated"`
	Quote       struct {
		Bid float64 `json:"Bid"`
		Ask float64 `json:"Ask"`
		Mid float64 `json:"Mid"`
	} `json:"Quote"`
}

// orderRequest is the order placement payload for trade/v2/orders.
type orderRequest struct {
	Uic           int            `json:"Uic"`
	BuySell       string         `json:"BuySell"`
	AssetType     string         `json:"AssetType"`
	Amount        string         `json:"Amount"`
	OrderType     string         `json:"OrderType"`
	OrderRelation string         `json:"OrderRelation"`
	ManualOrder   bool           `json:"ManualOrder"`
	OrderDuration map[string]any `json:"OrderDuration"`
	AccountKey    string         `json:"AccountKey"`
}

type orderResponse struct {
	OrderID   string `json:"OrderId"`
	ErrorInfo *struct {
		ErrorCode string `json:"ErrorCode"`
		Message   string `json:"Message"`
	} `json:"ErrorInfo"`
}
