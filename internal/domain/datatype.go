package domain

// DataType identifies a category of market data handled by the service.
type DataType string

const (
	TypeUSStock      DataType = "us-stock"
	TypeJPStock      DataType = "jp-stock"
	TypeETF          DataType = "etf"
	TypeMutualFund   DataType = "mutual-fund"
	TypeExchangeRate DataType = "exchange-rate"
)

// KnownDataTypes lists every recognized type in a stable order.
var KnownDataTypes = []DataType{
	TypeUSStock,
	TypeJPStock,
	TypeETF,
	TypeMutualFund,
	TypeExchangeRate,
}

func IsKnownDataType(t DataType) bool {
	for _, k := range KnownDataTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Category groups data types into the four fallback snapshot documents.
type Category string

const (
	CategoryStocks        Category = "stocks"
	CategoryETFs          Category = "etfs"
	CategoryMutualFunds   Category = "mutualFunds"
	CategoryExchangeRates Category = "exchangeRates"
)

// CategoryOf maps a data type to its snapshot document.
func CategoryOf(t DataType) (Category, bool) {
	switch t {
	case TypeUSStock, TypeJPStock:
		return CategoryStocks, true
	case TypeETF:
		return CategoryETFs, true
	case TypeMutualFund:
		return CategoryMutualFunds, true
	case TypeExchangeRate:
		return CategoryExchangeRates, true
	default:
		return "", false
	}
}
