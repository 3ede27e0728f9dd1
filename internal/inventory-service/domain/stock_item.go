package domain

// Release returns the stock held by an order to the shelf.
type Release struct {
	OrderID string
	Items   []StockItem
	Reason  string
}

type StockItem struct {
	ProductID string
	Quantity  int
}
