package domain

type OrderCreated struct {
	OrderID string `json:"order_id"`
	Number  string `json:"number"`
	UserID  string `json:"user_id"`
	Total   string `json:"total"`
	Status  string `json:"status"`
}

type OrderStatusChanged struct {
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Source  string `json:"source"`
}
