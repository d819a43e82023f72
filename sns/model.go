package sns

// Event announces one processed record to downstream consumers. Delivery is
// at-least-once; consumers key on bucket and key like the lake write does.
type Event struct {
	Bucket        string `json:"bucket"`
	Key           string `json:"key"`
	ProcessedKey  string `json:"processedKey"`
	TransactionID string `json:"transactionID"`
	ProcessedAt   string `json:"processedAt"`
}
