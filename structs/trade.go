package structs

// TradeRecord is the latest trade of one symbol as it sits in its shared memory slot.
// price and quantity stay as decimal text so nothing is rounded across the boundary.
type TradeRecord struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	EventTime uint64 `json:"event_time"` // exchange event time, ms
	TradeTime uint64 `json:"trade_time"` // trade time, ms
	TradeID   uint64 `json:"trade_id"`   // monotonic per symbol, used for change detection
	IsMaker   bool   `json:"is_maker"`
}

// IsZero reports whether the record is the value of a slot nobody has written yet.
func (t TradeRecord) IsZero() bool {
	return t == TradeRecord{}
}
