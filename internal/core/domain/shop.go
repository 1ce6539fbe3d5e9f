package domain

// Shop is the cache-backed entity served through the cache client. Only
// scalar fields: the hash encoding does not support nested values.
type Shop struct {
	ID       int64   `redis:"id"`
	Name     string  `redis:"name"`
	Address  string  `redis:"address"`
	AvgPrice int64   `redis:"avgPrice"`
	Score    float64 `redis:"score"`
	Open     bool    `redis:"open"`
}
