package domain

// QuotaReservation 标识一次已占用的参与机会，Release 时原样归还到同一天的计数上。
type QuotaReservation struct {
	UserID int64
	Day    string // yyyyMMdd，配额时区下的自然日
}
