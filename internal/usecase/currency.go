package usecase

import "strconv"

// FormatRupees renders an amount with Indian digit grouping, e.g.
// 500000 -> "₹5,00,000". Negative amounts keep the sign in front.
func FormatRupees(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	s := strconv.FormatInt(amount, 10)
	if len(s) <= 3 {
		return sign + "₹" + s
	}
	// Last three digits form one group, the rest group in pairs.
	head, tail := s[:len(s)-3], s[len(s)-3:]
	grouped := ""
	for len(head) > 2 {
		grouped = "," + head[len(head)-2:] + grouped
		head = head[:len(head)-2]
	}
	return sign + "₹" + head + grouped + "," + tail
}
