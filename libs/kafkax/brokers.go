package kafkax

import (
	"strings"
)

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Topic joins a prefix and an event kind, e.g. ("slotbook", "booking.confirmed") -> "slotbook.booking.confirmed".
func Topic(prefix, kind string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return kind
	}
	return prefix + "." + kind
}
