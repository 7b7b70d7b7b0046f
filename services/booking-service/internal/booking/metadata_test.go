package booking

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/zone"
)

func TestMetadata_ChunksLargeContext(t *testing.T) {
	p := pendingBooking{
		Version:    1,
		OfferingID: "paid",
		ProviderID: "prov",
		Timezone:   "Asia/Tokyo",
		Client:     pendingClient{Name: strings.Repeat("n", 700), Email: "a@example.com"},
		Currency:   "usd",
	}
	for i := 0; i < 4; i++ {
		p.Occurrences = append(p.Occurrences, pendingSlot{Start: int64(1000 + i), End: int64(2800 + i)})
	}

	meta, err := encodeMetadata(p, "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if meta[metaPartsKey] != "2" {
		t.Fatalf("expected 2 parts, got %s", meta[metaPartsKey])
	}
	for k, v := range meta {
		if len(v) > metaChunkSize {
			t.Fatalf("value of %s exceeds %d chars", k, metaChunkSize)
		}
	}

	got, err := decodeMetadata(meta)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Client.Name != p.Client.Name || len(got.Occurrences) != 4 || got.Timezone != "Asia/Tokyo" {
		t.Fatalf("round trip lost data: %+v", got)
	}

	rs := got.reservations("pi_1", time.Unix(0, 0))
	if len(rs) != 4 || rs[0].PaymentStatus != model.PaymentPaid || rs[0].PaymentHandle != "pi_1" {
		t.Fatalf("unexpected reservations: %+v", rs)
	}
}

func TestMetadata_RejectsCorruptContext(t *testing.T) {
	cases := []map[string]string{
		{},
		{metaPartsKey: "2", metaPartPrefix + "0": "{"},
		{metaPartsKey: "1", metaPartPrefix + "0": "{not json"},
		{metaPartsKey: "1", metaPartPrefix + "0": `{"offering_id":"x"}`},
	}
	for i, meta := range cases {
		if _, err := decodeMetadata(meta); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestExpandDates(t *testing.T) {
	first := zone.Date{Year: 2026, Month: time.January, Day: 31}
	open := model.Offering{RecurrenceEnabled: true, MaxRecurrence: 3}

	dates, err := expandDates(first, &Recurrence{Frequency: Monthly, Count: 5}, open)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []string{"2026-01-31", "2026-03-03", "2026-03-31"}
	if len(dates) != len(want) {
		t.Fatalf("expected %d dates, got %v", len(want), dates)
	}
	for i := range want {
		if dates[i].String() != want[i] {
			t.Fatalf("date %d: expected %s, got %s", i, want[i], dates[i])
		}
	}

	dates, _ = expandDates(first, &Recurrence{Frequency: Biweekly, Count: 2}, open)
	if dates[1].String() != "2026-02-14" {
		t.Fatalf("biweekly: got %s", dates[1])
	}
	if dates, _ := expandDates(first, nil, model.Offering{}); len(dates) != 1 {
		t.Fatalf("no recurrence must give one date")
	}
	if _, err := expandDates(first, &Recurrence{Frequency: "daily", Count: 2}, open); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := expandDates(first, &Recurrence{Frequency: Weekly, Count: 2}, model.Offering{}); !errors.Is(err, ErrRecurrenceNotAllowed) {
		t.Fatalf("expected ErrRecurrenceNotAllowed, got %v", err)
	}
}

func TestReason(t *testing.T) {
	err := atDate(ErrGroupCapacityExceeded, zone.Date{Year: 2026, Month: time.February, Day: 2})
	if Reason(err) != "group_capacity_exceeded" {
		t.Fatalf("unexpected reason %q", Reason(err))
	}
	if d, ok := FailedDate(err); !ok || d.String() != "2026-02-02" {
		t.Fatalf("unexpected date %v %v", d, ok)
	}
	if Reason(persistence(errors.New("disk full"))) != "persistence_failure" {
		t.Fatalf("persistence errors must map to persistence_failure")
	}
	if Reason(fmt.Errorf("%w: %w", ErrPaymentUnavailable, errors.New("timeout"))) != "payment_unavailable" {
		t.Fatalf("gateway lookup failures must map to payment_unavailable")
	}
	if Reason(errors.New("other")) != "" {
		t.Fatalf("unknown errors have no reason")
	}
}
