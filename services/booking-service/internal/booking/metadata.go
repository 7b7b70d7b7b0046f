package booking

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const (
	metaPartPrefix  = "booking_ctx_"
	metaPartsKey    = "booking_ctx_parts"
	metaTraceparent = "traceparent"
	metaOfferingKey = "offering_id"

	metaChunkSize = 500
	// Gateways cap metadata at 50 keys; keep room for the fixed keys.
	metaMaxParts = 40
)

// pendingBooking is everything needed to rebuild the reservation set after payment succeeds.
type pendingBooking struct {
	Version           int           `json:"v"`
	OfferingID        string        `json:"offering_id"`
	ProviderID        string        `json:"provider_id"`
	Timezone          string        `json:"tz"`
	Occurrences       []pendingSlot `json:"occ"`
	RecurrenceGroupID string        `json:"group,omitempty"`
	Client            pendingClient `json:"client"`
	AmountMinor       int64         `json:"amount"`
	Currency          string        `json:"currency"`
}

type pendingSlot struct {
	Start int64 `json:"s"`
	End   int64 `json:"e"`
}

type pendingClient struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (p pendingBooking) reservations(handle string, now time.Time) []model.Reservation {
	out := make([]model.Reservation, 0, len(p.Occurrences))
	for _, occ := range p.Occurrences {
		out = append(out, model.Reservation{
			OfferingID:        p.OfferingID,
			ProviderID:        p.ProviderID,
			StartTime:         time.Unix(occ.Start, 0).UTC(),
			EndTime:           time.Unix(occ.End, 0).UTC(),
			Status:            model.StatusConfirmed,
			PaymentStatus:     model.PaymentPaid,
			PaymentHandle:     handle,
			RecurrenceGroupID: p.RecurrenceGroupID,
			Client:            model.Client{Name: p.Client.Name, Email: p.Client.Email, Phone: p.Client.Phone},
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}
	return out
}

// encodeMetadata splits the JSON context into fixed-size string values.
func encodeMetadata(p pendingBooking, traceparent string) (map[string]string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	raw := string(b)
	parts := (len(raw) + metaChunkSize - 1) / metaChunkSize
	if parts > metaMaxParts {
		return nil, fmt.Errorf("%w: booking context too large (%d bytes)", ErrInvalidRequest, len(raw))
	}

	meta := make(map[string]string, parts+3)
	for i := 0; i < parts; i++ {
		end := (i + 1) * metaChunkSize
		if end > len(raw) {
			end = len(raw)
		}
		meta[metaPartPrefix+strconv.Itoa(i)] = raw[i*metaChunkSize : end]
	}
	meta[metaPartsKey] = strconv.Itoa(parts)
	meta[metaOfferingKey] = p.OfferingID
	if traceparent != "" {
		meta[metaTraceparent] = traceparent
	}
	return meta, nil
}

func decodeMetadata(meta map[string]string) (pendingBooking, error) {
	parts, err := strconv.Atoi(meta[metaPartsKey])
	if err != nil || parts <= 0 || parts > metaMaxParts {
		return pendingBooking{}, fmt.Errorf("%w: missing booking context", ErrInvalidRequest)
	}
	var sb strings.Builder
	for i := 0; i < parts; i++ {
		chunk, ok := meta[metaPartPrefix+strconv.Itoa(i)]
		if !ok {
			return pendingBooking{}, fmt.Errorf("%w: booking context part %d missing", ErrInvalidRequest, i)
		}
		sb.WriteString(chunk)
	}

	var p pendingBooking
	if err := json.Unmarshal([]byte(sb.String()), &p); err != nil {
		return pendingBooking{}, fmt.Errorf("%w: corrupt booking context: %v", ErrInvalidRequest, err)
	}
	if p.OfferingID == "" || p.ProviderID == "" || len(p.Occurrences) == 0 {
		return pendingBooking{}, fmt.Errorf("%w: incomplete booking context", ErrInvalidRequest)
	}
	return p, nil
}
