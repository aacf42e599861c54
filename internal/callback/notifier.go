// Package callback receives asynchronous payment outcome notifications and
// acknowledges them idempotently.
package callback

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/law-makers/cvpress/internal/cache"
	"github.com/law-makers/cvpress/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultRetention is how long an acknowledged event is remembered for
// redelivery detection.
const DefaultRetention = 24 * time.Hour

// State is a transaction's position in the notification state machine.
type State string

const (
	Pending      State = "pending"
	Acknowledged State = "acknowledged"
)

// Ack is the response body sent for every delivery.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// Accepted is the only acknowledgment ever issued.
var Accepted = Ack{ResultCode: 0, ResultDesc: "Accepted"}

// Event is a parsed provider callback. Fields other than Key and Payload
// are filled only when the payload has the STK callback shape.
type Event struct {
	Key               string
	MerchantRequestID string
	ResultCode        *int
	ResultDesc        string
	Payload           json.RawMessage
}

// Parse reads an event of arbitrary shape. The key is the checkout request
// id when present, otherwise a digest of the payload.
func Parse(payload []byte) Event {
	ev := Event{Payload: json.RawMessage(payload)}

	var body struct {
		Body struct {
			StkCallback struct {
				MerchantRequestID string `json:"MerchantRequestID"`
				CheckoutRequestID string `json:"CheckoutRequestID"`
				ResultCode        *int   `json:"ResultCode"`
				ResultDesc        string `json:"ResultDesc"`
			} `json:"stkCallback"`
		} `json:"Body"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		cb := body.Body.StkCallback
		ev.Key = cb.CheckoutRequestID
		ev.MerchantRequestID = cb.MerchantRequestID
		ev.ResultCode = cb.ResultCode
		ev.ResultDesc = cb.ResultDesc
	}

	if ev.Key == "" {
		sum := sha256.Sum256(bytes.TrimSpace(payload))
		ev.Key = "sha256:" + hex.EncodeToString(sum[:])
	}
	return ev
}

// Receipt is what the notifier remembers about a transaction.
type Receipt struct {
	State      State
	ResultCode *int
	ResultDesc string
	Deliveries int
	UpdatedAt  time.Time
}

// Notifier acknowledges callbacks. Every delivery gets Accepted; the
// ledger only decides whether a delivery is the first or a repeat.
type Notifier struct {
	mu        sync.Mutex
	ledger    cache.Cache[Receipt]
	retention time.Duration
	now       func() time.Time
}

// NewNotifier keeps receipts in ledger for retention.
func NewNotifier(ledger cache.Cache[Receipt], retention time.Duration) *Notifier {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Notifier{ledger: ledger, retention: retention, now: time.Now}
}

// Expect records a transaction whose outcome will arrive later, in the
// Pending state. Known transactions are left unchanged.
func (n *Notifier) Expect(key string) {
	if key == "" {
		return
	}
	n.ledger.SetIfAbsent(key, Receipt{State: Pending, UpdatedAt: n.now()}, n.retention)
}

// Receive acknowledges payload. It never fails: redeliveries and payloads
// that are not JSON get the same acknowledgment as a first delivery.
func (n *Notifier) Receive(ctx context.Context, payload []byte) Ack {
	ev := Parse(payload)
	logger := zerolog.Ctx(ctx).With().Str("callback_key", ev.Key).Logger()

	n.mu.Lock()
	receipt, known := n.ledger.Get(ev.Key)
	first := !known || receipt.State != Acknowledged
	receipt.State = Acknowledged
	receipt.Deliveries++
	receipt.UpdatedAt = n.now()
	if first {
		receipt.ResultCode = ev.ResultCode
		receipt.ResultDesc = ev.ResultDesc
	}
	n.ledger.Set(ev.Key, receipt, n.retention)
	n.mu.Unlock()

	if !first {
		metrics.CallbacksTotal.WithLabelValues("redelivery").Inc()
		logger.Debug().Int("deliveries", receipt.Deliveries).Msg("Duplicate payment callback acknowledged")
		return Accepted
	}

	metrics.CallbacksTotal.WithLabelValues("first").Inc()
	event := logger.Info().
		Bool("expected", known).
		Str("merchant_request_id", ev.MerchantRequestID).
		Str("result_desc", ev.ResultDesc)
	if ev.ResultCode != nil {
		event = event.Int("result_code", *ev.ResultCode)
	}
	event.RawJSON("payload", compactJSON(payload)).Msg("Payment callback received")
	return Accepted
}

// Lookup returns the receipt for key.
func (n *Notifier) Lookup(key string) (Receipt, bool) {
	return n.ledger.Get(key)
}

func compactJSON(payload []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		quoted, _ := json.Marshal(string(payload))
		return quoted
	}
	return buf.Bytes()
}
