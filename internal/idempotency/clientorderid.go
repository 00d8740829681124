// Package idempotency implements client-order-id generation and the
// idempotency/dedup guarantees of spec.md §4.5: every OrderRequest the
// Risk Gateway admits is assigned a client-order-id before it reaches
// the Execution Adapter, and a resubmit of the same logical order
// within its TTL returns the original Order rather than placing a
// second one.
package idempotency

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cryptoctl/tradeengine/internal/domain"
)

// clientOrderIDPattern validates the {ACTION}_{SYMBOL_NODASH}_{UNIX_MS}_{RAND8}
// format from spec.md §4.5.
var clientOrderIDPattern = regexp.MustCompile(`^(BUY|SELL|CLOSE|FLAT)_[A-Z0-9]+_[0-9]+_[0-9a-f]{8}$`)

// Action is the first component of a client-order-id, distinct from
// domain.Side because CLOSE and FLAT have no direct Side equivalent.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionClose Action = "CLOSE"
	ActionFlat  Action = "FLAT"
)

// ActionForRequest derives the client-order-id Action for a fresh
// OrderRequest. ReduceOnly requests are tagged CLOSE since they can
// only reduce/close an existing position.
func ActionForRequest(r domain.OrderRequest) Action {
	if r.ReduceOnly {
		return ActionClose
	}
	if r.Side == domain.SideBuy {
		return ActionBuy
	}
	return ActionSell
}

// GenerateClientOrderID builds a new client-order-id for the given
// action, symbol and timestamp: {ACTION}_{SYMBOL_NODASH}_{UNIX_MS}_{RAND8}.
func GenerateClientOrderID(action Action, symbol string, at time.Time) (string, error) {
	suffix, err := randHex8()
	if err != nil {
		return "", err
	}
	nodash := strings.ReplaceAll(strings.ToUpper(symbol), "-", "")
	nodash = strings.ReplaceAll(nodash, "/", "")
	return fmt.Sprintf("%s_%s_%d_%s", action, nodash, at.UnixMilli(), suffix), nil
}

// ValidateClientOrderID reports whether id conforms to the wire format.
func ValidateClientOrderID(id string) bool {
	return clientOrderIDPattern.MatchString(id)
}

// ParseUnixMillis extracts the embedded timestamp from a well-formed
// client-order-id. Used by tests and reconciliation tooling that need
// to reason about order age without a separate CreatedAt lookup.
func ParseUnixMillis(id string) (time.Time, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 4 {
		return time.Time{}, fmt.Errorf("malformed client-order-id: %s", id)
	}
	ms, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed client-order-id timestamp: %w", err)
	}
	return time.UnixMilli(ms), nil
}

func randHex8() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
