package sink

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/SteelMorgan/cwtail/internal/domain"
)

// eventHash calculates SHA256 hash of an event.
// Hash covers the fields that identify an event across runs, so events that
// were shown again after a dedup reset collapse into one archived row.
func eventHash(group string, event domain.LogEvent) string {
	h := sha256.New()

	fmt.Fprintf(h, "%s|", group)
	fmt.Fprintf(h, "%s|", event.LogStream)
	fmt.Fprintf(h, "%s|", event.EventID)
	fmt.Fprintf(h, "%d|", event.Timestamp)
	fmt.Fprintf(h, "%s|", event.Message)

	return hex.EncodeToString(h.Sum(nil))
}
