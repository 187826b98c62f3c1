package response

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// WriteSSE writes one server-sent event. payload is JSON encoded; an empty
// event name produces a plain "data" event.
func WriteSSE(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event = strings.TrimSpace(event); event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
