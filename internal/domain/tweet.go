package domain

import "encoding/json"

// Tweet is the publishing service's answer to a tweet-create call.
// Raw is the response body as received.
type Tweet struct {
	ID   string
	Text string
	Raw  json.RawMessage
}
