package types

import "time"

// ProcessedRecord is the durable form of one ingested message. Field names
// follow the ProcessedData table contract shared by every store.
type ProcessedRecord struct {
	MessageContent     string    `json:"messageContent" bigquery:"MessageContent"`
	ProcessedTimestamp time.Time `json:"processedTimestamp" bigquery:"ProcessedTimestamp"`
}

// SyntheticEvent is a generated load-test event. It only lives inside the
// publisher's packing loop.
type SyntheticEvent struct {
	Sequence int
	Body     []byte
}
