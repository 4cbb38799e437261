package files

import "time"

// UnknownIdentity is recorded when the caller does not supply an owner or platform.
const UnknownIdentity = "unknown"

// FileRecord is the metadata row kept for every stored object.
// Its JSON form is what the metadata cache holds.
type FileRecord struct {
	Key         string    `json:"key"`
	OwnerID     string    `json:"ownerID"`
	Platform    string    `json:"platform"`
	ContentType string    `json:"contentType"`
	SizeBytes   *int64    `json:"sizeBytes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
