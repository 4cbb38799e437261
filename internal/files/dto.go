package files

import "time"

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// MetaResponse is the outward-facing representation of a FileRecord.
type MetaResponse struct {
	Key         string    `json:"key"`
	OwnerID     string    `json:"ownerID"`
	Platform    string    `json:"platform"`
	ContentType string    `json:"contentType"`
	SizeBytes   *int64    `json:"sizeBytes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toUploadResponse(rec FileRecord) UploadResponse {
	return UploadResponse{
		Key: rec.Key,
		URL: "/" + rec.Key,
	}
}

func toMetaResponse(rec FileRecord) MetaResponse {
	return MetaResponse{
		Key:         rec.Key,
		OwnerID:     rec.OwnerID,
		Platform:    rec.Platform,
		ContentType: rec.ContentType,
		SizeBytes:   rec.SizeBytes,
		CreatedAt:   rec.CreatedAt,
	}
}
