package uploads

import "time"

// Status enum
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// MaxSize is the largest file accepted for upload (10 MiB).
const MaxSize = 10 << 20

// AllowedFiletypes is the extension allow-list for uploads.
var AllowedFiletypes = map[string]bool{
	"pdf":  true,
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"txt":  true,
	"md":   true,
}

// Upload is a stored site-diary file waiting for (or done with) report generation.
type Upload struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"storage_path"`
	Filetype    string    `json:"filetype"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
