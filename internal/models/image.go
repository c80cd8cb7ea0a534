package models

import "time"

type Image struct {
	ID            string
	UserID        string
	Name          string
	Description   string
	StoragePath   string
	URI           string
	TempID        string
	TempURI       string
	ExpirySeconds int
	Format        string
	Width         int
	Height        int
	SizeBytes     int64
	CreatedAt     time.Time
}

// ExpiresAt reports when the temporary link stops resolving. The second
// return value is false when the image never had a temporary link.
func (i Image) ExpiresAt() (time.Time, bool) {
	if i.TempURI == "" || i.ExpirySeconds <= 0 {
		return time.Time{}, false
	}
	return i.CreatedAt.Add(time.Duration(i.ExpirySeconds) * time.Second), true
}
