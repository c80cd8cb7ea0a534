package models

import (
	"slices"
	"time"
)

type AccountTier struct {
	ID                  int64
	Name                string
	ThumbnailSizes      []int
	AllowsOriginal      bool
	AllowsExpiringLinks bool
}

func (t AccountTier) PermitsSize(px int) bool {
	return slices.Contains(t.ThumbnailSizes, px)
}

type Subscription struct {
	UserID    string
	TierID    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
