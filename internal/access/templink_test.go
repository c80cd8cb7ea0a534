package access

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"imagevault/internal/models"
)

func TestIssueIfEntitledMintsToken(t *testing.T) {
	m := NewTempLinkManager(newFakeRecords(), TempLinkOptions{})
	tier := &models.AccountTier{Name: "Enterprise", AllowsExpiringLinks: true}
	img := &models.Image{ID: "img-1"}

	uri, ok, err := m.IssueIfEntitled(context.Background(), img, 5000, tier)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TempURIPrefix+img.TempID, uri)
	require.Equal(t, uri, img.TempURI)
	require.Equal(t, 5000, img.ExpirySeconds)
	require.Len(t, img.TempID, DefaultTokenLength)
	for _, r := range img.TempID {
		require.True(t, strings.ContainsRune(TokenAlphabet, r), "unexpected rune %q", r)
	}
}

func TestIssueIfEntitledReturnsNone(t *testing.T) {
	cases := []struct {
		name   string
		tier   *models.AccountTier
		expiry int
	}{
		{name: "no subscription", tier: nil, expiry: 5000},
		{name: "tier without links", tier: &models.AccountTier{Name: "Premium"}, expiry: 5000},
		{name: "disabled sentinel", tier: &models.AccountTier{Name: "Enterprise", AllowsExpiringLinks: true}, expiry: ExpiryDisabled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewTempLinkManager(newFakeRecords(), TempLinkOptions{})
			img := &models.Image{ID: "img-1", TempID: "stale", TempURI: "/stale", ExpirySeconds: 100}

			uri, ok, err := m.IssueIfEntitled(context.Background(), img, tc.expiry, tc.tier)
			require.NoError(t, err)
			require.False(t, ok)
			require.Empty(t, uri)
			require.Empty(t, img.TempURI)
			require.Empty(t, img.TempID)
			require.Equal(t, ExpiryDisabled, img.ExpirySeconds)
		})
	}
}

func TestIssueIfEntitledRetriesOnCollision(t *testing.T) {
	records := newFakeRecords(models.Image{ID: "taken", TempID: "AAAAAAAAAAAA"})
	m := NewTempLinkManager(records, TempLinkOptions{})

	tokens := []string{"AAAAAAAAAAAA", "BBBBBBBBBBBB"}
	m.generate = func(int) (string, error) {
		next := tokens[0]
		tokens = tokens[1:]
		return next, nil
	}

	img := &models.Image{ID: "img-1"}
	_, ok, err := m.IssueIfEntitled(context.Background(), img, 600, &models.AccountTier{AllowsExpiringLinks: true})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "BBBBBBBBBBBB", img.TempID)
}

func TestIssueIfEntitledTokenSpaceExhausted(t *testing.T) {
	records := newFakeRecords(models.Image{ID: "taken", TempID: "AAAAAAAAAAAA"})
	m := NewTempLinkManager(records, TempLinkOptions{MaxAttempts: 3})

	calls := 0
	m.generate = func(int) (string, error) {
		calls++
		return "AAAAAAAAAAAA", nil
	}

	_, ok, err := m.IssueIfEntitled(context.Background(), &models.Image{ID: "img-1"}, 600, &models.AccountTier{AllowsExpiringLinks: true})
	require.False(t, ok)
	reason, isDenial := ReasonOf(err)
	require.True(t, isDenial)
	require.Equal(t, ReasonTokenSpaceExhausted, reason)
	require.Equal(t, 3, calls)
}

func TestIssueIfEntitledRecordStoreDown(t *testing.T) {
	records := newFakeRecords()
	records.err = errors.New("connection refused")
	m := NewTempLinkManager(records, TempLinkOptions{})

	_, _, err := m.IssueIfEntitled(context.Background(), &models.Image{}, 600, &models.AccountTier{AllowsExpiringLinks: true})
	reason, _ := ReasonOf(err)
	require.Equal(t, ReasonUnavailable, reason)
}

func TestValidateExpiryBoundary(t *testing.T) {
	img := models.Image{
		ID:            "img-1",
		UserID:        "owner",
		TempID:        "ABCDEFGHJKLM",
		TempURI:       TempURIPrefix + "ABCDEFGHJKLM",
		ExpirySeconds: 5000,
		CreatedAt:     epoch,
	}
	m := NewTempLinkManager(newFakeRecords(img), TempLinkOptions{})
	ctx := context.Background()
	expiresAt := epoch.Add(5000 * time.Second)

	got, err := m.Validate(ctx, img.TempID, "owner", epoch)
	require.NoError(t, err)
	require.Equal(t, img.ID, got.ID)

	_, err = m.Validate(ctx, img.TempID, "owner", expiresAt.Add(-time.Nanosecond))
	require.NoError(t, err)

	for _, now := range []time.Time{expiresAt, expiresAt.Add(time.Second), expiresAt.Add(24 * time.Hour)} {
		_, err = m.Validate(ctx, img.TempID, "owner", now)
		reason, _ := ReasonOf(err)
		require.Equal(t, ReasonLinkExpired, reason, "now=%s", now)
	}
}

func TestValidateUnknownOrForeignLink(t *testing.T) {
	img := models.Image{ID: "img-1", UserID: "owner", TempID: "ABCDEFGHJKLM", TempURI: "/x", ExpirySeconds: 600, CreatedAt: epoch}
	m := NewTempLinkManager(newFakeRecords(img), TempLinkOptions{})

	for _, tc := range []struct{ tempID, user string }{
		{"ABCDEFGHJKLM", "someone-else"},
		{"ZZZZZZZZZZZZ", "owner"},
		{"", "owner"},
	} {
		_, err := m.Validate(context.Background(), tc.tempID, tc.user, epoch)
		reason, _ := ReasonOf(err)
		require.Equal(t, ReasonLinkNotFound, reason)
	}
}
