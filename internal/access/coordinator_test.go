package access

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"imagevault/internal/media/thumbnail"
	"imagevault/internal/models"
	"imagevault/internal/storage"
)

type coordinatorFixture struct {
	coordinator *Coordinator
	records     *fakeRecords
	originals   *storage.MemoryStore
	image       models.Image
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newCoordinatorFixture(t *testing.T, tiers fakeDirectory) coordinatorFixture {
	t.Helper()

	img := models.Image{
		ID:            uuid.NewString(),
		UserID:        "owner",
		Name:          "cat.png",
		StoragePath:   "originals/2024/03/01/cat.png",
		TempID:        "ABCDEFGHJKLM",
		TempURI:       TempURIPrefix + "ABCDEFGHJKLM",
		ExpirySeconds: 5000,
		CreatedAt:     epoch,
	}

	originals := storage.NewMemoryStore()
	require.NoError(t, originals.Put(context.Background(), img.StoragePath, bytes.NewReader(pngBytes(t, 400, 200)), 0, "image/png"))

	records := newFakeRecords(img)
	links := NewTempLinkManager(records, TempLinkOptions{})
	resolver := thumbnail.NewResolver(originals, storage.NewMemoryStore(), thumbnail.Options{}, zerolog.Nop())

	return coordinatorFixture{
		coordinator: NewCoordinator(records, tiers, originals, resolver, links, zerolog.Nop()),
		records:     records,
		originals:   originals,
		image:       img,
	}
}

func requireReason(t *testing.T, err error, want Reason) {
	t.Helper()
	reason, ok := ReasonOf(err)
	require.True(t, ok, "expected a denial, got %v", err)
	require.Equal(t, want, reason)
}

func TestGetOriginal(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{
		"owner": {Name: "Premium", AllowsOriginal: true, ThumbnailSizes: []int{200}},
	})

	asset, err := f.coordinator.GetOriginal(context.Background(), f.image.ID, "owner")
	require.NoError(t, err)
	defer asset.Body.Close()

	require.Equal(t, "image/png", asset.ContentType)
	require.Equal(t, "cat.png", asset.Filename)
	data, err := io.ReadAll(asset.Body)
	require.NoError(t, err)
	require.Equal(t, asset.Size, int64(len(data)))
}

func TestGetOriginalBasicTierDenied(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{"owner": {Name: "Basic", ThumbnailSizes: []int{200}}})

	_, err := f.coordinator.GetOriginal(context.Background(), f.image.ID, "owner")
	requireReason(t, err, ReasonOriginalNotEntitled)
}

func TestForeignAndMissingImagesLookTheSame(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{
		"owner":    {Name: "Premium", AllowsOriginal: true},
		"intruder": {Name: "Premium", AllowsOriginal: true},
	})
	ctx := context.Background()

	_, foreign := f.coordinator.GetOriginal(ctx, f.image.ID, "intruder")
	_, missing := f.coordinator.GetOriginal(ctx, uuid.NewString(), "intruder")
	_, malformed := f.coordinator.GetOriginal(ctx, "not-a-uuid", "intruder")

	for _, err := range []error{foreign, missing, malformed} {
		var d *Denial
		require.True(t, errors.As(err, &d))
		require.Equal(t, ReasonImageNotFound, d.Reason)
		require.Equal(t, "Image does not exist.", d.Message)
	}
}

func TestGetOriginalSourceMissing(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{"owner": {Name: "Premium", AllowsOriginal: true}})
	img := f.image
	img.StoragePath = "originals/gone.png"
	f.records.images[img.ID] = img

	_, err := f.coordinator.GetOriginal(context.Background(), img.ID, "owner")
	requireReason(t, err, ReasonSourceUnavailable)
}

func TestGetOriginalRecordStoreDown(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{"owner": {Name: "Premium", AllowsOriginal: true}})
	f.records.err = errors.New("connection reset")

	_, err := f.coordinator.GetOriginal(context.Background(), f.image.ID, "owner")
	requireReason(t, err, ReasonUnavailable)
}

func TestGetThumbnailPremium200(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{
		"owner": {Name: "Premium", AllowsOriginal: true, ThumbnailSizes: []int{200, 400}},
	})

	asset, err := f.coordinator.GetThumbnail(context.Background(), f.image.ID, 200, "owner")
	require.NoError(t, err)
	defer asset.Body.Close()

	require.Equal(t, "200px_cat.png", asset.Filename)
	decoded, _, err := image.Decode(asset.Body)
	require.NoError(t, err)
	require.Equal(t, 400, decoded.Bounds().Dx())
	require.Equal(t, 200, decoded.Bounds().Dy())
}

func TestGetThumbnailSizeNotEntitled(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{"owner": {Name: "Enterprise", ThumbnailSizes: []int{400}}})

	_, err := f.coordinator.GetThumbnail(context.Background(), f.image.ID, 500, "owner")
	requireReason(t, err, ReasonSizeNotEntitled)

	var d *Denial
	require.True(t, errors.As(err, &d))
	require.Contains(t, d.Message, "500")
	require.Contains(t, d.Message, "Enterprise")
}

func TestGetThumbnailInvalidSize(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{"owner": {Name: "Premium", ThumbnailSizes: []int{200}}})

	for _, size := range []int{0, -200} {
		_, err := f.coordinator.GetThumbnail(context.Background(), f.image.ID, size, "owner")
		requireReason(t, err, ReasonInvalidSize)
	}
}

func TestGetThumbnailUnsubscribed(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{})

	_, err := f.coordinator.GetThumbnail(context.Background(), f.image.ID, 200, "owner")
	requireReason(t, err, ReasonNotSubscribed)
}

func TestGetThumbnailResolverErrors(t *testing.T) {
	cases := []struct {
		err  error
		want Reason
	}{
		{err: thumbnail.ErrBusy, want: ReasonResolutionBusy},
		{err: thumbnail.ErrSourceUnavailable, want: ReasonSourceUnavailable},
		{err: errors.New("disk full"), want: ReasonUnavailable},
	}

	for _, tc := range cases {
		records := newFakeRecords(models.Image{ID: "6f1c2b4e-0d1a-4c8e-9a55-3f2b1c0d9e8f", UserID: "owner", Name: "a.png"})
		tiers := fakeDirectory{"owner": {Name: "Premium", ThumbnailSizes: []int{200}}}
		c := NewCoordinator(records, tiers, storage.NewMemoryStore(), &stubResolver{err: tc.err}, NewTempLinkManager(records, TempLinkOptions{}), zerolog.Nop())

		_, err := c.GetThumbnail(context.Background(), "6f1c2b4e-0d1a-4c8e-9a55-3f2b1c0d9e8f", 200, "owner")
		requireReason(t, err, tc.want)
	}
}

func TestGetByTempLinkLifecycle(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{
		"owner": {Name: "Enterprise", AllowsOriginal: true, AllowsExpiringLinks: true},
	})
	ctx := context.Background()

	asset, err := f.coordinator.GetByTempLink(ctx, f.image.TempID, "owner", epoch.Add(time.Second))
	require.NoError(t, err)
	asset.Body.Close()

	_, err = f.coordinator.GetByTempLink(ctx, f.image.TempID, "owner", epoch.Add(5001*time.Second))
	requireReason(t, err, ReasonLinkExpired)
}

func TestGetByTempLinkStillNeedsOriginalEntitlement(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{
		"owner": {Name: "Links only", AllowsExpiringLinks: true},
	})

	_, err := f.coordinator.GetByTempLink(context.Background(), f.image.TempID, "owner", epoch)
	requireReason(t, err, ReasonOriginalNotEntitled)
}

func TestGetByTempLinkTierLostLinks(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{
		"owner": {Name: "Premium", AllowsOriginal: true},
	})

	_, err := f.coordinator.GetByTempLink(context.Background(), f.image.TempID, "owner", epoch)
	requireReason(t, err, ReasonExpiringLinksNotEntitled)
}

func TestGetByTempLinkWrongOwner(t *testing.T) {
	f := newCoordinatorFixture(t, fakeDirectory{
		"intruder": {Name: "Enterprise", AllowsOriginal: true, AllowsExpiringLinks: true},
	})

	_, err := f.coordinator.GetByTempLink(context.Background(), f.image.TempID, "intruder", epoch)
	requireReason(t, err, ReasonLinkNotFound)
}
