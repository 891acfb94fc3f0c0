package sample

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"samples-backend/internal/apperr"
	"samples-backend/internal/media"
)

func TestCreateWithAndWithoutImage(t *testing.T) {
	svc, _, store, _ := newTestService()
	ctx := context.Background()

	plain, err := svc.Create(ctx, alice, CreateInput{Name: "  kick  ", Description: "808"})
	require.NoError(t, err)
	assert.Equal(t, "kick", plain.Name)
	assert.Equal(t, "alice", plain.Username)
	assert.Empty(t, plain.ImageURL)

	withImage, err := svc.Create(ctx, alice, CreateInput{Name: "snare", Image: testImage()})
	require.NoError(t, err)
	assert.Equal(t, "kuspid-samples/img-1", withImage.ImagePublicID)
	assert.Contains(t, withImage.ImageURL, "https://cdn.example/")
	assert.Equal(t, 1, store.uploads)
}

func TestCreateDiscardsImageWhenInsertFails(t *testing.T) {
	svc, repo, store, _ := newTestService()
	repo.failNext = errBoom

	_, err := svc.Create(context.Background(), alice, CreateInput{Name: "kick", Image: testImage()})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"kuspid-samples/img-1"}, store.deletedIDs())
}

func TestCreateWithoutImageStore(t *testing.T) {
	svc, _, store, _ := newTestService()
	store.failUpload = media.ErrNotConfigured

	_, err := svc.Create(context.Background(), alice, CreateInput{Name: "kick", Image: testImage()})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestGetMissingIs404(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Get(context.Background(), 42)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListIsNewestFirst(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	for _, name := range []string{"one", "two", "three"} {
		_, err := svc.Create(ctx, alice, CreateInput{Name: name})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Content, 2)
	assert.Equal(t, "three", page.Content[0].Name)
	assert.Equal(t, "two", page.Content[1].Name)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.First)
	assert.False(t, page.Last)

	page, err = svc.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Content, 1)
	assert.True(t, page.Last)
}

func TestByUser(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Create(ctx, alice, CreateInput{Name: "kick"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, bob, CreateInput{Name: "hat"})
	require.NoError(t, err)

	page, err := svc.ByUser(ctx, bob.ID, 0, 20)
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "hat", page.Content[0].Name)

	_, err = svc.ByUser(ctx, 99, 0, 20)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	mine, err := svc.Mine(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "kick", mine[0].Name)
}

func TestUpdateIsPartialAndOwnerOnly(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	created, err := svc.Create(ctx, alice, CreateInput{Name: "kick", Description: "808"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, bob, created.ID, UpdateInput{Name: "stolen"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	assert.Contains(t, err.Error(), MsgNoPermission)

	updated, err := svc.Update(ctx, alice, created.ID, UpdateInput{Name: "  "})
	require.NoError(t, err)
	assert.Equal(t, "kick", updated.Name)
	assert.Equal(t, "808", updated.Description)

	empty := ""
	updated, err = svc.Update(ctx, alice, created.ID, UpdateInput{Name: "kick 2", Description: &empty})
	require.NoError(t, err)
	assert.Equal(t, "kick 2", updated.Name)
	assert.Empty(t, updated.Description)
}

func TestUpdateReplacesImage(t *testing.T) {
	svc, _, store, logger := newTestService()
	ctx := context.Background()
	created, err := svc.Create(ctx, alice, CreateInput{Name: "kick", Image: testImage()})
	require.NoError(t, err)

	store.failDelete = errBoom
	updated, err := svc.Update(ctx, alice, created.ID, UpdateInput{Image: testImage()})
	require.NoError(t, err, "old image cleanup is best effort")
	assert.Equal(t, "kuspid-samples/img-2", updated.ImagePublicID)
	assert.Equal(t, []string{"kuspid-samples/img-1"}, store.deletedIDs())
	assert.Equal(t, []string{"image_delete_failed"}, logger.messages)
}

func TestUpdateFailedUploadKeepsSample(t *testing.T) {
	svc, repo, store, _ := newTestService()
	ctx := context.Background()
	created, err := svc.Create(ctx, alice, CreateInput{Name: "kick", Image: testImage()})
	require.NoError(t, err)

	store.failUpload = errBoom
	_, err = svc.Update(ctx, alice, created.ID, UpdateInput{Name: "renamed", Image: testImage()})
	assert.Equal(t, apperr.KindUnexpected, apperr.KindOf(err))

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "kick", stored.Name)
	assert.Equal(t, created.ImagePublicID, stored.ImagePublicID)
	assert.Empty(t, store.deletedIDs())
}

func TestDelete(t *testing.T) {
	svc, _, store, _ := newTestService()
	ctx := context.Background()
	created, err := svc.Create(ctx, alice, CreateInput{Name: "kick", Image: testImage()})
	require.NoError(t, err)

	err = svc.Delete(ctx, bob, created.ID)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	require.NoError(t, svc.Delete(ctx, alice, created.ID))
	assert.Equal(t, []string{created.ImagePublicID}, store.deletedIDs())

	err = svc.Delete(ctx, alice, created.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestNewPage(t *testing.T) {
	empty := NewPage[Sample](nil, 0, 20, 0)
	assert.NotNil(t, empty.Content)
	assert.Equal(t, 0, empty.TotalPages)
	assert.True(t, empty.First)
	assert.True(t, empty.Last)

	p := NewPage([]int{1}, 2, 10, 21)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.Last)
	assert.False(t, p.First)
}
