package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studyshelf/apiserver/internal/store"
	"github.com/studyshelf/apiserver/types"
)

type fakeMaterialRepo struct {
	materials map[int]types.Material
	nextID    int
}

func newFakeMaterialRepo() *fakeMaterialRepo {
	return &fakeMaterialRepo{materials: make(map[int]types.Material), nextID: 1}
}

func (r *fakeMaterialRepo) GetByID(_ context.Context, id int) (types.Material, error) {
	material, ok := r.materials[id]
	if !ok {
		return types.Material{}, store.ErrNotFound
	}
	return material, nil
}

func (r *fakeMaterialRepo) ListByPath(_ context.Context, path string) ([]types.Material, error) {
	var out []types.Material
	for _, m := range r.materials {
		if m.Path == path {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMaterialRepo) Create(_ context.Context, material types.Material) (types.Material, error) {
	material.ID = r.nextID
	material.CreatedAt = time.Now()
	material.UpdatedAt = nil
	r.nextID++
	r.materials[material.ID] = material
	return material, nil
}

func (r *fakeMaterialRepo) Update(_ context.Context, material types.Material) (types.Material, error) {
	if _, ok := r.materials[material.ID]; !ok {
		return types.Material{}, store.ErrNotFound
	}
	now := time.Now()
	material.UpdatedAt = &now
	r.materials[material.ID] = material
	return material, nil
}

func (r *fakeMaterialRepo) UpdateFiles(_ context.Context, id int, files []string) error {
	material, ok := r.materials[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	material.Files = files
	material.UpdatedAt = &now
	r.materials[id] = material
	return nil
}

func (r *fakeMaterialRepo) Delete(_ context.Context, id int) error {
	if _, ok := r.materials[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.materials, id)
	return nil
}

type fakeBlobStore struct {
	objects    map[string]bool
	deleted    []string
	failDelete map[string]bool
	failPut    bool
	presignErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects:    make(map[string]bool),
		failDelete: make(map[string]bool),
	}
}

func (b *fakeBlobStore) Put(_ context.Context, key string, _ io.Reader, _ int64, _ string) error {
	if b.failPut {
		return errors.New("put failed")
	}
	b.objects[key] = true
	return nil
}

func (b *fakeBlobStore) Delete(_ context.Context, key string) error {
	b.deleted = append(b.deleted, key)
	if b.failDelete[key] {
		return errors.New("delete failed")
	}
	delete(b.objects, key)
	return nil
}

func (b *fakeBlobStore) PresignedGetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if b.presignErr != nil {
		return "", b.presignErr
	}
	return fmt.Sprintf("https://blobs.example/%s", key), nil
}

func upload(name, content string) Upload {
	return Upload{
		Filename:    name,
		ContentType: "application/octet-stream",
		Size:        int64(len(content)),
		Content:     strings.NewReader(content),
	}
}

func newTestMaterialService() (*MaterialService, *fakeMaterialRepo, *fakeBlobStore) {
	repo := newFakeMaterialRepo()
	blobs := newFakeBlobStore()
	return NewMaterialService(repo, blobs), repo, blobs
}

func validInput() MaterialInput {
	return MaterialInput{
		Title:       "Fractions",
		Description: "Adding and subtracting fractions",
		Grade:       6,
		Path:        "/materials/algebra/part-1",
		OwnerID:     1,
		Files:       []Upload{upload("worksheet.pdf", "pdf bytes")},
	}
}

func TestCreateMaterial(t *testing.T) {
	svc, repo, blobs := newTestMaterialService()

	input := validInput()
	thumb := upload("cover.png", "png bytes")
	input.Thumbnail = &thumb

	created, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	assert.NotZero(t, created.ID)
	assert.Nil(t, created.UpdatedAt)
	require.Len(t, created.Files, 1)
	assert.True(t, strings.HasSuffix(created.Files[0], "_worksheet.pdf"))
	assert.NotEqual(t, "worksheet.pdf", created.Files[0])
	require.NotNil(t, created.Thumbnail)
	assert.True(t, blobs.objects[created.Files[0]])
	assert.True(t, blobs.objects[*created.Thumbnail])

	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Files, stored.Files)
}

func TestCreateMaterialUniqueKeys(t *testing.T) {
	svc, _, _ := newTestMaterialService()

	input := validInput()
	input.Files = []Upload{
		upload("notes.pdf", "a"),
		upload("notes.pdf", "b"),
	}

	created, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, created.Files, 2)
	assert.NotEqual(t, created.Files[0], created.Files[1])
}

func TestCreateMaterialValidation(t *testing.T) {
	svc, _, _ := newTestMaterialService()

	tests := []struct {
		name   string
		mutate func(*MaterialInput)
	}{
		{"short title", func(in *MaterialInput) { in.Title = "ab" }},
		{"short description", func(in *MaterialInput) { in.Description = "ab" }},
		{"long description", func(in *MaterialInput) { in.Description = strings.Repeat("x", types.MaxDescriptionLen+1) }},
		{"short multibyte title", func(in *MaterialInput) { in.Title = "ăă" }},
		{"long multibyte description", func(in *MaterialInput) { in.Description = strings.Repeat("ă", types.MaxDescriptionLen+1) }},
		{"grade too low", func(in *MaterialInput) { in.Grade = 4 }},
		{"grade too high", func(in *MaterialInput) { in.Grade = 9 }},
		{"no files", func(in *MaterialInput) { in.Files = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(&input)
			_, err := svc.Create(context.Background(), input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCreateMaterialCountsCharactersNotBytes(t *testing.T) {
	svc, _, _ := newTestMaterialService()

	// A description at the character limit stays valid even when its
	// byte length is double that, and a 3-character multibyte title
	// passes the minimum.
	input := validInput()
	input.Title = "ăăă"
	input.Description = strings.Repeat("ă", types.MaxDescriptionLen)

	_, err := svc.Create(context.Background(), input)
	assert.NoError(t, err)
}

func TestCreateMaterialUploadFailure(t *testing.T) {
	svc, repo, blobs := newTestMaterialService()
	blobs.failPut = true

	_, err := svc.Create(context.Background(), validInput())
	require.Error(t, err)
	assert.Empty(t, repo.materials)
}

func TestEditMaterialMergesFilesAndStampsUpdatedAt(t *testing.T) {
	svc, repo, _ := newTestMaterialService()

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	keptKey := created.Files[0]

	edited, err := svc.Edit(context.Background(), EditInput{
		ID:            created.ID,
		Title:         "Fractions v2",
		Description:   "Updated worksheet",
		Grade:         7,
		NewFiles:      []Upload{upload("answers.pdf", "answers")},
		ExistingFiles: []string{keptKey},
	})
	require.NoError(t, err)

	require.NotNil(t, edited.UpdatedAt)
	require.Len(t, edited.Files, 2)
	assert.Equal(t, keptKey, edited.Files[0])
	assert.True(t, strings.HasSuffix(edited.Files[1], "_answers.pdf"))
	assert.Equal(t, 7, edited.Grade)

	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.UpdatedAt)
}

func TestEditMaterialDropsOmittedAttachments(t *testing.T) {
	svc, _, _ := newTestMaterialService()

	input := validInput()
	input.Files = []Upload{upload("a.pdf", "a"), upload("b.pdf", "b")}
	created, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	// Keeping only the second attachment drops the first from the row.
	edited, err := svc.Edit(context.Background(), EditInput{
		ID:            created.ID,
		Title:         created.Title,
		Description:   created.Description,
		Grade:         created.Grade,
		ExistingFiles: []string{created.Files[1]},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{created.Files[1]}, edited.Files)
}

func TestEditMaterialNotFound(t *testing.T) {
	svc, _, _ := newTestMaterialService()

	_, err := svc.Edit(context.Background(), EditInput{
		ID:          99,
		Title:       "Title",
		Description: "Description",
		Grade:       6,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteMaterialRemovesBlobs(t *testing.T) {
	svc, repo, blobs := newTestMaterialService()

	input := validInput()
	thumb := upload("cover.png", "png")
	input.Thumbnail = &thumb
	created, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), created.ID))

	assert.Empty(t, repo.materials)
	assert.Contains(t, blobs.deleted, created.Files[0])
	assert.Contains(t, blobs.deleted, *created.Thumbnail)
}

func TestDeleteMaterialBestEffortBlobCleanup(t *testing.T) {
	svc, repo, blobs := newTestMaterialService()

	input := validInput()
	input.Files = []Upload{upload("a.pdf", "a"), upload("b.pdf", "b")}
	created, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	// The first blob refuses to delete; the row and the second blob must
	// still go.
	blobs.failDelete[created.Files[0]] = true

	require.NoError(t, svc.Delete(context.Background(), created.ID))
	assert.Empty(t, repo.materials)
	assert.Contains(t, blobs.deleted, created.Files[1])
	assert.False(t, blobs.objects[created.Files[1]])
}

func TestRemoveAttachment(t *testing.T) {
	svc, repo, blobs := newTestMaterialService()

	input := validInput()
	input.Files = []Upload{upload("a.pdf", "a"), upload("b.pdf", "b")}
	created, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	removed := created.Files[0]
	material, err := svc.RemoveAttachment(context.Background(), created.ID, removed)
	require.NoError(t, err)

	assert.Equal(t, []string{created.Files[1]}, material.Files)
	assert.Contains(t, blobs.deleted, removed)

	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{created.Files[1]}, stored.Files)
	assert.NotNil(t, stored.UpdatedAt)
}

func TestRemoveAttachmentUnknownFilename(t *testing.T) {
	svc, repo, blobs := newTestMaterialService()

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.RemoveAttachment(context.Background(), created.ID, "nope.pdf")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The stored list is untouched and no blob was deleted.
	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Files, stored.Files)
	assert.Empty(t, blobs.deleted)
}

func TestRemoveAttachmentBlobDeleteFailureKeepsList(t *testing.T) {
	svc, repo, blobs := newTestMaterialService()

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	blobs.failDelete[created.Files[0]] = true

	_, err = svc.RemoveAttachment(context.Background(), created.ID, created.Files[0])
	require.Error(t, err)

	stored, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Files, stored.Files)
}

func TestLinksDegradeOnPresignFailure(t *testing.T) {
	svc, _, blobs := newTestMaterialService()

	input := validInput()
	thumb := upload("cover.png", "png")
	input.Thumbnail = &thumb
	created, err := svc.Create(context.Background(), input)
	require.NoError(t, err)

	links := svc.Links(context.Background(), created)
	require.NotNil(t, links.ThumbnailURL)
	require.Len(t, links.FileURLs, 1)
	require.NotNil(t, links.FileURLs[0])
	assert.Contains(t, *links.FileURLs[0], created.Files[0])

	blobs.presignErr = errors.New("backend down")
	degraded := svc.Links(context.Background(), created)
	assert.Nil(t, degraded.ThumbnailURL)
	require.Len(t, degraded.FileURLs, 1)
	assert.Nil(t, degraded.FileURLs[0])
}
