package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/studyshelf/apiserver/internal/store"
	"github.com/studyshelf/apiserver/types"
)

const (
	minGrade = 5
	maxGrade = 8

	presignedReadTTL = time.Hour
)

// MaterialRepository defines persistence operations for materials.
type MaterialRepository interface {
	GetByID(ctx context.Context, id int) (types.Material, error)
	ListByPath(ctx context.Context, path string) ([]types.Material, error)
	Create(ctx context.Context, material types.Material) (types.Material, error)
	Update(ctx context.Context, material types.Material) (types.Material, error)
	UpdateFiles(ctx context.Context, id int, files []string) error
	Delete(ctx context.Context, id int) error
}

// BlobStore defines the object-storage operations material workflows need.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Upload is a file received from a client, not yet stored.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// MaterialInput carries the fields for creating a material.
type MaterialInput struct {
	Title       string
	Description string
	Grade       int
	Path        string
	OwnerID     int
	Thumbnail   *Upload
	Files       []Upload
}

// EditInput carries the fields for editing a material. ExistingFiles lists
// the object keys of attachments the caller wants to keep; anything omitted
// is dropped from the material (the blobs themselves are not removed here).
type EditInput struct {
	ID            int
	Title         string
	Description   string
	Grade         int
	Thumbnail     *Upload
	NewFiles      []Upload
	ExistingFiles []string
}

// MaterialLinks holds presigned download URLs for a material's blobs.
// A nil entry means the URL could not be generated; the material page
// still renders, just without that download link.
type MaterialLinks struct {
	ThumbnailURL *string
	FileURLs     []*string
}

// MaterialService encapsulates material use-cases: uploads, edits,
// deletion with blob cleanup, and presigned download links.
type MaterialService struct {
	repo   MaterialRepository
	blobs  BlobStore
	newKey func(filename string) string
}

func NewMaterialService(repo MaterialRepository, blobs BlobStore) *MaterialService {
	return &MaterialService{
		repo:   repo,
		blobs:  blobs,
		newKey: objectKey,
	}
}

// objectKey prefixes the original filename with a random UUID so that two
// teachers uploading the same-named file never collide in the bucket.
func objectKey(filename string) string {
	return fmt.Sprintf("%s_%s", uuid.NewString(), filename)
}

// Bounds count characters, not bytes: multibyte text must fit the same
// limits as ASCII.
func validateMaterialFields(title, description string, grade int) error {
	if utf8.RuneCountInString(title) < 3 {
		return fmt.Errorf("%w: title must be at least 3 characters", ErrInvalidInput)
	}
	if utf8.RuneCountInString(description) < 3 {
		return fmt.Errorf("%w: description must be at least 3 characters", ErrInvalidInput)
	}
	if utf8.RuneCountInString(description) > types.MaxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidInput, types.MaxDescriptionLen)
	}
	if grade < minGrade || grade > maxGrade {
		return fmt.Errorf("%w: grade must be between %d and %d", ErrInvalidInput, minGrade, maxGrade)
	}
	return nil
}

// Create uploads the attachments and optional thumbnail under fresh unique
// keys, then persists the material row referencing them. The row's
// created_at is stamped by the store and updated_at stays null.
func (s *MaterialService) Create(ctx context.Context, input MaterialInput) (types.Material, error) {
	if err := validateMaterialFields(input.Title, input.Description, input.Grade); err != nil {
		return types.Material{}, err
	}
	if len(input.Files) == 0 {
		return types.Material{}, fmt.Errorf("%w: at least one file is required", ErrInvalidInput)
	}

	var thumbnailKey *string
	if input.Thumbnail != nil && input.Thumbnail.Filename != "" {
		key := s.newKey(input.Thumbnail.Filename)
		if err := s.blobs.Put(ctx, key, input.Thumbnail.Content, input.Thumbnail.Size, input.Thumbnail.ContentType); err != nil {
			return types.Material{}, fmt.Errorf("upload thumbnail: %w", err)
		}
		thumbnailKey = &key
	}

	fileKeys := make([]string, 0, len(input.Files))
	for _, file := range input.Files {
		key := s.newKey(file.Filename)
		if err := s.blobs.Put(ctx, key, file.Content, file.Size, file.ContentType); err != nil {
			return types.Material{}, fmt.Errorf("upload %s: %w", file.Filename, err)
		}
		fileKeys = append(fileKeys, key)
	}

	return s.repo.Create(ctx, types.Material{
		Title:       input.Title,
		Description: input.Description,
		Thumbnail:   thumbnailKey,
		Files:       fileKeys,
		Grade:       input.Grade,
		OwnerID:     input.OwnerID,
		Path:        input.Path,
	})
}

// Edit rewrites a material: kept attachments are merged with freshly
// uploaded ones, the thumbnail is replaced when a new one is supplied, and
// updated_at is stamped unconditionally on success. Ownership is not
// checked: any teacher may edit any material.
func (s *MaterialService) Edit(ctx context.Context, input EditInput) (types.Material, error) {
	if err := validateMaterialFields(input.Title, input.Description, input.Grade); err != nil {
		return types.Material{}, err
	}

	material, err := s.repo.GetByID(ctx, input.ID)
	if err != nil {
		return types.Material{}, err
	}

	material.Title = input.Title
	material.Description = input.Description
	material.Grade = input.Grade

	if input.Thumbnail != nil && input.Thumbnail.Filename != "" {
		key := s.newKey(input.Thumbnail.Filename)
		if err := s.blobs.Put(ctx, key, input.Thumbnail.Content, input.Thumbnail.Size, input.Thumbnail.ContentType); err != nil {
			return types.Material{}, fmt.Errorf("upload thumbnail: %w", err)
		}
		material.Thumbnail = &key
	}

	fileKeys := make([]string, 0, len(input.ExistingFiles)+len(input.NewFiles))
	fileKeys = append(fileKeys, input.ExistingFiles...)
	for _, file := range input.NewFiles {
		if file.Filename == "" {
			continue
		}
		key := s.newKey(file.Filename)
		if err := s.blobs.Put(ctx, key, file.Content, file.Size, file.ContentType); err != nil {
			return types.Material{}, fmt.Errorf("upload %s: %w", file.Filename, err)
		}
		fileKeys = append(fileKeys, key)
	}
	material.Files = fileKeys

	return s.repo.Update(ctx, material)
}

// Delete removes a material and its blobs. Blob deletion is best-effort: a
// failed delete orphans that object but never aborts deletion of the
// remaining blobs or of the database row, which stays authoritative.
func (s *MaterialService) Delete(ctx context.Context, id int) error {
	material, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, key := range material.Files {
		if key == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			log.Printf("could not delete file %s: %v", key, err)
		}
	}
	if material.Thumbnail != nil && *material.Thumbnail != "" {
		if err := s.blobs.Delete(ctx, *material.Thumbnail); err != nil {
			log.Printf("could not delete thumbnail %s: %v", *material.Thumbnail, err)
		}
	}

	return s.repo.Delete(ctx, id)
}

// RemoveAttachment removes a single named attachment from a material. The
// name must currently be referenced by the material, otherwise the call
// fails with store.ErrNotFound and the stored list is untouched. Unlike
// whole-material deletion, the blob delete here must succeed before the
// list is rewritten.
func (s *MaterialService) RemoveAttachment(ctx context.Context, materialID int, filename string) (types.Material, error) {
	material, err := s.repo.GetByID(ctx, materialID)
	if err != nil {
		return types.Material{}, err
	}

	found := false
	remaining := make([]string, 0, len(material.Files))
	for _, key := range material.Files {
		if key == filename {
			found = true
			continue
		}
		remaining = append(remaining, key)
	}
	if !found {
		return types.Material{}, store.ErrNotFound
	}

	if err := s.blobs.Delete(ctx, filename); err != nil {
		return types.Material{}, fmt.Errorf("delete blob %s: %w", filename, err)
	}

	if err := s.repo.UpdateFiles(ctx, materialID, remaining); err != nil {
		return types.Material{}, err
	}
	material.Files = remaining
	return material, nil
}

// Get fetches a single material by id.
func (s *MaterialService) Get(ctx context.Context, id int) (types.Material, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByPath fetches all materials filed under a path, unordered and
// unfiltered. Visibility and ordering are applied by the authorization
// engine on top of this.
func (s *MaterialService) ListByPath(ctx context.Context, path string) ([]types.Material, error) {
	return s.repo.ListByPath(ctx, path)
}

// Links generates presigned download URLs for a material's thumbnail and
// attachments. Failures degrade to nil entries rather than failing the
// caller: a missing download link is better than an unrenderable page.
func (s *MaterialService) Links(ctx context.Context, material types.Material) MaterialLinks {
	links := MaterialLinks{
		FileURLs: make([]*string, len(material.Files)),
	}
	if material.Thumbnail != nil && *material.Thumbnail != "" {
		links.ThumbnailURL = s.presign(ctx, *material.Thumbnail)
	}
	for i, key := range material.Files {
		links.FileURLs[i] = s.presign(ctx, key)
	}
	return links
}

// ThumbnailURL generates a presigned URL for just the thumbnail, nil when
// the material has none or the backend refuses.
func (s *MaterialService) ThumbnailURL(ctx context.Context, material types.Material) *string {
	if material.Thumbnail == nil || *material.Thumbnail == "" {
		return nil
	}
	return s.presign(ctx, *material.Thumbnail)
}

func (s *MaterialService) presign(ctx context.Context, key string) *string {
	url, err := s.blobs.PresignedGetURL(ctx, key, presignedReadTTL)
	if err != nil {
		log.Printf("could not presign %s: %v", key, err)
		return nil
	}
	return &url
}
