package types

import "time"

// MaxDescriptionLen bounds Material.Description, matching the column width.
const MaxDescriptionLen = 6000

// Material represents a teaching material published by a teacher.
// The raw files live in object storage; a material row only records
// the opaque object keys that reference them.
type Material struct {
	// ID is the unique identifier of the material.
	ID int `json:"id" db:"id"`

	// Title is the human-readable name of the material.
	Title string `json:"title" db:"title"`

	// Description is the free-text body shown on the material page.
	// Bounded at MaxDescriptionLen characters.
	Description string `json:"description" db:"description"`

	// Thumbnail is the object key of an optional cover image, nil when
	// the material has none.
	Thumbnail *string `json:"thumbnail" db:"thumbnail"`

	// Files is the ordered list of object keys for the material's
	// attachments. Keys are generated at upload time and unique.
	Files []string `json:"files" db:"files"`

	// Grade is the school grade the material targets. Students whose
	// grade is below it never see the material.
	Grade int `json:"grade" db:"grade"`

	// OwnerID references the teacher who created the material.
	OwnerID int `json:"owner_id" db:"owner_id"`

	// Path groups materials into a browsable subject/section,
	// e.g. "/materials/algebra/part-1".
	Path string `json:"path" db:"path"`

	// CreatedAt is the timestamp at which the material was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent edit, nil until the
	// material is first edited. Listings order by UpdatedAt when set,
	// falling back to CreatedAt.
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

// EffectiveTime is the timestamp used for ordering listings: the last
// edit time when the material has been edited, otherwise the creation time.
func (m Material) EffectiveTime() time.Time {
	if m.UpdatedAt != nil {
		return *m.UpdatedAt
	}
	return m.CreatedAt
}
