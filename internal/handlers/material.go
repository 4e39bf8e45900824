package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/studyshelf/apiserver/internal/auth"
	"github.com/studyshelf/apiserver/internal/services"
	"github.com/studyshelf/apiserver/internal/store"
	"github.com/studyshelf/apiserver/types"
)

const (
	maxMultipartMemory = 128 << 20

	formFieldTitle         = "title"
	formFieldDesc          = "description"
	formFieldGrade         = "grade"
	formFieldPath          = "path"
	formFieldThumbnail     = "thumbnail"
	formFieldFiles         = "files"
	formFieldExistingFiles = "existing_files"
)

// MaterialHandler provides HTTP handlers for teaching materials.
type MaterialHandler struct {
	materialService *services.MaterialService
}

// NewMaterialHandler constructs a handler with the provided service.
func NewMaterialHandler(materialService *services.MaterialService) *MaterialHandler {
	return &MaterialHandler{materialService: materialService}
}

// MaterialRouter registers material routes on the given router. Listing and
// viewing are open to any approved user (grade-gated inside the handlers);
// every mutation requires the teacher role.
func MaterialRouter(r chi.Router, materialService *services.MaterialService) {
	handler := NewMaterialHandler(materialService)

	r.Get("/view/{materialID}", handler.ViewMaterial)
	r.Get("/{subject}/{part}", handler.ListMaterials)

	r.With(Require(auth.ActionCreateMaterial)).Post("/material", handler.CreateMaterial)
	r.With(Require(auth.ActionEditMaterial)).Put("/material/edit/{materialID}", handler.EditMaterial)
	r.With(Require(auth.ActionDeleteMaterial)).Delete("/material/{materialID}", handler.DeleteMaterial)
	r.With(Require(auth.ActionRemoveAttachment)).Delete("/material/{materialID}/file", handler.RemoveAttachment)
}

// MaterialListItem is one entry of a listing, with a presigned thumbnail
// link when one could be generated.
type MaterialListItem struct {
	types.Material
	ThumbnailURL *string `json:"thumbnail_url"`
}

// MaterialListResponse is the listing payload for a path.
type MaterialListResponse struct {
	Items   []MaterialListItem `json:"items"`
	Subject string             `json:"subject"`
	Part    string             `json:"part"`
}

// MaterialViewResponse is the single-material payload with download links.
type MaterialViewResponse struct {
	types.Material
	ThumbnailURL *string   `json:"thumbnail_url"`
	FileURLs     []*string `json:"file_urls"`
}

// ListMaterials lists the materials under /materials/{subject}/{part} that
// the caller may see, newest effective edit first. Students only receive
// materials at or below their grade; teachers see every grade.
func (h *MaterialHandler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if decision := auth.Decide(claims, auth.ActionListMaterials); !decision.Allowed() {
		writeDeny(w, r, decision)
		return
	}

	subject := chi.URLParam(r, "subject")
	part := chi.URLParam(r, "part")
	path := fmt.Sprintf("/materials/%s/%s", subject, part)

	materials, err := h.materialService.ListByPath(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list materials")
		return
	}

	visible := auth.VisibleMaterials(claims, materials)
	items := make([]MaterialListItem, 0, len(visible))
	for _, material := range visible {
		items = append(items, MaterialListItem{
			Material:     material,
			ThumbnailURL: h.materialService.ThumbnailURL(r.Context(), material),
		})
	}

	writeJSON(w, http.StatusOK, MaterialListResponse{
		Items:   items,
		Subject: subject,
		Part:    part,
	})
}

// ViewMaterial returns a single material with presigned download links.
// Students asking for a material above their grade get the same forbidden
// response as for any other denied resource.
func (h *MaterialHandler) ViewMaterial(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if decision := auth.Decide(claims, auth.ActionViewMaterial); !decision.Allowed() {
		writeDeny(w, r, decision)
		return
	}

	id, err := parseMaterialID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	material, err := h.materialService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "material not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch material")
		return
	}

	if decision := auth.DecideView(claims, material.Grade); !decision.Allowed() {
		writeDeny(w, r, decision)
		return
	}

	links := h.materialService.Links(r.Context(), material)
	writeJSON(w, http.StatusOK, MaterialViewResponse{
		Material:     material,
		ThumbnailURL: links.ThumbnailURL,
		FileURLs:     links.FileURLs,
	})
}

// CreateMaterial handles the multipart upload of a new material.
func (h *MaterialHandler) CreateMaterial(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	form, err := parseMaterialForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer form.close()

	if form.path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if len(form.files) == 0 {
		writeError(w, http.StatusBadRequest, "at least one file is required")
		return
	}

	created, err := h.materialService.Create(r.Context(), services.MaterialInput{
		Title:       form.title,
		Description: form.description,
		Grade:       form.grade,
		Path:        form.path,
		OwnerID:     claims.UserID,
		Thumbnail:   form.thumbnail,
		Files:       form.files,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create material")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// EditMaterial rewrites a material from a multipart form: kept attachments
// arrive as existing_files values, new ones as fresh uploads.
func (h *MaterialHandler) EditMaterial(w http.ResponseWriter, r *http.Request) {
	id, err := parseMaterialID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	form, err := parseMaterialForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer form.close()

	_, err = h.materialService.Edit(r.Context(), services.EditInput{
		ID:            id,
		Title:         form.title,
		Description:   form.description,
		Grade:         form.grade,
		Thumbnail:     form.thumbnail,
		NewFiles:      form.files,
		ExistingFiles: form.existingFiles,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "material not found")
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to update material")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteMaterial removes a material row and, best-effort, its blobs.
func (h *MaterialHandler) DeleteMaterial(w http.ResponseWriter, r *http.Request) {
	id, err := parseMaterialID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.materialService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "material not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete material")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveAttachmentResponse reports a successful single-attachment removal.
type RemoveAttachmentResponse struct {
	Detail         string   `json:"detail"`
	RemainingFiles []string `json:"remaining_files"`
}

// RemoveAttachment deletes one named attachment from a material. The name
// must currently be referenced by the material.
func (h *MaterialHandler) RemoveAttachment(w http.ResponseWriter, r *http.Request) {
	id, err := parseMaterialID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	material, err := h.materialService.RemoveAttachment(r.Context(), id, filename)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found in material")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to remove file")
		return
	}

	writeJSON(w, http.StatusOK, RemoveAttachmentResponse{
		Detail:         fmt.Sprintf("file %s removed", filename),
		RemainingFiles: material.Files,
	})
}

// materialForm is the parsed multipart payload shared by create and edit.
type materialForm struct {
	title         string
	description   string
	grade         int
	path          string
	thumbnail     *services.Upload
	files         []services.Upload
	existingFiles []string

	openFiles []multipart.File
}

func (f *materialForm) close() {
	for _, file := range f.openFiles {
		_ = file.Close()
	}
}

func parseMaterialForm(r *http.Request) (*materialForm, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, errors.New("invalid multipart form")
	}

	form := &materialForm{
		title:       strings.TrimSpace(r.FormValue(formFieldTitle)),
		description: strings.TrimSpace(r.FormValue(formFieldDesc)),
		path:        strings.TrimSpace(r.FormValue(formFieldPath)),
	}
	if form.title == "" {
		return nil, errors.New("title is required")
	}
	if form.description == "" {
		return nil, errors.New("description is required")
	}

	grade, err := strconv.Atoi(strings.TrimSpace(r.FormValue(formFieldGrade)))
	if err != nil {
		return nil, errors.New("invalid grade")
	}
	form.grade = grade

	if r.MultipartForm != nil {
		form.existingFiles = append(form.existingFiles, r.MultipartForm.Value[formFieldExistingFiles]...)

		if headers := r.MultipartForm.File[formFieldThumbnail]; len(headers) > 0 {
			upload, file, err := openUpload(headers[0])
			if err != nil {
				form.close()
				return nil, err
			}
			form.openFiles = append(form.openFiles, file)
			form.thumbnail = upload
		}

		for _, header := range r.MultipartForm.File[formFieldFiles] {
			upload, file, err := openUpload(header)
			if err != nil {
				form.close()
				return nil, err
			}
			form.openFiles = append(form.openFiles, file)
			form.files = append(form.files, *upload)
		}
	}

	return form, nil
}

func openUpload(header *multipart.FileHeader) (*services.Upload, multipart.File, error) {
	file, err := header.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upload %s", header.Filename)
	}
	return &services.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	}, file, nil
}

func parseMaterialID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "materialID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid material id")
	}
	return id, nil
}
