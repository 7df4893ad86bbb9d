package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/feathernotes/internal/richtext"
)

const maxUploadBytes = 50 << 20 // 50 MB

func imageIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "i"))
	if err != nil || i < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid image index"))
		return 0, false
	}
	return i, true
}

// UploadImage handles POST /api/nodes/{id}/images (multipart/form-data,
// field "file", optional "width" and "height").
//
//	@Summary		Embed an image at the end of a node body
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id		path		string	true	"Node id"
//	@Param			file	formData	file	true	"Image file"
//	@Success		201		{object}	ImageUploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id}/images [post]
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	n, ok := nodeID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	format := http.DetectContentType(data)
	if !strings.HasPrefix(format, "image/") {
		writeJSON(w, http.StatusBadRequest, errorBody("not an image: "+format))
		return
	}
	if _, _, err := (richtext.Image{Data: data}).NaturalSize(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported image"))
		return
	}

	width, _ := strconv.Atoi(r.FormValue("width"))
	height, _ := strconv.Atoi(r.FormValue("height"))
	idx, err := h.sess.EmbedImage(n, data, format, width, height)
	if err != nil {
		writeError(w, "embed image", err)
		return
	}

	writeJSON(w, http.StatusCreated, ImageUploadResponse{
		Index:  idx,
		Size:   int64(len(data)),
		URL:    "/api/nodes/" + n.String() + "/images/" + strconv.Itoa(idx),
		Node:   n.String(),
		Format: format,
	})
}

// ServeImage handles GET /api/nodes/{id}/images/{i}.
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	n, ok := nodeID(w, r)
	if !ok {
		return
	}
	i, ok := imageIndex(w, r)
	if !ok {
		return
	}
	img, err := h.sess.Image(n, i)
	if err != nil {
		writeError(w, "get image", err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(img.Data))
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	_, _ = w.Write(img.Data)
}

// ScaleImage handles POST /api/nodes/{id}/images/{i}/scale.
//
//	@Summary		Scale an embedded image to a percentage of its size
//	@Tags			images
//	@Accept			json
//	@Param			id		path	string			true	"Node id"
//	@Param			i		path	int				true	"Image index"
//	@Param			body	body	ScaleRequest	true	"Scale"
//	@Success		204		"Scaled"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{id}/images/{i}/scale [post]
func (h *Handler) ScaleImage(w http.ResponseWriter, r *http.Request) {
	n, ok := nodeID(w, r)
	if !ok {
		return
	}
	i, ok := imageIndex(w, r)
	if !ok {
		return
	}
	var req ScaleRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.sess.ScaleImage(n, i, req.Percent); err != nil {
		writeError(w, "scale image", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
