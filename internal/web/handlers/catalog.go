package handlers

import (
	"net/http"

	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/presenter"
)

// CatalogHandler serves the static reference data.
type CatalogHandler struct {
	config *config.Config
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(cfg *config.Config) *CatalogHandler {
	return &CatalogHandler{config: cfg}
}

// PaletteTone is the palette of one skin tone.
type PaletteTone struct {
	Tone   string            `json:"tone"`
	Groups []presenter.Group `json:"groups"`
}

// FaceShapeEntry describes a face shape.
type FaceShapeEntry struct {
	Shape string `json:"shape"`
	config.FaceShapeInfo
}

// Palettes returns the color groups per skin tone.
func (h *CatalogHandler) Palettes(w http.ResponseWriter, r *http.Request) {
	catalog := &h.config.Catalog
	tones := make([]PaletteTone, 0, len(catalog.Tones))
	for _, tone := range catalog.ToneNames() {
		palette, _ := catalog.Palette(tone)
		groups := make([]presenter.Group, 0, len(palette))
		for _, g := range palette {
			groups = append(groups, presenter.Group{
				Key:    g.Group,
				Name:   presenter.GroupDisplayName(catalog, g.Group),
				Colors: g.Colors,
			})
		}
		tones = append(tones, PaletteTone{Tone: tone, Groups: groups})
	}
	respondJSON(w, http.StatusOK, tones)
}

// FaceShapes returns the known face shapes.
func (h *CatalogHandler) FaceShapes(w http.ResponseWriter, r *http.Request) {
	catalog := &h.config.Catalog
	names := catalog.FaceShapeNames()
	shapes := make([]FaceShapeEntry, 0, len(names))
	for _, name := range names {
		info, _ := catalog.FaceShapeInfo(name)
		shapes = append(shapes, FaceShapeEntry{Shape: name, FaceShapeInfo: info})
	}
	respondJSON(w, http.StatusOK, shapes)
}
