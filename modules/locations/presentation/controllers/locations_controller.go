package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/fieldstream/fieldstream/modules/locations/domain"
	"github.com/fieldstream/fieldstream/modules/locations/services"
	"github.com/fieldstream/fieldstream/pkg/application"
	"github.com/fieldstream/fieldstream/pkg/configuration"
	"github.com/fieldstream/fieldstream/pkg/httpapi"
	"github.com/fieldstream/fieldstream/pkg/middleware"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

var validate = validator.New()

type LocationsController struct {
	app       application.Application
	locations *services.LocationService
	basePath  string
}

func NewLocationsController(app application.Application) application.Controller {
	return &LocationsController{
		app:       app,
		locations: app.Service(services.LocationService{}).(*services.LocationService),
		basePath:  "/surveys/{survey_uid}",
	}
}

func (c *LocationsController) Key() string {
	return "/surveys/locations"
}

func (c *LocationsController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/geo-levels", c.GetGeoLevels).Methods(http.MethodGet)
	router.HandleFunc("/geo-levels", c.ReplaceGeoLevels).Methods(http.MethodPut)
	router.HandleFunc("/locations/column-mapping", c.GetColumnMapping).Methods(http.MethodGet)
	router.HandleFunc("/locations/column-mapping", c.PutColumnMapping).Methods(http.MethodPut)
	router.HandleFunc("/locations/upload", c.Upload).Methods(http.MethodPost)
	router.HandleFunc("/locations", c.GetLocations).Methods(http.MethodGet)
}

func surveyUID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["survey_uid"])
}

// writeDomainError maps the validation error families onto 422 responses and
// everything else onto 500. Problem lists are rendered verbatim.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var hErr *domain.HierarchyError
	var mErr *domain.MappingError
	var sErr *tabular.StructureError
	var rErr *tabular.RecordError

	switch {
	case errors.As(err, &hErr):
		_ = httpapi.WriteValidationErrors(w, "invalid_hierarchy", "geo level hierarchy is invalid", hErr.Problems)
	case errors.As(err, &mErr):
		_ = httpapi.WriteValidationErrors(w, "invalid_column_mapping", "column mapping is invalid", mErr.Problems)
	case errors.As(err, &sErr):
		_ = httpapi.WriteValidationErrors(w, "invalid_file_structure", "uploaded file structure is invalid", sErr.Problems)
	case errors.As(err, &rErr):
		_ = httpapi.WriteJSON(w, http.StatusUnprocessableEntity, rErr)
	case errors.Is(err, tabular.ErrEmptyHeader):
		_ = httpapi.WriteError(w, http.StatusBadRequest, "empty_header", err.Error(), nil)
	default:
		middleware.UseLogger(r.Context()).WithError(err).Error("request failed")
		_ = httpapi.WriteError(w, http.StatusInternalServerError, "internal", "internal server error", nil)
	}
}

type geoLevelDTO struct {
	UID       *uuid.UUID `json:"geo_level_uid"`
	Name      string     `json:"geo_level_name" validate:"required"`
	ParentUID *uuid.UUID `json:"parent_geo_level_uid"`
}

type replaceGeoLevelsDTO struct {
	GeoLevels []geoLevelDTO `json:"geo_levels" validate:"required,min=1,dive"`
}

func (c *LocationsController) GetGeoLevels(w http.ResponseWriter, r *http.Request) {
	uid, err := surveyUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey_uid", "survey uid must be a uuid", nil)
		return
	}

	h, err := c.locations.Hierarchy(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"geo_levels": h.Ordered})
}

func (c *LocationsController) ReplaceGeoLevels(w http.ResponseWriter, r *http.Request) {
	uid, err := surveyUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey_uid", "survey uid must be a uuid", nil)
		return
	}

	var dto replaceGeoLevelsDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	if err := validate.Struct(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}

	levels := make([]domain.GeoLevel, len(dto.GeoLevels))
	for i, l := range dto.GeoLevels {
		levels[i] = domain.GeoLevel{Name: l.Name, ParentUID: l.ParentUID}
		if l.UID != nil {
			levels[i].UID = *l.UID
		}
	}

	h, err := c.locations.ReplaceHierarchy(r.Context(), uid, levels)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"geo_levels": h.Ordered})
}

type columnMappingDTO struct {
	Mappings []domain.GeoLevelMapping `json:"column_mapping" validate:"required,min=1"`
}

func (c *LocationsController) GetColumnMapping(w http.ResponseWriter, r *http.Request) {
	uid, err := surveyUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey_uid", "survey uid must be a uuid", nil)
		return
	}

	m, err := c.locations.ColumnMapping(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"column_mapping": m.Entries()})
}

func (c *LocationsController) PutColumnMapping(w http.ResponseWriter, r *http.Request) {
	uid, err := surveyUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey_uid", "survey uid must be a uuid", nil)
		return
	}

	var dto columnMappingDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	if err := validate.Struct(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}

	m, err := c.locations.SetColumnMapping(r.Context(), uid, dto.Mappings)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"column_mapping": m.Entries()})
}

type uploadDTO struct {
	FileContents  string `json:"file_contents" validate:"required"`
	Mode          string `json:"mode" validate:"omitempty,oneof=overwrite append"`
	AcceptPartial bool   `json:"accept_partial"`
}

func (c *LocationsController) Upload(w http.ResponseWriter, r *http.Request) {
	uid, err := surveyUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey_uid", "survey uid must be a uuid", nil)
		return
	}

	conf := configuration.Use()
	r.Body = http.MaxBytesReader(w, r.Body, conf.Uploads.MaxBytes)

	var dto uploadDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	if err := validate.Struct(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}

	mode, err := services.ParseUploadMode(dto.Mode)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_mode", err.Error(), nil)
		return
	}

	result, err := c.locations.Upload(r.Context(), uid, dto.FileContents, services.UploadParams{
		Mode:          mode,
		AcceptPartial: dto.AcceptPartial,
		BatchSize:     conf.Uploads.BatchSize,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, result)
}

func (c *LocationsController) GetLocations(w http.ResponseWriter, r *http.Request) {
	uid, err := surveyUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey_uid", "survey uid must be a uuid", nil)
		return
	}

	h, rows, err := c.locations.WideTable(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	records := make([]map[string]domain.IDName, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]domain.IDName, len(h.Ordered))
		for _, level := range h.Ordered {
			rec[level.Name] = row[level.UID]
		}
		records = append(records, rec)
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"geo_levels": h.Ordered,
		"records":    records,
	})
}
