package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/fieldstream/fieldstream/modules/enumerators/services"
	locdomain "github.com/fieldstream/fieldstream/modules/locations/domain"
	surveyservices "github.com/fieldstream/fieldstream/modules/surveys/services"
	"github.com/fieldstream/fieldstream/pkg/application"
	"github.com/fieldstream/fieldstream/pkg/configuration"
	"github.com/fieldstream/fieldstream/pkg/httpapi"
	"github.com/fieldstream/fieldstream/pkg/middleware"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

var validate = validator.New()

type EnumeratorsController struct {
	app         application.Application
	enumerators *services.EnumeratorService
}

func NewEnumeratorsController(app application.Application) application.Controller {
	return &EnumeratorsController{
		app:         app,
		enumerators: app.Service(services.EnumeratorService{}).(*services.EnumeratorService),
	}
}

func (c *EnumeratorsController) Key() string {
	return "/surveys/enumerators"
}

func (c *EnumeratorsController) Register(r *mux.Router) {
	router := r.PathPrefix("/surveys/{survey_uid}").Subrouter()
	router.HandleFunc("/enumerators/upload", c.Upload).Methods(http.MethodPost)
	router.HandleFunc("/enumerators", c.Roster).Methods(http.MethodGet)
}

func surveyUID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["survey_uid"])
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var hErr *locdomain.HierarchyError
	var sErr *tabular.StructureError
	var rErr *tabular.RecordError

	switch {
	case errors.Is(err, surveyservices.ErrSurveyNotFound):
		_ = httpapi.WriteError(w, http.StatusNotFound, "survey_not_found", "survey not found", nil)
	case errors.As(err, &hErr):
		_ = httpapi.WriteValidationErrors(w, "invalid_hierarchy", "geo level hierarchy is invalid", hErr.Problems)
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

type uploadDTO struct {
	FileContents  string `json:"file_contents" validate:"required"`
	Mode          string `json:"mode" validate:"omitempty,oneof=overwrite append"`
	AcceptPartial bool   `json:"accept_partial"`
}

func (c *EnumeratorsController) Upload(w http.ResponseWriter, r *http.Request) {
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

	result, err := c.enumerators.Upload(r.Context(), uid, dto.FileContents, services.UploadParams{
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

func (c *EnumeratorsController) Roster(w http.ResponseWriter, r *http.Request) {
	uid, err := surveyUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey_uid", "survey uid must be a uuid", nil)
		return
	}

	roster, err := c.enumerators.Roster(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"enumerators": roster})
}
