package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	locdomain "github.com/fieldstream/fieldstream/modules/locations/domain"
	"github.com/fieldstream/fieldstream/modules/targets/domain"
	"github.com/fieldstream/fieldstream/modules/targets/services"
	"github.com/fieldstream/fieldstream/pkg/application"
	"github.com/fieldstream/fieldstream/pkg/configuration"
	"github.com/fieldstream/fieldstream/pkg/httpapi"
	"github.com/fieldstream/fieldstream/pkg/middleware"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

var validate = validator.New()

type TargetsController struct {
	app     application.Application
	targets *services.TargetService
}

func NewTargetsController(app application.Application) application.Controller {
	return &TargetsController{
		app:     app,
		targets: app.Service(services.TargetService{}).(*services.TargetService),
	}
}

func (c *TargetsController) Key() string {
	return "/forms/targets"
}

func (c *TargetsController) Register(r *mux.Router) {
	router := r.PathPrefix("/forms/{form_uid}").Subrouter()
	router.HandleFunc("/targets/column-mapping", c.GetColumnMapping).Methods(http.MethodGet)
	router.HandleFunc("/targets/column-mapping", c.PutColumnMapping).Methods(http.MethodPut)
	router.HandleFunc("/targets/upload", c.Upload).Methods(http.MethodPost)
	router.HandleFunc("/targets", c.GetTargets).Methods(http.MethodGet)
}

func formUID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["form_uid"])
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var hErr *locdomain.HierarchyError
	var mErr *locdomain.MappingError
	var sErr *tabular.StructureError
	var rErr *tabular.RecordError

	switch {
	case errors.Is(err, services.ErrFormNotFound):
		_ = httpapi.WriteError(w, http.StatusNotFound, "form_not_found", "form not found", nil)
	case errors.Is(err, services.ErrNoColumnMapping):
		_ = httpapi.WriteError(w, http.StatusConflict, "no_column_mapping", err.Error(), nil)
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

func (c *TargetsController) GetColumnMapping(w http.ResponseWriter, r *http.Request) {
	uid, err := formUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_form_uid", "form uid must be a uuid", nil)
		return
	}

	m, err := c.targets.ColumnMapping(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"column_mapping": m.Input()})
}

func (c *TargetsController) PutColumnMapping(w http.ResponseWriter, r *http.Request) {
	uid, err := formUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_form_uid", "form uid must be a uuid", nil)
		return
	}

	var input domain.MappingInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}

	m, err := c.targets.SetColumnMapping(r.Context(), uid, input)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"column_mapping": m.Input()})
}

type uploadDTO struct {
	FileContents  string `json:"file_contents" validate:"required"`
	Mode          string `json:"mode" validate:"omitempty,oneof=overwrite merge"`
	AcceptPartial bool   `json:"accept_partial"`
}

func (c *TargetsController) Upload(w http.ResponseWriter, r *http.Request) {
	uid, err := formUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_form_uid", "form uid must be a uuid", nil)
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

	result, err := c.targets.Upload(r.Context(), uid, dto.FileContents, services.UploadParams{
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

func (c *TargetsController) GetTargets(w http.ResponseWriter, r *http.Request) {
	uid, err := formUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_form_uid", "form uid must be a uuid", nil)
		return
	}

	targets, err := c.targets.Targets(r.Context(), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"targets": targets})
}
