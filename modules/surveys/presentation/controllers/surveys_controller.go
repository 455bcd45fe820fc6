package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	locdomain "github.com/fieldstream/fieldstream/modules/locations/domain"
	"github.com/fieldstream/fieldstream/modules/surveys/domain"
	"github.com/fieldstream/fieldstream/modules/surveys/services"
	"github.com/fieldstream/fieldstream/pkg/application"
	"github.com/fieldstream/fieldstream/pkg/httpapi"
	"github.com/fieldstream/fieldstream/pkg/middleware"
)

var validate = validator.New()

type SurveysController struct {
	app     application.Application
	surveys *services.SurveyService
}

func NewSurveysController(app application.Application) application.Controller {
	return &SurveysController{
		app:     app,
		surveys: app.Service(services.SurveyService{}).(*services.SurveyService),
	}
}

func (c *SurveysController) Key() string {
	return "/surveys"
}

func (c *SurveysController) Register(r *mux.Router) {
	r.HandleFunc("/surveys", c.Create).Methods(http.MethodPost)
	r.HandleFunc("/surveys", c.List).Methods(http.MethodGet)
	r.HandleFunc("/surveys/{survey_uid}", c.Get).Methods(http.MethodGet)
	r.HandleFunc("/surveys/{survey_uid}", c.Patch).Methods(http.MethodPatch)
	r.HandleFunc("/surveys/{survey_uid}", c.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/surveys/{survey_uid}/prime-geo-level", c.SetPrimeGeoLevel).Methods(http.MethodPut)
}

func (c *SurveysController) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var hErr *locdomain.HierarchyError
	switch {
	case errors.Is(err, services.ErrSurveyNotFound):
		_ = httpapi.WriteError(w, http.StatusNotFound, "survey_not_found", "survey not found", nil)
	case errors.As(err, &hErr):
		_ = httpapi.WriteValidationErrors(w, "invalid_hierarchy", "geo level hierarchy is invalid", hErr.Problems)
	default:
		middleware.UseLogger(r.Context()).WithError(err).Error("request failed")
		_ = httpapi.WriteError(w, http.StatusInternalServerError, "internal", "internal server error", nil)
	}
}

func pathUID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["survey_uid"])
}

type createSurveyDTO struct {
	Key  string `json:"survey_key" validate:"required"`
	Name string `json:"survey_name" validate:"required"`
}

func (c *SurveysController) Create(w http.ResponseWriter, r *http.Request) {
	var dto createSurveyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	if err := validate.Struct(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}

	survey, err := c.surveys.Create(r.Context(), domain.Survey{Key: dto.Key, Name: dto.Name})
	if err != nil {
		if errors.Is(err, services.ErrSurveyNotFound) {
			c.writeError(w, r, err)
			return
		}
		// key collisions and field validation failures are caller errors
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey", err.Error(), nil)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, survey)
}

func (c *SurveysController) List(w http.ResponseWriter, r *http.Request) {
	surveys, err := c.surveys.List(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"surveys": surveys})
}

func (c *SurveysController) Get(w http.ResponseWriter, r *http.Request) {
	uid, err := pathUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey_uid", "survey uid must be a uuid", nil)
		return
	}
	survey, err := c.surveys.Get(r.Context(), uid)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, survey)
}

type patchSurveyDTO struct {
	Name  *string `json:"survey_name"`
	State *string `json:"state" validate:"omitempty,oneof=draft active closed"`
}

func (c *SurveysController) Patch(w http.ResponseWriter, r *http.Request) {
	uid, err := pathUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey_uid", "survey uid must be a uuid", nil)
		return
	}

	var dto patchSurveyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	if err := validate.Struct(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}

	patch := services.SurveyPatch{Name: dto.Name}
	if dto.State != nil {
		state, err := domain.ParseState(*dto.State)
		if err != nil {
			_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_state", err.Error(), nil)
			return
		}
		patch.State = &state
	}

	survey, err := c.surveys.Update(r.Context(), uid, patch)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, survey)
}

func (c *SurveysController) Delete(w http.ResponseWriter, r *http.Request) {
	uid, err := pathUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey_uid", "survey uid must be a uuid", nil)
		return
	}
	if err := c.surveys.Delete(r.Context(), uid); err != nil {
		c.writeError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusNoContent, nil)
}

type primeGeoLevelDTO struct {
	GeoLevelUID uuid.UUID `json:"geo_level_uid" validate:"required"`
}

func (c *SurveysController) SetPrimeGeoLevel(w http.ResponseWriter, r *http.Request) {
	uid, err := pathUID(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_survey_uid", "survey uid must be a uuid", nil)
		return
	}

	var dto primeGeoLevelDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	if err := validate.Struct(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return
	}

	survey, err := c.surveys.SetPrimeGeoLevel(r.Context(), uid, dto.GeoLevelUID)
	if err != nil {
		if errors.Is(err, services.ErrSurveyNotFound) {
			c.writeError(w, r, err)
			return
		}
		var hErr *locdomain.HierarchyError
		if errors.As(err, &hErr) {
			c.writeError(w, r, err)
			return
		}
		_ = httpapi.WriteError(w, http.StatusBadRequest, "invalid_prime_geo_level", err.Error(), nil)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, survey)
}
