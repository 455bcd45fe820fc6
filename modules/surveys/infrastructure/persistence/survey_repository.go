package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fieldstream/fieldstream/modules/surveys/domain"
	"github.com/fieldstream/fieldstream/modules/surveys/services"
	"github.com/fieldstream/fieldstream/pkg/composables"
)

type SurveyRepository struct{}

func NewSurveyRepository() *SurveyRepository {
	return &SurveyRepository{}
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgUUIDPtr(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

const surveyColumns = `survey_uid, survey_key, survey_name, state, prime_geo_level_uid`

func scanSurvey(row pgx.Row) (domain.Survey, error) {
	var s domain.Survey
	var prime pgtype.UUID
	if err := row.Scan(&s.UID, &s.Key, &s.Name, &s.State, &prime); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Survey{}, services.ErrSurveyNotFound
		}
		return domain.Survey{}, err
	}
	if prime.Valid {
		uid := uuid.UUID(prime.Bytes)
		s.PrimeGeoLevelUID = &uid
	}
	return s, nil
}

func (r *SurveyRepository) Get(ctx context.Context, uid uuid.UUID) (domain.Survey, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return domain.Survey{}, err
	}
	return scanSurvey(tx.QueryRow(ctx,
		`SELECT `+surveyColumns+` FROM surveys WHERE survey_uid = $1`, pgUUID(uid)))
}

func (r *SurveyRepository) GetByKey(ctx context.Context, key string) (domain.Survey, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return domain.Survey{}, err
	}
	return scanSurvey(tx.QueryRow(ctx,
		`SELECT `+surveyColumns+` FROM surveys WHERE survey_key = $1`, key))
}

func (r *SurveyRepository) List(ctx context.Context) ([]domain.Survey, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `SELECT `+surveyColumns+` FROM surveys ORDER BY survey_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Survey
	for rows.Next() {
		s, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SurveyRepository) Insert(ctx context.Context, s domain.Survey) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO surveys (survey_uid, survey_key, survey_name, state, prime_geo_level_uid)
VALUES ($1, $2, $3, $4, $5)
`, pgUUID(s.UID), s.Key, s.Name, string(s.State), pgUUIDPtr(s.PrimeGeoLevelUID))
	return err
}

func (r *SurveyRepository) Update(ctx context.Context, s domain.Survey) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE surveys
SET survey_name = $2, state = $3, prime_geo_level_uid = $4
WHERE survey_uid = $1
`, pgUUID(s.UID), s.Name, string(s.State), pgUUIDPtr(s.PrimeGeoLevelUID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return services.ErrSurveyNotFound
	}
	return nil
}

func (r *SurveyRepository) Delete(ctx context.Context, uid uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM surveys WHERE survey_uid = $1`, pgUUID(uid))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return services.ErrSurveyNotFound
	}
	return nil
}
