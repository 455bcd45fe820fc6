package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fieldstream/fieldstream/modules/enumerators/domain"
	"github.com/fieldstream/fieldstream/pkg/composables"
)

type EnumeratorRepository struct{}

func NewEnumeratorRepository() *EnumeratorRepository {
	return &EnumeratorRepository{}
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

func (r *EnumeratorRepository) Enumerators(ctx context.Context, surveyUID uuid.UUID) ([]domain.Enumerator, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT enumerator_uid, survey_uid, enumerator_id, name, email, phone, location_uid
FROM enumerators
WHERE survey_uid = $1
`, pgUUID(surveyUID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Enumerator
	for rows.Next() {
		var e domain.Enumerator
		var location pgtype.UUID
		if err := rows.Scan(&e.UID, &e.SurveyUID, &e.EnumeratorID, &e.Name, &e.Email, &e.Phone, &location); err != nil {
			return nil, err
		}
		if location.Valid {
			uid := uuid.UUID(location.Bytes)
			e.LocationUID = &uid
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EnumeratorRepository) InsertEnumerators(ctx context.Context, enumerators []domain.Enumerator) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, e := range enumerators {
		batch.Queue(`
INSERT INTO enumerators (enumerator_uid, survey_uid, enumerator_id, name, email, phone, location_uid)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, pgUUID(e.UID), pgUUID(e.SurveyUID), e.EnumeratorID, e.Name, e.Email, e.Phone, pgUUIDPtr(e.LocationUID))
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *EnumeratorRepository) DeleteEnumerators(ctx context.Context, surveyUID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM enumerators WHERE survey_uid = $1`, pgUUID(surveyUID))
	return err
}
