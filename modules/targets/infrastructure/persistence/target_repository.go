package persistence

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fieldstream/fieldstream/modules/targets/domain"
	"github.com/fieldstream/fieldstream/modules/targets/services"
	"github.com/fieldstream/fieldstream/pkg/composables"
)

type TargetRepository struct{}

func NewTargetRepository() *TargetRepository {
	return &TargetRepository{}
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

func (r *TargetRepository) SurveyForForm(ctx context.Context, formUID uuid.UUID) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	var surveyUID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT survey_uid FROM forms WHERE form_uid = $1`, pgUUID(formUID)).Scan(&surveyUID)
	if err == pgx.ErrNoRows {
		return uuid.Nil, services.ErrFormNotFound
	}
	return surveyUID, err
}

func (r *TargetRepository) ColumnMapping(ctx context.Context, formUID uuid.UUID) (domain.MappingInput, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return domain.MappingInput{}, false, err
	}

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT mapping FROM target_column_mappings WHERE form_uid = $1`, pgUUID(formUID)).Scan(&raw)
	if err == pgx.ErrNoRows {
		return domain.MappingInput{}, false, nil
	}
	if err != nil {
		return domain.MappingInput{}, false, err
	}

	var input domain.MappingInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return domain.MappingInput{}, false, err
	}
	return input, true, nil
}

func (r *TargetRepository) SaveColumnMapping(ctx context.Context, formUID uuid.UUID, mapping domain.MappingInput) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO target_column_mappings (form_uid, mapping)
VALUES ($1, $2::jsonb)
ON CONFLICT (form_uid) DO UPDATE SET mapping = EXCLUDED.mapping
`, pgUUID(formUID), string(raw))
	return err
}

func (r *TargetRepository) Targets(ctx context.Context, formUID uuid.UUID) ([]domain.Target, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT target_uid, form_uid, target_id, language, gender, location_uid, custom_fields
FROM targets
WHERE form_uid = $1
`, pgUUID(formUID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var t domain.Target
		var location pgtype.UUID
		var customs []byte
		if err := rows.Scan(&t.UID, &t.FormUID, &t.TargetID, &t.Language, &t.Gender, &location, &customs); err != nil {
			return nil, err
		}
		if location.Valid {
			uid := uuid.UUID(location.Bytes)
			t.LocationUID = &uid
		}
		if len(customs) > 0 {
			if err := json.Unmarshal(customs, &t.CustomFields); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TargetRepository) InsertTargets(ctx context.Context, targets []domain.Target) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, t := range targets {
		customs := "{}"
		if t.CustomFields != nil {
			raw, err := json.Marshal(t.CustomFields)
			if err != nil {
				return err
			}
			customs = string(raw)
		}
		batch.Queue(`
INSERT INTO targets (target_uid, form_uid, target_id, language, gender, location_uid, custom_fields)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
`, pgUUID(t.UID), pgUUID(t.FormUID), t.TargetID, t.Language, t.Gender, pgUUIDPtr(t.LocationUID), customs)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *TargetRepository) DeleteTargets(ctx context.Context, formUID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM targets WHERE form_uid = $1`, pgUUID(formUID))
	return err
}
