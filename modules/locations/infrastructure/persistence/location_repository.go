package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/fieldstream/fieldstream/modules/locations/domain"
	"github.com/fieldstream/fieldstream/pkg/composables"
)

type LocationRepository struct{}

func NewLocationRepository() *LocationRepository {
	return &LocationRepository{}
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

func asUUIDPtr(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}

func (r *LocationRepository) GeoLevels(ctx context.Context, surveyUID uuid.UUID) ([]domain.GeoLevel, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT geo_level_uid, survey_uid, geo_level_name, parent_geo_level_uid
FROM geo_levels
WHERE survey_uid = $1
`, pgUUID(surveyUID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GeoLevel
	for rows.Next() {
		var l domain.GeoLevel
		var parent pgtype.UUID
		if err := rows.Scan(&l.UID, &l.SurveyUID, &l.Name, &parent); err != nil {
			return nil, err
		}
		l.ParentUID = asUUIDPtr(parent)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LocationRepository) ReplaceGeoLevels(ctx context.Context, surveyUID uuid.UUID, levels []domain.GeoLevel) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM geo_levels WHERE survey_uid = $1`, pgUUID(surveyUID)); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, l := range levels {
		batch.Queue(`
INSERT INTO geo_levels (geo_level_uid, survey_uid, geo_level_name, parent_geo_level_uid)
VALUES ($1, $2, $3, $4)
`, pgUUID(l.UID), pgUUID(surveyUID), l.Name, pgUUIDPtr(l.ParentUID))
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *LocationRepository) ColumnMapping(ctx context.Context, surveyUID uuid.UUID) ([]domain.GeoLevelMapping, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT geo_level_uid, location_id_column, location_name_column
FROM location_column_mappings
WHERE survey_uid = $1
`, pgUUID(surveyUID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GeoLevelMapping
	for rows.Next() {
		var e domain.GeoLevelMapping
		if err := rows.Scan(&e.GeoLevelUID, &e.IDColumn, &e.NameColumn); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *LocationRepository) SaveColumnMapping(ctx context.Context, surveyUID uuid.UUID, entries []domain.GeoLevelMapping) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(txCtx, `DELETE FROM location_column_mappings WHERE survey_uid = $1`, pgUUID(surveyUID)); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
INSERT INTO location_column_mappings (survey_uid, geo_level_uid, location_id_column, location_name_column)
VALUES ($1, $2, $3, $4)
`, pgUUID(surveyUID), pgUUID(e.GeoLevelUID), e.IDColumn, e.NameColumn)
		}
		return tx.SendBatch(txCtx, batch).Close()
	})
}

func (r *LocationRepository) Locations(ctx context.Context, surveyUID uuid.UUID) ([]domain.Location, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT location_uid, survey_uid, geo_level_uid, location_id, location_name, parent_location_uid
FROM locations
WHERE survey_uid = $1
`, pgUUID(surveyUID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLocations(rows)
}

func (r *LocationRepository) LocationsAtLevel(ctx context.Context, surveyUID, geoLevelUID uuid.UUID) ([]domain.Location, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT location_uid, survey_uid, geo_level_uid, location_id, location_name, parent_location_uid
FROM locations
WHERE survey_uid = $1 AND geo_level_uid = $2
`, pgUUID(surveyUID), pgUUID(geoLevelUID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLocations(rows)
}

func scanLocations(rows pgx.Rows) ([]domain.Location, error) {
	var out []domain.Location
	for rows.Next() {
		var l domain.Location
		var parent pgtype.UUID
		if err := rows.Scan(&l.UID, &l.SurveyUID, &l.GeoLevelUID, &l.LocationID, &l.Name, &parent); err != nil {
			return nil, err
		}
		l.ParentUID = asUUIDPtr(parent)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LocationRepository) InsertLocations(ctx context.Context, locations []domain.Location) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, l := range locations {
		batch.Queue(`
INSERT INTO locations (location_uid, survey_uid, geo_level_uid, location_id, location_name, parent_location_uid)
VALUES ($1, $2, $3, $4, $5, $6)
`, pgUUID(l.UID), pgUUID(l.SurveyUID), pgUUID(l.GeoLevelUID), l.LocationID, l.Name, pgUUIDPtr(l.ParentUID))
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *LocationRepository) DeleteLocations(ctx context.Context, surveyUID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM locations WHERE survey_uid = $1`, pgUUID(surveyUID))
	return err
}

func (r *LocationRepository) DeleteTargetLocationLinks(ctx context.Context, surveyUID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
UPDATE targets t
SET location_uid = NULL
FROM forms f
WHERE t.form_uid = f.form_uid AND f.survey_uid = $1
`, pgUUID(surveyUID))
	return err
}

func (r *LocationRepository) DeleteEnumeratorLocationLinks(ctx context.Context, surveyUID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
DELETE FROM enumerator_locations el
USING enumerators e
WHERE el.enumerator_uid = e.enumerator_uid AND e.survey_uid = $1
`, pgUUID(surveyUID))
	return err
}
