package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fieldstream/fieldstream/modules/locations/domain"
	"github.com/fieldstream/fieldstream/pkg/tabular"
)

const defaultBatchSize = 1000

// locationReconciler writes validated upload rows level by level from the
// root down. Parents are written and flushed before children, so each level
// can resolve its parent business keys to internal identifiers by querying
// the rows the previous pass just inserted. Everything runs inside the
// caller's transaction, which rolls back wholesale on any failure.
type locationReconciler struct {
	repo      LocationRepository
	hierarchy *domain.GeoLevelHierarchy
	mapping   *domain.LocationColumnMapping
	batchSize int
}

func newLocationReconciler(repo LocationRepository, h *domain.GeoLevelHierarchy, mapping *domain.LocationColumnMapping, batchSize int) *locationReconciler {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &locationReconciler{repo: repo, hierarchy: h, mapping: mapping, batchSize: batchSize}
}

// levelRecord is one distinct (business key, name, parent key) triple at one
// geo level, collapsed from however many upload rows repeat it.
type levelRecord struct {
	id        string
	name      string
	parentKey string
}

func (r *locationReconciler) Persist(ctx context.Context, surveyUID uuid.UUID, table *tabular.Table, rows []tabular.Row) (int, error) {
	inserted := 0
	for i, level := range r.hierarchy.Ordered {
		var parentLevel *domain.GeoLevel
		if i > 0 {
			parentLevel = &r.hierarchy.Ordered[i-1]
		}

		parentUIDs, err := r.parentLookup(ctx, surveyUID, parentLevel)
		if err != nil {
			return inserted, err
		}

		existing, err := r.existingKeys(ctx, surveyUID, level.UID)
		if err != nil {
			return inserted, err
		}

		n, err := r.persistLevel(ctx, surveyUID, level, parentLevel, table, rows, parentUIDs, existing)
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

// parentLookup maps the parent level's business keys to internal
// identifiers. Queried fresh per level so the previous level's inserts are
// visible.
func (r *locationReconciler) parentLookup(ctx context.Context, surveyUID uuid.UUID, parentLevel *domain.GeoLevel) (map[string]uuid.UUID, error) {
	if parentLevel == nil {
		return nil, nil
	}
	parents, err := r.repo.LocationsAtLevel(ctx, surveyUID, parentLevel.UID)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s locations", parentLevel.Name)
	}
	lookup := make(map[string]uuid.UUID, len(parents))
	for _, p := range parents {
		lookup[p.LocationID] = p.UID
	}
	return lookup, nil
}

func (r *locationReconciler) existingKeys(ctx context.Context, surveyUID, geoLevelUID uuid.UUID) (map[string]struct{}, error) {
	current, err := r.repo.LocationsAtLevel(ctx, surveyUID, geoLevelUID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch existing locations")
	}
	keys := make(map[string]struct{}, len(current))
	for _, l := range current {
		keys[l.LocationID] = struct{}{}
	}
	return keys, nil
}

func (r *locationReconciler) persistLevel(
	ctx context.Context,
	surveyUID uuid.UUID,
	level domain.GeoLevel,
	parentLevel *domain.GeoLevel,
	table *tabular.Table,
	rows []tabular.Row,
	parentUIDs map[string]uuid.UUID,
	existing map[string]struct{},
) (int, error) {
	own, _ := r.mapping.ForLevel(level.UID)
	var parentIDColumn string
	if parentLevel != nil {
		pm, _ := r.mapping.ForLevel(parentLevel.UID)
		parentIDColumn = pm.IDColumn
	}

	// Collapse repeated rows: upper levels repeat once per descendant leaf.
	seen := make(map[levelRecord]struct{})
	var records []levelRecord
	for _, row := range rows {
		rec := levelRecord{
			id:   table.Get(row, own.IDColumn),
			name: table.Get(row, own.NameColumn),
		}
		if parentIDColumn != "" {
			rec.parentKey = table.Get(row, parentIDColumn)
		}
		if rec.id == "" {
			continue
		}
		if _, dup := seen[rec]; dup {
			continue
		}
		seen[rec] = struct{}{}
		if _, persisted := existing[rec.id]; persisted {
			continue
		}
		records = append(records, rec)
	}

	batch := make([]domain.Location, 0, r.batchSize)
	inserted := 0
	for _, rec := range records {
		loc := domain.Location{
			UID:         uuid.New(),
			SurveyUID:   surveyUID,
			GeoLevelUID: level.UID,
			LocationID:  rec.id,
			Name:        rec.name,
		}
		if parentLevel != nil {
			if parentUID, ok := parentUIDs[rec.parentKey]; ok {
				loc.ParentUID = &parentUID
			}
		}
		batch = append(batch, loc)
		if len(batch) == r.batchSize {
			if err := r.repo.InsertLocations(ctx, batch); err != nil {
				return inserted, errors.Wrapf(err, "insert %s locations", level.Name)
			}
			inserted += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := r.repo.InsertLocations(ctx, batch); err != nil {
			return inserted, errors.Wrapf(err, "insert %s locations", level.Name)
		}
		inserted += len(batch)
	}
	return inserted, nil
}
