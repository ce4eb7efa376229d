package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/camden-git/annotationsys/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// UpsertAnnotation inserts the annotation row of an image, or replaces the
// shape columns of the existing one. The id and created_at of an existing row
// are kept. It returns the id of the stored row.
func UpsertAnnotation(ctx context.Context, db *sql.DB, a *models.Annotation) (string, error) {
	queryBuilder := psql.Insert("annotations").
		Columns(
			"id",
			"image_id",
			"mask_data",
			"bbox_data",
			"polygon_data",
			"labels",
			"created_at",
			"updated_at",
		).
		Values(
			a.ID,
			a.ImageID,
			string(a.MaskData),
			string(a.BBoxData),
			string(a.PolygonData),
			string(a.Labels),
			a.CreatedAt,
			a.UpdatedAt,
		).
		Suffix("ON CONFLICT(image_id) DO UPDATE SET").
		Suffix("mask_data = excluded.mask_data,").
		Suffix("bbox_data = excluded.bbox_data,").
		Suffix("polygon_data = excluded.polygon_data,").
		Suffix("labels = excluded.labels,").
		Suffix("updated_at = excluded.updated_at")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build SQL query for UpsertAnnotation: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqlStr, args...); err != nil {
		return "", fmt.Errorf("failed to upsert annotation for image %s: %w", a.ImageID, err)
	}

	var id string
	selectSQL, selectArgs, err := psql.Select("id").
		From("annotations").
		Where(sq.Eq{"image_id": a.ImageID}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build SQL query for annotation id: %w", err)
	}
	if err := db.QueryRowContext(ctx, selectSQL, selectArgs...).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read back annotation id for image %s: %w", a.ImageID, err)
	}
	return id, nil
}
