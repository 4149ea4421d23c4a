package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/xavierca1/ligue-crm/internal/entity"
)

const leadColumns = `id, name, company, email, phone, status, source, assigned_to, value, notes, tags, created_at, updated_at`

type LeadRepository struct {
	DB *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{DB: db}
}

func (r *LeadRepository) List(ctx context.Context, criteria entity.ListCriteria) ([]*entity.Lead, error) {
	query, args := buildListQuery(criteria)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	leads := []*entity.Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

func (r *LeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return lead, nil
}

func (r *LeadRepository) Create(ctx context.Context, lead *entity.Lead) error {
	query := `
		INSERT INTO leads (` + leadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.DB.ExecContext(ctx, query,
		lead.ID,
		lead.Name,
		lead.Company,
		lead.Email,
		nullString(lead.Phone),
		string(lead.Status),
		nullString(lead.Source),
		nullString(lead.AssignedTo),
		lead.Value,
		lead.Notes,
		pq.Array(tagsOrEmpty(lead.Tags)),
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// Update applies the non-nil fields of patch and returns the stored lead.
func (r *LeadRepository) Update(ctx context.Context, id string, patch entity.LeadPatch) (*entity.Lead, error) {
	query, args := buildUpdateQuery(id, patch)

	lead, err := scanLead(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapPgError(err)
	}
	return lead, nil
}

func (r *LeadRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrLeadNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*entity.Lead, error) {
	var lead entity.Lead
	var status string
	var phone, source, assignedTo sql.NullString
	var value sql.NullFloat64
	var tags []string

	err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Company,
		&lead.Email,
		&phone,
		&status,
		&source,
		&assignedTo,
		&value,
		&lead.Notes,
		pq.Array(&tags),
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	lead.Phone = phone.String
	lead.Source = source.String
	lead.AssignedTo = assignedTo.String
	lead.Status = entity.NormalizeStatus(status)
	if value.Valid {
		v := value.Float64
		lead.Value = &v
	}
	lead.Tags = tagsOrEmpty(tags)

	return &lead, nil
}

func buildListQuery(criteria entity.ListCriteria) (string, []any) {
	var (
		where []string
		args  []any
	)

	if criteria.Status != nil {
		args = append(args, string(*criteria.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if criteria.AssignedTo != "" {
		args = append(args, criteria.AssignedTo)
		where = append(where, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if q := strings.TrimSpace(criteria.Search); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR company ILIKE $%d OR email ILIKE $%d)", n, n, n))
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return query, args
}

func buildUpdateQuery(id string, patch entity.LeadPatch) (string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Company != nil {
		set("company", *patch.Company)
	}
	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.Phone != nil {
		set("phone", nullString(*patch.Phone))
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.Source != nil {
		set("source", nullString(*patch.Source))
	}
	if patch.AssignedTo != nil {
		set("assigned_to", nullString(*patch.AssignedTo))
	}
	if patch.Value != nil {
		set("value", *patch.Value)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.Tags != nil {
		set("tags", pq.Array(tagsOrEmpty(*patch.Tags)))
	}
	sets = append(sets, "updated_at = NOW()")

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE leads SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), leadColumns)
	return query, args
}

func mapPgError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrLeadNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return entity.ErrEmailAlreadyExists
		case "22P02": // invalid_text_representation, e.g. a malformed uuid
			return entity.ErrLeadNotFound
		case "23503": // foreign_key_violation: unknown owner
			return fmt.Errorf("%w: %s", entity.ErrInvalidLead, pgErr.Message)
		case "23514", "23502": // check_violation, not_null_violation
			return fmt.Errorf("%w: %s", entity.ErrInvalidLead, pgErr.Message)
		}
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
