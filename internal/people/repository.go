package people

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blasbase/blasbase/internal/functions"
	"github.com/blasbase/blasbase/internal/platform/db"
	"github.com/blasbase/blasbase/internal/shared"
)

// Repository provides PostgreSQL backed persistence for people.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectPerson = `
	SELECT id, first_name, nickname, last_name, born, deceased, personal_id_num_suffix,
	       liu_id, about, special_diets_extra, COALESCE(email, ''), user_id, last_updated
	FROM people`

// ListPeople returns a page of people ordered by name, and the total match count.
func (r *Repository) ListPeople(ctx context.Context, params ListParams) ([]Person, int, error) {
	pg := shared.NewPagination(params.Page, params.PerPage, 0)
	pattern := "%" + escapeLike(strings.TrimSpace(params.Query)) + "%"
	where := `
	WHERE $1 = '%%'
	   OR first_name ILIKE $1 OR last_name ILIKE $1 OR nickname ILIKE $1
	   OR email ILIKE $1 OR liu_id ILIKE $1`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM people`+where, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count people: %w", err)
	}
	rows, err := r.pool.Query(ctx, selectPerson+where+`
	ORDER BY last_name, first_name, id
	LIMIT $2 OFFSET $3`, pattern, pg.PerPage, pg.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list people: %w", err)
	}
	people, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Person, error) { return scanPerson(row) })
	if err != nil {
		return nil, 0, fmt.Errorf("scan people: %w", err)
	}
	if err := r.attach(ctx, people); err != nil {
		return nil, 0, err
	}
	return people, total, nil
}

// GetPerson fetches a person with contact details.
func (r *Repository) GetPerson(ctx context.Context, id int64) (Person, error) {
	p, err := scanPerson(r.pool.QueryRow(ctx, selectPerson+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Person{}, shared.ErrNotFound
		}
		return Person{}, fmt.Errorf("get person: %w", err)
	}
	list := []Person{p}
	if err := r.attach(ctx, list); err != nil {
		return Person{}, err
	}
	return list[0], nil
}

// GetPersonByUser fetches the person linked to an account.
func (r *Repository) GetPersonByUser(ctx context.Context, userID int64) (Person, error) {
	p, err := scanPerson(r.pool.QueryRow(ctx, selectPerson+` WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Person{}, shared.ErrNotFound
		}
		return Person{}, fmt.Errorf("get person by user: %w", err)
	}
	return p, nil
}

// PeopleByIDs returns the given people ordered by name, without contact details.
func (r *Repository) PeopleByIDs(ctx context.Context, ids []int64) ([]Person, error) {
	rows, err := r.pool.Query(ctx, selectPerson+` WHERE id = ANY($1) ORDER BY last_name, first_name, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("people by ids: %w", err)
	}
	people, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Person, error) { return scanPerson(row) })
	if err != nil {
		return nil, fmt.Errorf("scan people: %w", err)
	}
	return people, nil
}

// AllPersonIDs returns every person id.
func (r *Repository) AllPersonIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM people ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("person ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan person ids: %w", err)
	}
	return ids, nil
}

// HoldersOf lists people with an assignment to any of functionIDs, regardless of dates.
func (r *Repository) HoldersOf(ctx context.Context, functionIDs []int64) ([]functions.Holder, error) {
	rows, err := r.pool.Query(ctx, selectPerson+`
	WHERE id IN (SELECT person_id FROM assignments WHERE function_id = ANY($1))
	ORDER BY last_name, first_name, id`, functionIDs)
	if err != nil {
		return nil, fmt.Errorf("holders: %w", err)
	}
	people, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Person, error) { return scanPerson(row) })
	if err != nil {
		return nil, fmt.Errorf("scan holders: %w", err)
	}
	out := make([]functions.Holder, 0, len(people))
	for _, p := range people {
		out = append(out, functions.Holder{PersonID: p.ID, FullName: p.FullName()})
	}
	return out, nil
}

// ListSpecialDiets returns the diet catalogue.
func (r *Repository) ListSpecialDiets(ctx context.Context) ([]SpecialDiet, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM special_diets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list special diets: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[SpecialDiet])
}

// CreatePerson inserts a person and its contact records.
func (r *Repository) CreatePerson(ctx context.Context, in PersonInput) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO people (first_name, nickname, last_name, born, deceased, personal_id_num_suffix,
			                    liu_id, about, special_diets_extra, email)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
			RETURNING id`,
			in.FirstName, in.Nickname, in.LastName, db.DateParam(in.Born), db.DateParam(in.Deceased),
			in.PersonalIDNumSuffix, in.LiuID, in.About, in.SpecialDietsExtra, in.Email).Scan(&id)
		if err != nil {
			return mapWriteError("insert person", err)
		}
		return replaceDetails(ctx, tx, id, in)
	})
	return id, err
}

// UpdatePerson overwrites a person and replaces its contact records.
func (r *Repository) UpdatePerson(ctx context.Context, id int64, in PersonInput) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE people SET first_name = $2, nickname = $3, last_name = $4, born = $5, deceased = $6,
			       personal_id_num_suffix = $7, liu_id = $8, about = $9, special_diets_extra = $10,
			       email = NULLIF($11, ''), last_updated = NOW()
			WHERE id = $1`,
			id, in.FirstName, in.Nickname, in.LastName, db.DateParam(in.Born), db.DateParam(in.Deceased),
			in.PersonalIDNumSuffix, in.LiuID, in.About, in.SpecialDietsExtra, in.Email)
		if err != nil {
			return mapWriteError("update person", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return replaceDetails(ctx, tx, id, in)
	})
}

// DeletePerson removes a person, cascading to contacts and assignments.
func (r *Repository) DeletePerson(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM people WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// LinkUser attaches an account to a person. A nil userID unlinks.
func (r *Repository) LinkUser(ctx context.Context, personID int64, userID *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE people SET user_id = $2, last_updated = NOW() WHERE id = $1`, personID, userID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("link user: %w", shared.ErrDuplicate)
		}
		return mapWriteError("link user", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func replaceDetails(ctx context.Context, tx pgx.Tx, id int64, in PersonInput) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM person_addresses WHERE person_id = $1`, id)
	batch.Queue(`DELETE FROM person_phone_numbers WHERE person_id = $1`, id)
	batch.Queue(`DELETE FROM person_special_diets WHERE person_id = $1`, id)
	for _, a := range in.Addresses {
		batch.Queue(`INSERT INTO person_addresses (person_id, address, post_code, city, country) VALUES ($1, $2, $3, $4, $5)`,
			id, a.Address, a.PostCode, a.City, a.Country)
	}
	for _, ph := range in.PhoneNumbers {
		batch.Queue(`INSERT INTO person_phone_numbers (person_id, number, country) VALUES ($1, $2, $3)`, id, ph.Number, ph.Country)
	}
	if len(in.SpecialDietIDs) > 0 {
		batch.Queue(`INSERT INTO person_special_diets (person_id, special_diet_id) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
			id, in.SpecialDietIDs)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("person details: %w", shared.NewValidationError("special_diet_ids", "unknown special diet"))
		}
		return fmt.Errorf("person details: %w", err)
	}
	return nil
}

// attach loads contact records for people in place.
func (r *Repository) attach(ctx context.Context, people []Person) error {
	if len(people) == 0 {
		return nil
	}
	ids := make([]int64, len(people))
	index := make(map[int64]int, len(people))
	for i, p := range people {
		ids[i] = p.ID
		index[p.ID] = i
		people[i].Addresses = []Address{}
		people[i].PhoneNumbers = []PhoneNumber{}
		people[i].SpecialDiets = []SpecialDiet{}
	}

	rows, err := r.pool.Query(ctx, `SELECT person_id, id, address, post_code, city, country FROM person_addresses WHERE person_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("load addresses: %w", err)
	}
	var pid int64
	var addr Address
	if _, err := pgx.ForEachRow(rows, []any{&pid, &addr.ID, &addr.Address, &addr.PostCode, &addr.City, &addr.Country}, func() error {
		people[index[pid]].Addresses = append(people[index[pid]].Addresses, addr)
		return nil
	}); err != nil {
		return fmt.Errorf("scan addresses: %w", err)
	}

	rows, err = r.pool.Query(ctx, `SELECT person_id, id, number, country FROM person_phone_numbers WHERE person_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("load phone numbers: %w", err)
	}
	var phone PhoneNumber
	if _, err := pgx.ForEachRow(rows, []any{&pid, &phone.ID, &phone.Number, &phone.Country}, func() error {
		people[index[pid]].PhoneNumbers = append(people[index[pid]].PhoneNumbers, phone)
		return nil
	}); err != nil {
		return fmt.Errorf("scan phone numbers: %w", err)
	}

	rows, err = r.pool.Query(ctx, `
		SELECT psd.person_id, sd.id, sd.name
		FROM person_special_diets psd JOIN special_diets sd ON sd.id = psd.special_diet_id
		WHERE psd.person_id = ANY($1) ORDER BY sd.name`, ids)
	if err != nil {
		return fmt.Errorf("load special diets: %w", err)
	}
	var diet SpecialDiet
	if _, err := pgx.ForEachRow(rows, []any{&pid, &diet.ID, &diet.Name}, func() error {
		people[index[pid]].SpecialDiets = append(people[index[pid]].SpecialDiets, diet)
		return nil
	}); err != nil {
		return fmt.Errorf("scan special diets: %w", err)
	}
	return nil
}

func scanPerson(row pgx.Row) (Person, error) {
	var (
		p              Person
		born, deceased pgtype.Date
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.Nickname, &p.LastName, &born, &deceased, &p.PersonalIDNumSuffix,
		&p.LiuID, &p.About, &p.SpecialDietsExtra, &p.Email, &p.UserID, &p.LastUpdated)
	if err != nil {
		return Person{}, err
	}
	p.Born = db.DateValue(born)
	p.Deceased = db.DateValue(deceased)
	return p, nil
}

func mapWriteError(op string, err error) error {
	if db.IsCheckViolation(err) {
		return fmt.Errorf("%s: %w", op, shared.NewValidationError("deceased", "decease date must be after birth date"))
	}
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%s: %w", op, shared.NewValidationError("user_id", "does not exist"))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
