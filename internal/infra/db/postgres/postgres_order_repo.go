package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"pharmacy-intake-bot/internal/domain"
	"pharmacy-intake-bot/internal/domain/model"
	"pharmacy-intake-bot/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

// orderRepo stores confirmed orders. The dialogue itself lives in
// Redis; only orders that reached END land here.
type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

func (r *orderRepo) Save(ctx context.Context, sessionID string, o *model.Order) error {
	const q = `
INSERT INTO orders (
  order_id, session_id, medicine, price_cents, customer_name, cpf, phone,
  cep, street, district, city, region, house_number, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14);`

	_, err := r.pool.Exec(ctx, q,
		o.OrderID, sessionID, o.Medicine, o.PriceCents, o.CustomerName, o.CPF, o.Phone,
		o.CEP, o.Address.Street, o.Address.District, o.Address.City, o.Address.Region,
		o.HouseNumber, o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *orderRepo) ListRecent(ctx context.Context, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT order_id, medicine, price_cents, customer_name, cpf, phone,
       cep, street, district, city, region, house_number, created_at
FROM orders ORDER BY created_at DESC LIMIT $1;`

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o := &model.Order{}
		if err := rows.Scan(
			&o.OrderID, &o.Medicine, &o.PriceCents, &o.CustomerName, &o.CPF, &o.Phone,
			&o.CEP, &o.Address.Street, &o.Address.District, &o.Address.City, &o.Address.Region,
			&o.HouseNumber, &o.CreatedAt,
		); err != nil {
			return nil, domain.ErrOperationFailed
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
