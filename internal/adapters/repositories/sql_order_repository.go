package repositories

import (
	"context"
	"database/sql"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQL-backed implementation of the OrderRepository port. Works against
// SQLite (modernc) and Postgres (pgx); queries are written with ? and rebound.
type SQLOrderRepository struct{ DB *sqlx.DB }

func NewSQLOrderRepository(db *sqlx.DB) *SQLOrderRepository {
	return &SQLOrderRepository{DB: db}
}

func decodeOrder(payload string) (*domain.DeliveryOrder, error) {
	var o domain.DeliveryOrder
	if err := json.Unmarshal([]byte(payload), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *SQLOrderRepository) Get(ctx context.Context, id int64) (_ *domain.DeliveryOrder, err error) {
	defer obs.Time(ctx, "orders.sql.Get")(&err)

	if s.DB == nil {
		return nil, errors.New("sql order repository: DB is nil")
	}

	var payload string
	q := s.DB.Rebind(`SELECT payload FROM delivery_orders WHERE id = ?;`)
	if err := s.DB.GetContext(ctx, &payload, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("order", id)
		}
		return nil, fmt.Errorf("get order: query id=%d: %w", id, err)
	}

	o, err := decodeOrder(payload)
	if err != nil {
		return nil, fmt.Errorf("get order: decode id=%d: %w", id, err)
	}
	return o, nil
}

// Return all orders stored in the database ordered by id.
func (s *SQLOrderRepository) List(ctx context.Context) (_ []*domain.DeliveryOrder, err error) {
	defer obs.Time(ctx, "orders.sql.List")(&err)

	if s.DB == nil {
		return nil, errors.New("sql order repository: DB is nil")
	}

	var payloads []string
	if err := s.DB.SelectContext(ctx, &payloads, `SELECT payload FROM delivery_orders ORDER BY id;`); err != nil {
		return nil, fmt.Errorf("list orders: query delivery_orders table: %w", err)
	}

	orders := make([]*domain.DeliveryOrder, 0, len(payloads))
	for i, p := range payloads {
		o, err := decodeOrder(p)
		if err != nil {
			return nil, fmt.Errorf("list orders: decode row %d: %w", i+1, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *SQLOrderRepository) Upsert(ctx context.Context, order *domain.DeliveryOrder) (err error) {
	defer obs.Time(ctx, "orders.sql.Upsert")(&err)

	if s.DB == nil {
		return errors.New("sql order repository: DB is nil")
	}
	if order == nil || order.ID <= 0 {
		return errors.New("upsert order: a positive id is required")
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("upsert order: encode id=%d: %w", order.ID, err)
	}

	q := s.DB.Rebind(`
	INSERT INTO delivery_orders (id, delivery_status, assigned_driver, created_at, updated_at, payload)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE
	SET delivery_status = excluded.delivery_status,
		assigned_driver = excluded.assigned_driver,
		updated_at = excluded.updated_at,
		payload = excluded.payload;
	`)
	if _, err := s.DB.ExecContext(ctx, q,
		order.ID, string(order.DeliveryStatus), order.AssignedDriver,
		order.CreatedAt.UTC(), order.UpdatedAt.UTC(), string(payload),
	); err != nil {
		return fmt.Errorf("upsert order: id=%d: %w", order.ID, err)
	}

	// Explicit ids bypass the Postgres sequence; keep it ahead of them.
	if s.DB.DriverName() == "pgx" {
		if _, err := s.DB.ExecContext(ctx, `
		SELECT setval(pg_get_serial_sequence('delivery_orders', 'id'), GREATEST(MAX(id), 1))
		FROM delivery_orders;
		`); err != nil {
			return fmt.Errorf("upsert order: advance id sequence: %w", err)
		}
	}
	return nil
}

// Create inserts order under a new id and returns it.
func (s *SQLOrderRepository) Create(ctx context.Context, order *domain.DeliveryOrder) (_ int64, err error) {
	defer obs.Time(ctx, "orders.sql.Create")(&err)

	if s.DB == nil {
		return 0, errors.New("sql order repository: DB is nil")
	}
	if order == nil {
		return 0, errors.New("create order: order is nil")
	}

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("create order: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	insert := tx.Rebind(`
	INSERT INTO delivery_orders (delivery_status, assigned_driver, created_at, updated_at, payload)
	VALUES (?, ?, ?, ?, '{}')
	RETURNING id;
	`)
	if err := tx.GetContext(ctx, &id, insert,
		string(order.DeliveryStatus), order.AssignedDriver, order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
	); err != nil {
		return 0, fmt.Errorf("create order: insert: %w", err)
	}

	c := order.Clone()
	c.ID = id
	payload, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("create order: encode id=%d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE delivery_orders SET payload = ? WHERE id = ?;`), string(payload), id); err != nil {
		return 0, fmt.Errorf("create order: store payload id=%d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("create order: commit tx: %w", err)
	}
	return id, nil
}
