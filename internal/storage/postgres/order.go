package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

const (
	orderColumns = `id, user_id, created_at,
		customer_name, customer_email, delivery_method, shipping_address, contact_phone,
		subtotal, discount, total_price, new_user_coupon_applied, threshold_coupon,
		status, courier, tracking_number`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)`

	listOrdersByUserSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrderItemsSQL = `SELECT order_id, product_id, product_name, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`

	updateOrderShippingSQL = `UPDATE orders
		SET courier = COALESCE($2, courier),
			tracking_number = COALESCE($3, tracking_number)
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Orders
// are created only through the checkout unit of work.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// ListByUser returns the user's orders newest first, with their items.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Get returns a single order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// UpdateStatus sets the administrative status of an order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return errors.Wrapf(err, "update order %q status", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdateShipping sets the courier and tracking number. Nil fields keep their
// stored value.
func (r *OrderRepository) UpdateShipping(ctx context.Context, id string, s order.Shipping) error {
	tag, err := r.pool.Exec(ctx, updateOrderShippingSQL, id, s.Courier, s.TrackingNumber)
	if err != nil {
		return errors.Wrapf(err, "update order %q shipping", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "list order items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      order.Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice); err != nil {
			return errors.Wrap(err, "scan order item")
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return rows.Err()
}

// createOrder writes the order and its items in one batch.
func createOrder(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	c := o.Customer
	b := &pgx.Batch{}
	b.Queue(createOrderSQL,
		o.ID, o.UserID, o.CreatedAt,
		c.Name, c.Email, string(c.DeliveryMethod), c.ShippingAddress, c.ContactPhone,
		o.Subtotal, o.Discount, o.TotalPrice, o.NewUserCouponApplied, o.ThresholdCoupon,
		string(o.Status), o.Courier, o.TrackingNumber,
	)
	for _, it := range o.Items {
		b.Queue(createOrderItemSQL, o.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		delivery string
		status   string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.CreatedAt,
		&o.Customer.Name, &o.Customer.Email, &delivery, &o.Customer.ShippingAddress, &o.Customer.ContactPhone,
		&o.Subtotal, &o.Discount, &o.TotalPrice, &o.NewUserCouponApplied, &o.ThresholdCoupon,
		&status, &o.Courier, &o.TrackingNumber,
	)
	o.Customer.DeliveryMethod = order.DeliveryMethod(delivery)
	o.Status = order.Status(status)
	return o, err
}
