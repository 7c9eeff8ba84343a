package notify

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// EventOrderPlaced is the event type header value of order events.
const EventOrderPlaced = "order.placed"

// EncodePlaced encodes p as the JSON payload of an order event. Money is
// encoded as decimal strings.
func EncodePlaced(p order.Placed) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	o := p.Order
	e.ObjStart()
	e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
	e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano)) })
	e.Field("customer", func(e *jx.Encoder) {
		c := o.Customer
		e.ObjStart()
		e.Field("name", func(e *jx.Encoder) { e.Str(c.Name) })
		e.Field("email", func(e *jx.Encoder) { e.Str(c.Email) })
		e.Field("deliveryMethod", func(e *jx.Encoder) { e.Str(string(c.DeliveryMethod)) })
		e.Field("shippingAddress", func(e *jx.Encoder) { e.Str(c.ShippingAddress) })
		e.Field("contactPhone", func(e *jx.Encoder) { e.Str(c.ContactPhone) })
		e.ObjEnd()
	})
	e.Field("items", func(e *jx.Encoder) {
		e.ArrStart()
		for _, it := range o.Items {
			e.ObjStart()
			e.Field("productId", func(e *jx.Encoder) { e.Int64(it.ProductID) })
			e.Field("productName", func(e *jx.Encoder) { e.Str(it.ProductName) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
			e.Field("unitPrice", func(e *jx.Encoder) { e.Str(it.UnitPrice.StringFixed(2)) })
			e.ObjEnd()
		}
		e.ArrEnd()
	})
	e.Field("subtotal", func(e *jx.Encoder) { e.Str(o.Subtotal.StringFixed(2)) })
	e.Field("discount", func(e *jx.Encoder) { e.Str(o.Discount.StringFixed(2)) })
	e.Field("totalPrice", func(e *jx.Encoder) { e.Str(o.TotalPrice.StringFixed(2)) })
	e.Field("newUserCouponApplied", func(e *jx.Encoder) { e.Bool(o.NewUserCouponApplied) })
	e.Field("thresholdCoupon", func(e *jx.Encoder) { e.Str(o.ThresholdCoupon) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("customerEmail", func(e *jx.Encoder) { e.Str(p.CustomerEmail) })
	e.Field("adminEmail", func(e *jx.Encoder) { e.Str(p.AdminEmail) })
	e.Field("accumulatedAmount", func(e *jx.Encoder) { e.Str(p.AccumulatedAmount.StringFixed(2)) })
	e.Field("newUserCouponUsed", func(e *jx.Encoder) { e.Bool(p.NewUserCouponUsed) })
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

// DecodePlaced decodes a payload produced by EncodePlaced. Unknown fields are
// ignored.
func DecodePlaced(data []byte) (order.Placed, error) {
	var (
		p order.Placed
		o = &p.Order
	)
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			o.ID, err = d.Str()
		case "userId":
			o.UserID, err = d.Str()
		case "createdAt":
			var s string
			if s, err = d.Str(); err == nil {
				o.CreatedAt, err = time.Parse(time.RFC3339Nano, s)
			}
		case "customer":
			err = decodeCustomer(d, &o.Customer)
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				o.Items = append(o.Items, it)
				return err
			})
		case "subtotal":
			o.Subtotal, err = decodeMoney(d)
		case "discount":
			o.Discount, err = decodeMoney(d)
		case "totalPrice":
			o.TotalPrice, err = decodeMoney(d)
		case "newUserCouponApplied":
			o.NewUserCouponApplied, err = d.Bool()
		case "thresholdCoupon":
			o.ThresholdCoupon, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			o.Status = order.Status(s)
		case "customerEmail":
			p.CustomerEmail, err = d.Str()
		case "adminEmail":
			p.AdminEmail, err = d.Str()
		case "accumulatedAmount":
			p.AccumulatedAmount, err = decodeMoney(d)
		case "newUserCouponUsed":
			p.NewUserCouponUsed, err = d.Bool()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return order.Placed{}, errors.Wrap(err, "decode order event")
	}
	if o.ID == "" {
		return order.Placed{}, errors.New("decode order event: missing orderId")
	}
	return p, nil
}

func decodeCustomer(d *jx.Decoder, c *order.Customer) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			c.Name, err = d.Str()
		case "email":
			c.Email, err = d.Str()
		case "deliveryMethod":
			var s string
			s, err = d.Str()
			c.DeliveryMethod = order.DeliveryMethod(s)
		case "shippingAddress":
			c.ShippingAddress, err = d.Str()
		case "contactPhone":
			c.ContactPhone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
}

func decodeItem(d *jx.Decoder) (order.Item, error) {
	var it order.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			it.ProductID, err = d.Int64()
		case "productName":
			it.ProductName, err = d.Str()
		case "quantity":
			it.Quantity, err = d.Int()
		case "unitPrice":
			it.UnitPrice, err = decodeMoney(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return it, err
}

func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(s)
}
