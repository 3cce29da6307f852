package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// encodeItems serializes line items to the persisted JSON form. Prices travel
// as strings so decimal values round-trip exactly.
func encodeItems(items []LineItem) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, it := range items {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(it.ProductID)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("price")
		e.Str(it.UnitPrice.String())
		e.FieldStart("image")
		e.Str(it.ImageURL)
		e.FieldStart("qty")
		e.Int(it.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

// decodeItems parses a persisted snapshot. Any malformed record fails the
// whole decode; the caller treats that as an empty cart.
func decodeItems(data []byte) ([]LineItem, error) {
	var items []LineItem

	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		var it LineItem
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "id":
				v, err := d.Int64()
				if err != nil {
					return err
				}
				it.ProductID = v
			case "name":
				v, err := d.Str()
				if err != nil {
					return err
				}
				it.Name = v
			case "price":
				v, err := d.Str()
				if err != nil {
					return err
				}
				price, err := decimal.NewFromString(v)
				if err != nil {
					return errors.Wrap(err, "parse price")
				}
				it.UnitPrice = price
			case "image":
				v, err := d.Str()
				if err != nil {
					return err
				}
				it.ImageURL = v
			case "qty":
				v, err := d.Int()
				if err != nil {
					return err
				}
				it.Quantity = v
			default:
				return d.Skip()
			}
			return nil
		}); err != nil {
			return err
		}

		if it.Quantity < 1 {
			return errors.Errorf("invalid quantity %d for product %d", it.Quantity, it.ProductID)
		}
		items = append(items, it)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}

	return items, nil
}
