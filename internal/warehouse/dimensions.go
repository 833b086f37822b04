//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import "strings"

// Region is keyed by {region, country}.
var Region = &Dimension{
	Name:       "region",
	Table:      "region_dim",
	IDColumn:   "region_id_pk",
	FactColumn: "region_id_fk",
	Sequence:   "region_dim_seq",
	KeyColumns: []string{"region", "country"},
	project: func(r *SalesRecord) []any {
		return []any{r.Region, r.Country}
	},
}

// Product is keyed by the mobile key and its four parsed segments.
var Product = &Dimension{
	Name:       "product",
	Table:      "product_dim",
	IDColumn:   "product_id_pk",
	FactColumn: "product_id_fk",
	Sequence:   "product_dim_seq",
	KeyColumns: []string{"mobile_key", "brand", "model", "color", "memory"},
	project: func(r *SalesRecord) []any {
		p := ParseMobileKey(r.MobileKey)
		return []any{r.MobileKey, nullable(p.Brand), nullable(p.Model), nullable(p.Color), nullable(p.Memory)}
	},
}

// PromoCode is keyed by {promotion_code, country, region}. Orders without
// a promotion resolve to the NoPromotion row.
var PromoCode = &Dimension{
	Name:       "promo_code",
	Table:      "promo_code_dim",
	IDColumn:   "promo_code_id_pk",
	FactColumn: "promo_code_id_fk",
	Sequence:   "promo_code_dim_seq",
	KeyColumns: []string{"promotion_code", "country", "region"},
	project: func(r *SalesRecord) []any {
		return []any{r.NormalizedPromotionCode(), r.Country, r.Region}
	},
}

// Customer is keyed by {customer_name, contact_no, shipping_address,
// country, region}.
var Customer = &Dimension{
	Name:       "customer",
	Table:      "customer_dim",
	IDColumn:   "customer_id_pk",
	FactColumn: "customer_id_fk",
	Sequence:   "customer_dim_seq",
	KeyColumns: []string{"customer_name", "contact_no", "shipping_address", "country", "region"},
	project: func(r *SalesRecord) []any {
		return []any{r.CustomerName, r.ContactNo, r.ShippingAddress, r.Country, r.Region}
	},
}

// Payment is keyed by {payment_method, payment_provider, country, region}.
var Payment = &Dimension{
	Name:       "payment",
	Table:      "payment_dim",
	IDColumn:   "payment_id_pk",
	FactColumn: "payment_id_fk",
	Sequence:   "payment_dim_seq",
	KeyColumns: []string{"payment_method", "payment_provider", "country", "region"},
	project: func(r *SalesRecord) []any {
		return []any{r.PaymentMethod, r.PaymentProvider, r.Country, r.Region}
	},
}

// Date is keyed by order_dt and generated over the whole observed range
// rather than projected per record.
var Date = &Dimension{
	Name:        "date",
	Table:       "date_dim",
	IDColumn:    "date_id_pk",
	FactColumn:  "date_id_fk",
	Sequence:    "date_dim_seq",
	KeyColumns:  []string{"order_dt"},
	AttrColumns: dateAttrColumns,
	project: func(r *SalesRecord) []any {
		return []any{r.OrderDate}
	},
	generate: generateDates,
}

// Dimensions returns every dimension in build order.
func Dimensions() []*Dimension {
	return []*Dimension{Region, Product, PromoCode, Customer, Payment, Date}
}

// LookupDimension returns the dimension with the given stage name.
func LookupDimension(name string) (*Dimension, bool) {
	for _, d := range Dimensions() {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// MobileKey holds the parsed segments of a brand/model/color/memory
// product identifier. Missing segments are nil.
type MobileKey struct {
	Brand  *string
	Model  *string
	Color  *string
	Memory *string
}

// ParseMobileKey splits key on "/". Keys with fewer than four segments
// leave the trailing fields nil; segments past the fourth are ignored.
func ParseMobileKey(key string) MobileKey {
	segs := strings.SplitN(key, "/", 5)
	at := func(i int) *string {
		if i >= len(segs) {
			return nil
		}
		s := segs[i]
		return &s
	}
	return MobileKey{
		Brand:  at(0),
		Model:  at(1),
		Color:  at(2),
		Memory: at(3),
	}
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
