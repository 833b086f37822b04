//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package warehouse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	keySeparator = "\x1f"
	nullKeyPart  = "\x00"

	// DateLayout is the canonical text form of a calendar date.
	DateLayout = "2006-01-02"
)

// NaturalKey is the canonical, comparable encoding of a natural-key tuple.
// Two tuples encode to the same NaturalKey exactly when every part is equal,
// with NULL distinct from the empty string.
type NaturalKey string

// MakeKey encodes the given parts as a NaturalKey. Dates are reduced to
// their calendar day so values read back from a DATE column match values
// derived from the sales stream.
func MakeKey(parts ...any) NaturalKey {
	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			sb.WriteString(keySeparator)
		}
		sb.WriteString(keyPart(p))
	}
	return NaturalKey(sb.String())
}

func keyPart(v any) string {
	switch t := v.(type) {
	case nil:
		return nullKeyPart
	case string:
		return t
	case *string:
		if t == nil {
			return nullKeyPart
		}
		return *t
	case time.Time:
		return t.Format(DateLayout)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// Parts decodes the key back into its string parts. NULL parts decode as
// nil.
func (k NaturalKey) Parts() []*string {
	raw := strings.Split(string(k), keySeparator)
	parts := make([]*string, len(raw))
	for i, p := range raw {
		if p == nullKeyPart {
			continue
		}
		s := p
		parts[i] = &s
	}
	return parts
}

// String renders the key for logs.
func (k NaturalKey) String() string {
	parts := k.Parts()
	out := make([]string, len(parts))
	for i, p := range parts {
		if p == nil {
			out[i] = "NULL"
			continue
		}
		out[i] = *p
	}
	return strings.Join(out, "/")
}
