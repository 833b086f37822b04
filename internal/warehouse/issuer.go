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
	"context"
	"fmt"
	"sort"
	"sync"
)

// KeyIssuer hands out surrogate keys from the store's sequences. Issuance
// is serialized per sequence; builders for different tables never wait on
// each other.
type KeyIssuer struct {
	store Store

	mu    sync.Mutex
	seqs  map[string]*sequenceState
	total int64
}

type sequenceState struct {
	mu   sync.Mutex
	last int64
}

// NewKeyIssuer creates an issuer backed by store.
func NewKeyIssuer(store Store) *KeyIssuer {
	return &KeyIssuer{
		store: store,
		seqs:  make(map[string]*sequenceState),
	}
}

func (k *KeyIssuer) sequence(name string) *sequenceState {
	k.mu.Lock()
	defer k.mu.Unlock()
	st, ok := k.seqs[name]
	if !ok {
		st = &sequenceState{}
		k.seqs[name] = st
	}
	return st
}

// Issue returns n fresh keys from sequence in ascending order. Every key
// is greater than any key previously issued from the same sequence by
// this issuer.
func (k *KeyIssuer) Issue(ctx context.Context, sequence string, n int) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}

	st := k.sequence(sequence)
	st.mu.Lock()
	defer st.mu.Unlock()

	var (
		keys []int64
		err  error
	)
	if bi, ok := k.store.(BlockIssuer); ok {
		keys, err = bi.IssueBlock(ctx, sequence, n)
		if err != nil {
			return nil, storeError("issue", sequence, err)
		}
		if len(keys) != n {
			return nil, fmt.Errorf("sequence %s returned %d keys, expected %d", sequence, len(keys), n)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	} else {
		keys = make([]int64, 0, n)
		for i := 0; i < n; i++ {
			v, err := k.store.IssueNext(ctx, sequence)
			if err != nil {
				return nil, storeError("issue", sequence, err)
			}
			keys = append(keys, v)
		}
	}

	prev := st.last
	for _, v := range keys {
		if v <= prev {
			return nil, fmt.Errorf("%w: sequence %s issued %d after %d",
				ErrDuplicateSurrogateKey, sequence, v, prev)
		}
		prev = v
	}
	st.last = prev

	k.mu.Lock()
	k.total += int64(n)
	k.mu.Unlock()

	return keys, nil
}

// Issued returns the number of keys handed out so far.
func (k *KeyIssuer) Issued() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.total
}
