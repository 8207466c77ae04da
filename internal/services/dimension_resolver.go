package services

import (
	"context"
	"fmt"
	"strings"

	"rainfall-platform/internal/repository"
)

type regencyKey struct {
	provinceID int64
	name       string
}

// DimensionResolver turns province and regency names into ids inside one
// transaction attempt. Ids are memoised so a name repeated across rows costs
// one statement; a new resolver must be built for every attempt.
type DimensionResolver struct {
	tx        repository.TxRepository
	provinces map[string]int64
	regencies map[regencyKey]int64
}

// NewDimensionResolver creates a resolver bound to tx
func NewDimensionResolver(tx repository.TxRepository) *DimensionResolver {
	return &DimensionResolver{
		tx:        tx,
		provinces: make(map[string]int64),
		regencies: make(map[regencyKey]int64),
	}
}

// Resolve returns the province and regency ids for one metadata row. A
// regency is only resolved under a resolved province; an orphan regency
// yields nil and is never created.
func (d *DimensionResolver) Resolve(ctx context.Context, provinceName, regencyName string) (*int64, *int64, error) {
	provinceName = strings.TrimSpace(provinceName)
	regencyName = strings.TrimSpace(regencyName)

	if provinceName == "" {
		return nil, nil, nil
	}

	provinceID, ok := d.provinces[provinceName]
	if !ok {
		id, err := d.tx.UpsertProvince(ctx, provinceName)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve province %q: %w", provinceName, err)
		}
		provinceID = id
		d.provinces[provinceName] = id
	}

	if regencyName == "" {
		return &provinceID, nil, nil
	}

	key := regencyKey{provinceID: provinceID, name: regencyName}
	regencyID, ok := d.regencies[key]
	if !ok {
		id, err := d.tx.UpsertRegency(ctx, provinceID, regencyName)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve regency %q: %w", regencyName, err)
		}
		regencyID = id
		d.regencies[key] = id
	}

	return &provinceID, &regencyID, nil
}
