package middlewares

import (
	"context"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"github.com/graph-gophers/dataloader/v7"
)

type ledgerCategoryReader struct {
	reader LedgerCategoryReader
}

func (r *ledgerCategoryReader) getLedgerCategories(ctx context.Context, ids []int) []*dataloader.Result[*models.LedgerCategory] {
	rows, err := r.reader.GetLedgerCategoriesByIds(ctx, ids)
	if err != nil {
		return handleError[*models.LedgerCategory](len(ids), err)
	}
	results := make([]models.LedgerCategory, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			results = append(results, *row)
		}
	}
	return generateLoaderResults(results, ids)
}

func GetLedgerCategory(ctx context.Context, id int) (*models.LedgerCategory, error) {
	loaders := For(ctx)
	return loaders.ledgerCategoryLoader.Load(ctx, id)()
}

func GetLedgerCategories(ctx context.Context, ids []int) ([]*models.LedgerCategory, []error) {
	loaders := For(ctx)
	return loaders.ledgerCategoryLoader.LoadMany(ctx, ids)()
}

// ResolveLedgerCategories adapts the loader to the reports category resolver.
func ResolveLedgerCategories(ctx context.Context, ids []int) ([]*models.LedgerCategory, error) {
	categories, errs := GetLedgerCategories(ctx, ids)
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return categories, nil
}
