package middlewares

import (
	"context"
	"reflect"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// LedgerCategoryReader is the batch read the category loader needs. The ledger store satisfies it.
type LedgerCategoryReader interface {
	GetLedgerCategoriesByIds(ctx context.Context, ids []int) ([]*models.LedgerCategory, error)
}

// Loaders wrap your data loaders to inject via middleware
type Loaders struct {
	ledgerCategoryLoader *dataloader.Loader[int, *models.LedgerCategory]
}

// NewLoaders instantiates data loaders for the middleware
func NewLoaders(reader LedgerCategoryReader) *Loaders {
	categoryReader := &ledgerCategoryReader{reader: reader}
	return &Loaders{
		ledgerCategoryLoader: dataloader.NewBatchedLoader(categoryReader.getLedgerCategories, dataloader.WithWait[int, *models.LedgerCategory](time.Millisecond)),
	}
}

func LoaderMiddleware(reader LedgerCategoryReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(reader)
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func For(ctx context.Context) *Loaders {
	return ctx.Value(loadersKey).(*Loaders)
}

// WithLoaders attaches fresh loaders to ctx outside of a gin request (CLI tools, tests).
func WithLoaders(ctx context.Context, reader LedgerCategoryReader) context.Context {
	return context.WithValue(ctx, loadersKey, NewLoaders(reader))
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// turns results from db into dataloader results
// (T must be a struct)
func generateLoaderResults[T models.Data](results []T, ids []int) []*dataloader.Result[*T] {
	resultMap := make(map[int]T)
	var resultZero T
	resultMap[0] = resultZero.GetDefault(0).(T)
	for _, result := range results {
		resultMap[result.GetId()] = result
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		data := resultMap[id]
		if reflect.ValueOf(data).IsZero() {
			data = data.GetDefault(id).(T)
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: &data})
	}
	return loaderResults
}
