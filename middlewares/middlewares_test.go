package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"github.com/gin-gonic/gin"
)

type fakeCategoryReader struct {
	mu    sync.Mutex
	calls int
	rows  map[int]string
}

func (r *fakeCategoryReader) GetLedgerCategoriesByIds(ctx context.Context, ids []int) ([]*models.LedgerCategory, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	var out []*models.LedgerCategory
	for _, id := range ids {
		if name, ok := r.rows[id]; ok {
			out = append(out, &models.LedgerCategory{ID: id, Name: name, IsActive: utils.NewTrue()})
		}
	}
	return out, nil
}

func TestLedgerCategoryLoaderFillsMissingIds(t *testing.T) {
	reader := &fakeCategoryReader{rows: map[int]string{1: "Rooms", 2: "F&B"}}
	ctx := WithLoaders(context.Background(), reader)

	categories, errs := GetLedgerCategories(ctx, []int{2, 9, 1})
	for _, err := range errs {
		if err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	if len(categories) != 3 {
		t.Fatalf("expected 3 results, got %d", len(categories))
	}
	if categories[0].Name != "F&B" || categories[2].Name != "Rooms" {
		t.Fatalf("results out of order: %q %q", categories[0].Name, categories[2].Name)
	}
	if categories[1].ID != 9 || categories[1].Active() {
		t.Fatalf("unknown id should load as an inactive placeholder, got %+v", categories[1])
	}

	// already cached
	if _, err := GetLedgerCategory(ctx, 1); err != nil {
		t.Fatalf("load one: %v", err)
	}
	if reader.calls != 1 {
		t.Fatalf("expected one batched read, got %d", reader.calls)
	}
}

func TestAuthMiddlewareSetsActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/me", RequireActor(), func(c *gin.Context) {
		ctx := c.Request.Context()
		id, _ := utils.GetUserIdFromContext(ctx)
		role, _ := utils.GetUserRoleFromContext(ctx)
		claim := CtxValue(ctx)
		if claim == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "role": role, "name": claim.Name})
	})

	token, err := utils.JwtGenerate(42, "Aye", models.UserRoleApprover)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"anonymous", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status %d want %d (%s)", w.Code, tc.want, w.Body.String())
			}
			if tc.want == http.StatusOK && !strings.Contains(w.Body.String(), `"name":"Aye"`) {
				t.Fatalf("claims not exposed: %s", w.Body.String())
			}
		})
	}
}
