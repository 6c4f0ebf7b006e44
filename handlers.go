package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/middlewares"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models"
	"bitbucket.org/mmdatafocus/hotel_cashflow/models/reports"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"bitbucket.org/mmdatafocus/hotel_cashflow/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var errorStatus = map[utils.ErrorKind]int{
	utils.KindValidation:          http.StatusBadRequest,
	utils.KindForbidden:           http.StatusForbidden,
	utils.KindNotFound:            http.StatusNotFound,
	utils.KindConcurrencyConflict: http.StatusConflict,
	utils.KindInsufficientBalance: http.StatusUnprocessableEntity,
	utils.KindNoInflow:            http.StatusUnprocessableEntity,
	utils.KindPersistence:         http.StatusInternalServerError,
}

// errorResponse writes err as {"error", "kind", "fields"}. The service already logged
// persistence and conflict causes, so only the user message goes out.
func errorResponse(c *gin.Context, err error) {
	appErr := utils.AsAppError(err)
	status, ok := errorStatus[appErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := gin.H{"error": appErr.UserMessage(), "kind": appErr.Kind}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	if cid, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
		body["correlation_id"] = cid
	}
	_ = c.Error(err)
	c.JSON(status, body)
}

// bindJSON maps gin binding failures onto Validation errors.
func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			errorResponse(c, utils.NewFieldValidationError(utils.ProcessValidationErrors(err)))
		} else {
			errorResponse(c, utils.NewValidationError("invalid request body: %v", err))
		}
		return false
	}
	return true
}

func rawBody(c *gin.Context) (json.RawMessage, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		errorResponse(c, utils.NewValidationError("invalid request body: %v", err))
		return nil, false
	}
	return json.RawMessage(body), true
}

func pathKind(c *gin.Context) (models.ObligationKind, bool) {
	kind, err := models.ParseObligationKind(c.Param("kind"))
	if err != nil {
		errorResponse(c, utils.NewValidationError("%v", err))
		return "", false
	}
	return kind, true
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		errorResponse(c, utils.NewValidationError("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func dateParam(c *gin.Context, raw string, name string) (time.Time, bool) {
	d, err := utils.ParseDate(raw)
	if err != nil {
		errorResponse(c, utils.NewValidationError("%s: %v", name, err))
		return time.Time{}, false
	}
	return d, true
}

// cashflowAPI serves the REST surface over one CashflowService.
type cashflowAPI struct {
	app *application
}

func (a *cashflowAPI) svc() *workflow.CashflowService {
	return a.app.service()
}

func (a *cashflowAPI) createObligation(c *gin.Context) {
	kind, ok := pathKind(c)
	if !ok {
		return
	}
	payload, ok := rawBody(c)
	if !ok {
		return
	}
	res, err := a.svc().CreateObligation(c.Request.Context(), kind, payload)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (a *cashflowAPI) getObligation(c *gin.Context) {
	kind, ok := pathKind(c)
	if !ok {
		return
	}
	id, ok := pathId(c)
	if !ok {
		return
	}
	res, err := a.svc().GetObligation(c.Request.Context(), kind, id)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *cashflowAPI) updateObligation(c *gin.Context) {
	kind, ok := pathKind(c)
	if !ok {
		return
	}
	id, ok := pathId(c)
	if !ok {
		return
	}
	payload, ok := rawBody(c)
	if !ok {
		return
	}
	res, err := a.svc().UpdateObligation(c.Request.Context(), kind, id, payload)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *cashflowAPI) deleteObligation(c *gin.Context) {
	kind, ok := pathKind(c)
	if !ok {
		return
	}
	id, ok := pathId(c)
	if !ok {
		return
	}
	res, err := a.svc().DeleteObligation(c.Request.Context(), kind, id)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *cashflowAPI) updateObligationStatus(c *gin.Context) {
	kind, ok := pathKind(c)
	if !ok {
		return
	}
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input workflow.StatusChange
	if !bindJSON(c, &input) {
		return
	}
	res, err := a.svc().UpdateObligationStatus(c.Request.Context(), kind, id, input)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *cashflowAPI) recordActualInflow(c *gin.Context) {
	d, ok := dateParam(c, c.Param("date"), "date")
	if !ok {
		return
	}
	var input models.NewActualInflow
	if !bindJSON(c, &input) {
		return
	}
	day, err := a.svc().RecordActualInflow(c.Request.Context(), d, input)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, day)
}

func (a *cashflowAPI) updateProjectedInflow(c *gin.Context) {
	d, ok := dateParam(c, c.Param("date"), "date")
	if !ok {
		return
	}
	var input models.NewProjectedInflow
	if !bindJSON(c, &input) {
		return
	}
	entry, err := a.svc().UpdateProjectedInflow(c.Request.Context(), d, input)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (a *cashflowAPI) getProjectedInflow(c *gin.Context) {
	d, ok := dateParam(c, c.Param("date"), "date")
	if !ok {
		return
	}
	entry, err := a.svc().GetProjectedInflow(c.Request.Context(), d)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type generateMonthRequest struct {
	Month string `json:"month" binding:"required"`
}

func (a *cashflowAPI) generateMonth(c *gin.Context) {
	var req generateMonthRequest
	if !bindJSON(c, &req) {
		return
	}
	year, month, err := utils.ParseMonth(req.Month)
	if err != nil {
		errorResponse(c, utils.NewValidationError("month: %v", err))
		return
	}
	res, err := a.svc().GenerateMonth(c.Request.Context(), year, month)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type recomputeRequest struct {
	FromDate string `json:"from_date"`
}

func (a *cashflowAPI) recompute(c *gin.Context) {
	var req recomputeRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	var from time.Time
	if strings.TrimSpace(req.FromDate) != "" {
		var ok bool
		if from, ok = dateParam(c, req.FromDate, "from_date"); !ok {
			return
		}
	}
	res, err := a.svc().RecomputeLedger(c.Request.Context(), from)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *cashflowAPI) setOpeningBalance(c *gin.Context) {
	var input models.NewOpeningBalance
	if !bindJSON(c, &input) {
		return
	}
	ob, err := a.svc().SetOpeningBalance(c.Request.Context(), input)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, ob)
}

func rangeQuery(c *gin.Context) (time.Time, time.Time, bool) {
	start, ok := dateParam(c, c.Query("start"), "start")
	if !ok {
		return start, start, false
	}
	end, ok := dateParam(c, c.Query("end"), "end")
	return start, end, ok
}

func (a *cashflowAPI) getLedgerRange(c *gin.Context) {
	start, end, ok := rangeQuery(c)
	if !ok {
		return
	}
	res, err := reports.GetLedgerRange(c.Request.Context(), a.app.store, start, end)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *cashflowAPI) getBreakdown(c *gin.Context) {
	d, ok := dateParam(c, c.Param("date"), "date")
	if !ok {
		return
	}
	res, err := reports.GetBreakdown(c.Request.Context(), a.app.store, d)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *cashflowAPI) getSummary(c *gin.Context) {
	start, end, ok := rangeQuery(c)
	if !ok {
		return
	}
	res, err := reports.GetCashflowSummary(c.Request.Context(), a.app.store, middlewares.ResolveLedgerCategories, start, end)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *cashflowAPI) listLedgerCategories(c *gin.Context) {
	rows, err := a.svc().ListLedgerCategories(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (a *cashflowAPI) createLedgerCategory(c *gin.Context) {
	var input models.NewLedgerCategory
	if !bindJSON(c, &input) {
		return
	}
	category, err := a.svc().CreateLedgerCategory(c.Request.Context(), input)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

type outboxReplayRequest struct {
	RecordIds     []int `json:"record_ids"`
	IncludeFailed bool  `json:"include_failed"`
}

// outboxReplay requeues DEAD (and optionally FAILED) outbox rows for the dispatcher.
func (a *cashflowAPI) outboxReplay(c *gin.Context) {
	role, _ := utils.GetUserRoleFromContext(c.Request.Context())
	if !strings.EqualFold(role, models.UserRoleAdmin) {
		errorResponse(c, utils.NewForbiddenError("only admin may replay the outbox"))
		return
	}
	var req outboxReplayRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	if a.app.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outbox requires a database store"})
		return
	}
	res, err := workflow.ReplayOutbox(c.Request.Context(), a.app.db, req.RecordIds, req.IncludeFailed)
	if err != nil {
		config.LogError(a.app.logger, "handlers.go", "outboxReplay", "ReplayOutbox", req, err)
		errorResponse(c, err)
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	a.app.logger.WithFields(logrus.Fields{
		"field":          "outboxReplay",
		"requeued":       res.Requeued,
		"correlation_id": cid,
	}).Info("outbox replay")
	c.JSON(http.StatusOK, res)
}

// ledgerChanged runs after every committed write.
func ledgerChanged(logger *logrus.Logger) func(ctx context.Context, change workflow.LedgerChange) {
	return func(ctx context.Context, change workflow.LedgerChange) {
		if err := reports.BumpLedgerVersion(ctx); err != nil {
			config.LogError(logger, "handlers.go", "ledgerChanged", "BumpLedgerVersion", change, err)
		}
	}
}
