package handler

import (
	"context"

	exportapp "github.com/erp/voucher-export/internal/application/export"
	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/interfaces/http/dto"
	"github.com/erp/voucher-export/internal/interfaces/http/middleware"
	"github.com/erp/voucher-export/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PermissionRead allows reading export tasks and downloading their files
const PermissionRead = "voucher_export:read"

// ExportTaskService is the task side of the export application service
type ExportTaskService interface {
	Submit(ctx context.Context, cmd exportapp.SubmitExportCommand) (*exportapp.SubmitResult, error)
	GetTask(ctx context.Context, tenantID, taskID uuid.UUID) (*exportapp.TaskResponse, error)
	ListTasks(ctx context.Context, tenantID uuid.UUID, query exportapp.TaskListQuery) (*exportapp.TaskListResponse, error)
	CancelTask(ctx context.Context, actor export.Actor, taskID uuid.UUID) (*exportapp.TaskResponse, error)
	FileLocation(ctx context.Context, tenantID, taskID uuid.UUID) (*export.FileLocation, error)
}

// ExportCanceller reverses the export markers of a window
type ExportCanceller interface {
	Cancel(ctx context.Context, cmd exportapp.CancelExportCommand) (*exportapp.CancelExportResult, error)
}

var (
	_ ExportTaskService = (*exportapp.ExportService)(nil)
	_ ExportCanceller   = (*exportapp.CancellationService)(nil)
)

// ExportHandler handles voucher export API endpoints
type ExportHandler struct {
	BaseHandler
	tasks       ExportTaskService
	canceller   ExportCanceller
	permissions middleware.PermissionConfig
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(tasks ExportTaskService, canceller ExportCanceller, permissions middleware.PermissionConfig) *ExportHandler {
	return &ExportHandler{
		tasks:       tasks,
		canceller:   canceller,
		permissions: permissions,
	}
}

// RegisterRoutes mounts the export routes under rg
func (h *ExportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	require := func(action export.Action) gin.HandlerFunc {
		return middleware.RequirePermissionWithConfig(string(action), h.permissions)
	}
	// submitters may follow their tasks; files stay behind the read permission
	status := middleware.RequireAnyPermissionWithConfig(h.permissions, PermissionRead, string(export.ActionExport))

	exports := router.NewDomainGroup("voucher-exports", "/voucher-exports").
		POST("", require(export.ActionExport), h.Submit).
		GET("", status, h.List).
		GET("/:id", status, h.Get).
		POST("/:id/cancel", require(export.ActionExport), h.CancelTask).
		GET("/:id/file", require(PermissionRead), h.File)
	exports.Group("cancellations", "/cancellations").
		POST("", require(export.ActionCancel), h.CancelExported)

	exports.RegisterRoutes(rg)
}

// Submit handles POST /voucher-exports
func (h *ExportHandler) Submit(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req dto.SubmitExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.tasks.Submit(c.Request.Context(), exportapp.SubmitExportCommand{
		Actor:       actor,
		TypeCode:    req.TypeCode,
		Conditions:  req.Conditions,
		DisplayName: req.DisplayName,
		Remark:      req.Remark,
		Format:      req.Format,
		Reexport:    req.Reexport,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, result)
}

// List handles GET /voucher-exports
func (h *ExportHandler) List(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req dto.ListExportTasksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	page, err := h.tasks.ListTasks(c.Request.Context(), tenantID, exportapp.TaskListQuery{
		Status:   req.Status,
		TypeCode: req.TypeCode,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if !middleware.HasPermission(c, PermissionRead) {
		for i := range page.Tasks {
			page.Tasks[i].FileID = nil
		}
	}
	h.SuccessWithMeta(c, page.Tasks, page.Total, page.Page, page.PageSize)
}

// Get handles GET /voucher-exports/:id
func (h *ExportHandler) Get(c *gin.Context) {
	tenantID, taskID, ok := h.scope(c)
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(c.Request.Context(), tenantID, taskID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !middleware.HasPermission(c, PermissionRead) {
		task.FileID = nil
	}

	h.Success(c, task)
}

// CancelTask handles POST /voucher-exports/:id/cancel
func (h *ExportHandler) CancelTask(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	taskID, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid export task ID")
		return
	}

	task, err := h.tasks.CancelTask(c.Request.Context(), actor, taskID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, task)
}

// File handles GET /voucher-exports/:id/file
func (h *ExportHandler) File(c *gin.Context) {
	tenantID, taskID, ok := h.scope(c)
	if !ok {
		return
	}

	location, err := h.tasks.FileLocation(c.Request.Context(), tenantID, taskID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, location)
}

// CancelExported handles POST /voucher-exports/cancellations
func (h *ExportHandler) CancelExported(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	var req dto.CancelExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.canceller.Cancel(c.Request.Context(), exportapp.CancelExportCommand{
		Actor:       actor,
		TypeCode:    req.TypeCode,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		ExtraFilter: req.ExtraFilter,
		Reason:      req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// scope resolves the caller's tenant and the :id task, writing the error response on failure
func (h *ExportHandler) scope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.HandleError(c, err)
		return uuid.Nil, uuid.Nil, false
	}
	taskID, ok := pathID(c)
	if !ok {
		h.BadRequest(c, "Invalid export task ID")
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, taskID, true
}
