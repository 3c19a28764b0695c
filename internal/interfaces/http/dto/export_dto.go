package dto

import "time"

// SubmitExportRequest starts a voucher export over the documents matching Conditions
type SubmitExportRequest struct {
	TypeCode    string            `json:"type_code" binding:"required,type_code"`
	Conditions  map[string]string `json:"conditions" binding:"required,min=1"`
	DisplayName string            `json:"display_name" binding:"max=200"`
	Remark      string            `json:"remark" binding:"max=500"`
	Format      string            `json:"format" binding:"omitempty,export_format"`
	Reexport    bool              `json:"reexport"`
}

// ListExportTasksRequest filters and pages the task list
type ListExportTasksRequest struct {
	Status   string `form:"status" binding:"omitempty,oneof=pending running completed failed cancelled"`
	TypeCode string `form:"type_code" binding:"omitempty,type_code"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// CancelExportRequest clears the export markers set within a window
type CancelExportRequest struct {
	TypeCode    string            `json:"type_code" binding:"required,type_code"`
	WindowStart time.Time         `json:"window_start" binding:"required"`
	WindowEnd   time.Time         `json:"window_end" binding:"required,gtefield=WindowStart"`
	ExtraFilter map[string]string `json:"extra_filter"`
	Reason      string            `json:"reason" binding:"max=500"`
}

// IDRequest represents a request with an ID path parameter
type IDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}
