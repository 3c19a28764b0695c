package main

import (
	"fmt"

	exportapp "github.com/erp/voucher-export/internal/application/export"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect export tasks",
}

var taskShowCmd = &cobra.Command{
	Use:   "show TASK_ID",
	Short: "Show the status and progress of an export task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tenant's export tasks, newest first",
	RunE:  runTaskList,
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskListCmd)

	f := taskListCmd.Flags()
	f.String("status", "", "Only tasks in this status")
	f.String("type", "", "Only tasks of this document type")
	f.Int("page", 1, "Page number")
	f.Int("page-size", 20, "Tasks per page")
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	tenantID, err := parseIDFlag("tenant", tenantFlag)
	if err != nil {
		return err
	}
	taskID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid task id %q: %w", args[0], err)
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	task, err := s.stack.Exports.GetTask(cmd.Context(), tenantID, taskID)
	if err != nil {
		return err
	}
	return printJSON(task)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	tenantID, err := parseIDFlag("tenant", tenantFlag)
	if err != nil {
		return err
	}
	status, _ := cmd.Flags().GetString("status")
	typeCode, _ := cmd.Flags().GetString("type")
	page, _ := cmd.Flags().GetInt("page")
	pageSize, _ := cmd.Flags().GetInt("page-size")

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	tasks, err := s.stack.Exports.ListTasks(cmd.Context(), tenantID, exportapp.TaskListQuery{
		Status:   status,
		TypeCode: typeCode,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return err
	}
	return printJSON(tasks)
}
