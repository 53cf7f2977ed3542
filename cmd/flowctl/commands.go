package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"processhub/internal/config"
	"processhub/internal/infra"
	"processhub/internal/logger"
	"processhub/internal/tenant"
	"processhub/internal/workflow"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type globalOptions struct {
	env        string
	configPath string
	tenantID   string
	userID     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "flowctl",
		Short:         "流程定义的离线校验与导入导出工具",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.env, "env", "dev", "配置环境 dev/prod/test")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "配置文件路径，缺省按环境查找")
	root.PersistentFlags().StringVar(&opts.tenantID, "tenant", "", "租户 ID")
	root.PersistentFlags().StringVar(&opts.userID, "user", "", "操作人 ID")

	root.AddCommand(newValidateCmd(), newImportCmd(opts), newExportCmd(opts))
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "校验流程定义文件（不访问数据库）",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				doc, err := readDocument(path)
				if err == nil {
					err = doc.Validate()
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK   %s (%d 个步骤, %d 条流转)\n", path, len(doc.Steps), len(doc.Transitions))
			}
			if failed > 0 {
				return fmt.Errorf("%d 个文件校验失败", failed)
			}
			return nil
		},
	}
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "导入流程定义到指定租户",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := opts.tenantContext()
			if err != nil {
				return err
			}
			data, format, err := readFile(args[0])
			if err != nil {
				return err
			}
			svc, closeDB, err := opts.openService()
			if err != nil {
				return err
			}
			defer closeDB()

			detail, err := svc.ImportWorkflow(context.Background(), tc, data, format)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已导入 %s (%s)\n", detail.Name, detail.ID)
			return nil
		},
	}
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var format string
	var output string
	cmd := &cobra.Command{
		Use:   "export <workflow-id>",
		Short: "导出流程定义",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := opts.tenantContext()
			if err != nil {
				return err
			}
			exportFormat, err := workflow.ParseExportFormat(format)
			if err != nil {
				return err
			}
			svc, closeDB, err := opts.openService()
			if err != nil {
				return err
			}
			defer closeDB()

			result, err := svc.ExportWorkflow(context.Background(), tc, args[0], exportFormat)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(result.Data)
				return err
			}
			return os.WriteFile(output, result.Data, 0o644)
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "yaml 或 json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件，缺省写到标准输出")
	return cmd
}

func (o *globalOptions) tenantContext() (tenant.TenantContext, error) {
	tc := tenant.TenantContext{TenantID: strings.TrimSpace(o.tenantID), UserID: strings.TrimSpace(o.userID)}
	if !tc.Valid() {
		return tc, fmt.Errorf("必须同时指定 --tenant 与 --user")
	}
	return tc, nil
}

func (o *globalOptions) openService() (*workflow.WorkflowService, func(), error) {
	cfg, err := config.Load(o.env, o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init("warn", "console", "stderr"); err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return newService(db), func() { _ = infra.CloseDatabase() }, nil
}

func newService(db *gorm.DB) *workflow.WorkflowService {
	return workflow.NewWorkflowService(db,
		workflow.WithUserDirectory(tenant.NewDirectory(db, tenant.WithDirectoryLogger(logger.Get()))),
		workflow.WithServiceLogger(logger.Get()),
	)
}

// readDocument 按扩展名解析定义文件
func readDocument(path string) (*workflow.DefinitionDocument, error) {
	data, format, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return workflow.DecodeDefinition(data, format)
}

func readFile(path string) ([]byte, workflow.ExportFormat, error) {
	format := workflow.FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = workflow.FormatJSON
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("读取文件失败: %w", err)
	}
	return data, format, nil
}
