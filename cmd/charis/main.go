// =============================================================================
// Charis 主入口
// =============================================================================
// 命令行图像生成工具，通过 Gemini Provider 链生成、编辑与描述图像
//
// 使用方法:
//
//	charis generate -p "a red fox in the snow" -n 2
//	charis edit --image cat.png --instruction "add a hat"
//	charis merge -i a.png -i b.png --layout grid
//	charis caption -i photo.jpg
//	charis config set-key gemini <API_KEY>
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BaSui01/charis/internal/ctxkeys"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(stdout, stderr)
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	start := time.Now()
	cmd, err := root.ExecuteContextC(ctx)
	a.finish(cmd, err, time.Since(start))

	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", color.RedString("✖"), err)
		if errors.Is(err, context.Canceled) {
			return 130
		}
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "charis",
		Short: "Generate and edit images with Gemini from the command line",
		Long: `Charis turns prompts and images into image files. Every image command tries
the native Gemini client first and falls back to the REST client when it fails
or returns nothing usable.

Examples:
  $ charis generate -p "a lighthouse at dusk" -n 2
  $ charis edit --image photo.jpg --instruction "make it winter"
  $ charis improve "a cat" --style watercolor`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := ctxkeys.WithCommand(ctxkeys.WithRunID(cmd.Context(), uuid.NewString()), cmd.Name())
			cmd.SetContext(ctx)
			return a.setup(ctx)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file (default $CHARIS_CONFIG_DIR/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level override (debug|info|warn|error)")

	root.AddCommand(
		newGenerateCmd(a),
		newEditCmd(a),
		newMergeCmd(a),
		newCaptionCmd(a),
		newUpscaleCmd(a),
		newRemoveBgCmd(a),
		newImproveCmd(a),
		newHistoryCmd(a),
		newPresetsCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}
