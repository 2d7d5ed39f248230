package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BaSui01/charis/internal/history"
	"github.com/BaSui01/charis/internal/presets"
	"github.com/BaSui01/charis/llm/image"
	"github.com/BaSui01/charis/llm/prompt"
	"github.com/BaSui01/charis/types"
)

// =============================================================================
// 📝 caption
// =============================================================================

func newCaptionCmd(a *app) *cobra.Command {
	var (
		input string
		save  string
	)

	cmd := &cobra.Command{
		Use:     "caption",
		Aliases: []string{"cap"},
		Short:   "Generate a caption or reverse prompt for an image",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			bufs, err := a.readInputs(ctx, []string{input})
			if err != nil {
				return err
			}
			req := &image.CaptionRequest{Image: bufs[0]}
			if err := req.Validate(); err != nil {
				return err
			}

			chain, err := a.chain(ctx)
			if err != nil {
				return err
			}
			res, err := image.TryProviders(ctx, chain,
				func(ctx context.Context, p image.Provider) (string, error) { return p.Caption(ctx, req) },
				image.NonEmptyText, image.OpCaption, a.tryOptions()...)
			if err != nil {
				return err
			}

			caption := strings.TrimSpace(res.Value)
			a.record(ctx, &history.Entry{
				Command:  "caption",
				Prompt:   caption,
				Inputs:   []string{input},
				Provider: res.Provider.Name(),
			})
			return a.writeText(save, caption)
		},
	}

	cmd.Flags().StringVarP(&input, "image", "i", "", "Image path or URL")
	cmd.Flags().StringVarP(&save, "save", "o", "", "Write the caption to a file")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

// =============================================================================
// ✨ improve
// =============================================================================

func newImproveCmd(a *app) *cobra.Command {
	var (
		promptText string
		style      string
		presetPath string
		save       string
	)

	cmd := &cobra.Command{
		Use:     "improve [prompt...]",
		Aliases: []string{"imp"},
		Short:   "Improve a prompt before generating images",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := firstNonEmpty(promptText, strings.Join(args, " "))
			if presetPath != "" {
				p, err := presets.Load(presetPath)
				if err != nil {
					return err
				}
				text = firstNonEmpty(text, p.Prompt())
				style = firstNonEmpty(style, p.Style())
			}
			if text == "" {
				return types.NewError(types.ErrInvalidRequest, "a prompt is required (--prompt)")
			}

			chain, err := a.chain(ctx)
			if err != nil {
				return err
			}
			improved, err := prompt.Improve(ctx, chain, text, style, a.logger, image.WithMetrics(a.recorder))
			if err != nil {
				return err
			}

			a.record(ctx, &history.Entry{Command: "improve", Prompt: improved})
			return a.writeText(save, improved)
		},
	}

	cmd.Flags().StringVarP(&promptText, "prompt", "p", "", "Original prompt")
	cmd.Flags().StringVarP(&style, "style", "s", "", "Optional style guidance to inject")
	cmd.Flags().StringVar(&presetPath, "preset", "", "YAML preset providing prompt and style")
	cmd.Flags().StringVarP(&save, "save", "o", "", "Write the improved prompt to a file")
	return cmd
}
