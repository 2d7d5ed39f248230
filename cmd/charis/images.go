package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/charis/internal/history"
	"github.com/BaSui01/charis/internal/presets"
	"github.com/BaSui01/charis/llm/image"
	"github.com/BaSui01/charis/llm/prompt"
	"github.com/BaSui01/charis/types"
)

// outputFlags 图像输出相关的公共参数
type outputFlags struct {
	size    string
	format  string
	quality int
	out     string
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.size, "size", "s", "", "Target size in the format WIDTHxHEIGHT")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Output format (png|jpg|webp)")
	cmd.Flags().IntVarP(&f.quality, "quality", "q", 0, "Image quality between 0-100")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Directory where images will be written")
}

// resolved 解析后的输出参数
type resolved struct {
	size    *image.Size
	format  image.Format
	quality *int
	dir     string
}

func (f *outputFlags) resolve(a *app, cmd *cobra.Command) (*resolved, error) {
	size, err := parseOptionalSize(f.size)
	if err != nil {
		return nil, err
	}
	format, err := a.resolveFormat(f.format)
	if err != nil {
		return nil, err
	}
	dir, err := a.outputDir(f.out)
	if err != nil {
		return nil, err
	}
	return &resolved{size: size, format: format, quality: a.resolveQuality(cmd, f.quality), dir: dir}, nil
}

// =============================================================================
// 🎨 generate
// =============================================================================

func newGenerateCmd(a *app) *cobra.Command {
	var (
		promptText  string
		presetPath  string
		count       int
		minimum     int
		exact       bool
		seed        int64
		temperature float64
		aspect      string
		out         outputFlags
	)

	cmd := &cobra.Command{
		Use:     "generate [prompt...]",
		Aliases: []string{"gen"},
		Short:   "Generate images from a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := firstNonEmpty(promptText, strings.Join(args, " "))
			if text == "" && presetPath != "" {
				p, err := presets.Load(presetPath)
				if err != nil {
					return err
				}
				text = p.Prompt()
				if style := p.Style(); style != "" {
					text = text + ". Style: " + style
				}
			}
			if strings.TrimSpace(text) == "" {
				return types.NewError(types.ErrInvalidRequest, "a prompt is required (--prompt)")
			}

			o, err := out.resolve(a, cmd)
			if err != nil {
				return err
			}
			accept, err := acceptance(count, minimum, exact)
			if err != nil {
				return err
			}

			req := &image.GenerateRequest{
				Prompt:  text,
				Count:   count,
				Size:    o.size,
				Format:  o.format,
				Quality: o.quality,
			}
			if o.size == nil {
				if req.Aspect, err = resolveAspect(aspect, a.cfg.DefaultAspect); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			if cmd.Flags().Changed("temperature") {
				req.Options = map[string]any{"temperature": temperature}
			}
			if err := req.Validate(); err != nil {
				return err
			}

			chain, err := a.chain(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("generating images",
				zap.String("prompt", text), zap.Int("n", count), zap.String("format", string(o.format)))

			res, err := image.TryProviders(ctx, chain,
				func(ctx context.Context, p image.Provider) ([][]byte, error) { return p.Generate(ctx, req) },
				accept, image.OpGenerate, a.tryOptions()...)
			if err != nil {
				return err
			}

			files, err := a.save("generate", o.dir, o.format, res.Value)
			a.record(ctx, &history.Entry{
				Command:   "generate",
				Prompt:    text,
				Count:     count,
				Size:      firstNonEmpty(sizeString(o.size), req.Aspect),
				Format:    string(o.format),
				Quality:   *o.quality,
				OutputDir: o.dir,
				Files:     files,
				Provider:  res.Provider.Name(),
			})
			return err
		},
	}

	cmd.Flags().StringVarP(&promptText, "prompt", "p", "", "Prompt to send to Gemini")
	cmd.Flags().StringVar(&presetPath, "preset", "", "YAML preset providing prompt and style")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of images to generate")
	cmd.Flags().IntVar(&minimum, "min", 1, "Minimum number of images a provider must return")
	cmd.Flags().BoolVar(&exact, "exact", false, "Require exactly --count images from a provider")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Sampling seed")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature")
	cmd.Flags().StringVar(&aspect, "aspect", "", "Aspect ratio hint W:H when --size is not set (default from config)")
	out.register(cmd)
	return cmd
}

// =============================================================================
// ✏️ edit
// =============================================================================

func newEditCmd(a *app) *cobra.Command {
	var (
		inputs      []string
		instruction string
		maskPath    string
		out         outputFlags
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit local or remote images with an instruction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			o, err := out.resolve(a, cmd)
			if err != nil {
				return err
			}
			bufs, err := a.readInputs(ctx, inputs)
			if err != nil {
				return err
			}

			req := &image.EditRequest{
				Images:      bufs,
				Instruction: instruction,
				Size:        o.size,
				Format:      o.format,
				Quality:     o.quality,
			}
			if maskPath != "" {
				masks, err := a.readInputs(ctx, []string{maskPath})
				if err != nil {
					return err
				}
				req.Mask = masks[0]
			}
			if err := req.Validate(); err != nil {
				return err
			}

			chain, err := a.chain(ctx)
			if err != nil {
				return err
			}
			res, err := image.TryProviders(ctx, chain,
				func(ctx context.Context, p image.Provider) ([][]byte, error) { return p.Edit(ctx, req) },
				image.AtLeast(1), image.OpEdit, a.tryOptions()...)
			if err != nil {
				return err
			}

			files, err := a.save("edit", o.dir, o.format, res.Value)
			a.record(ctx, &history.Entry{
				Command:     "edit",
				Instruction: instruction,
				Inputs:      inputs,
				Size:        sizeString(o.size),
				Format:      string(o.format),
				Quality:     *o.quality,
				OutputDir:   o.dir,
				Files:       files,
				Provider:    res.Provider.Name(),
			})
			return err
		},
	}

	cmd.Flags().StringSliceVarP(&inputs, "image", "i", nil, "One or more image paths or URLs")
	cmd.Flags().StringVar(&instruction, "instruction", "", "Editing instruction to apply")
	cmd.Flags().StringVar(&maskPath, "mask", "", "Optional mask image path or URL")
	out.register(cmd)
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("instruction")
	return cmd
}

// =============================================================================
// 🧩 merge
// =============================================================================

func newMergeCmd(a *app) *cobra.Command {
	var (
		inputs   []string
		layout   string
		override string
		out      outputFlags
	)

	cmd := &cobra.Command{
		Use:     "merge",
		Aliases: []string{"mg"},
		Short:   "Merge two or more images using Gemini image editing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			o, err := out.resolve(a, cmd)
			if err != nil {
				return err
			}
			bufs, err := a.readInputs(ctx, inputs)
			if err != nil {
				return err
			}
			if len(bufs) < 2 {
				return types.NewError(types.ErrInvalidRequest, "at least two images are required to merge")
			}

			instruction := firstNonEmpty(override, prompt.MergeInstruction(prompt.ParseLayout(layout), len(bufs)))
			req := &image.EditRequest{
				Images:      bufs,
				Instruction: instruction,
				Size:        o.size,
				Format:      o.format,
				Quality:     o.quality,
			}
			if err := req.Validate(); err != nil {
				return err
			}

			chain, err := a.chain(ctx)
			if err != nil {
				return err
			}
			res, err := image.TryProviders(ctx, chain,
				func(ctx context.Context, p image.Provider) ([][]byte, error) { return p.Edit(ctx, req) },
				image.AtLeast(1), "merge", a.tryOptions()...)
			if err != nil {
				return err
			}

			files, err := a.save("merge", o.dir, o.format, firstNonEmptyBuffer(res.Value))
			a.record(ctx, &history.Entry{
				Command:   "merge",
				Prompt:    instruction,
				Inputs:    inputs,
				Size:      sizeString(o.size),
				Format:    string(o.format),
				Quality:   *o.quality,
				OutputDir: o.dir,
				Files:     files,
				Provider:  res.Provider.Name(),
			})
			return err
		},
	}

	cmd.Flags().StringSliceVarP(&inputs, "image", "i", nil, "Two or more image paths or URLs")
	cmd.Flags().StringVarP(&layout, "layout", "l", string(prompt.LayoutBlend), "Layout hint (blend|horizontal|grid)")
	cmd.Flags().StringVarP(&override, "prompt", "p", "", "Custom prompt to send instead of the layout hint")
	out.register(cmd)
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

// =============================================================================
// 🔍 upscale / remove-bg
// =============================================================================

func newUpscaleCmd(a *app) *cobra.Command {
	var (
		input  string
		factor int
		out    string
	)

	cmd := &cobra.Command{
		Use:     "upscale",
		Aliases: []string{"up"},
		Short:   "Increase the resolution of an image",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			req := &image.UpscaleRequest{Factor: factor}
			return a.singleImage(ctx, "upscale", input, out, image.CapabilityUpscale,
				func(buf []byte) error { req.Image = buf; return req.Validate() },
				func(ctx context.Context, p image.Provider) ([]byte, error) {
					up, ok := image.AsUpscaler(p)
					if !ok {
						return nil, unsupported(p, image.OpUpscale)
					}
					return up.Upscale(ctx, req)
				}, image.OpUpscale)
		},
	}

	cmd.Flags().StringVarP(&input, "image", "i", "", "Image path or URL")
	cmd.Flags().IntVarP(&factor, "factor", "f", 2, "Upscale factor")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Directory where the upscaled image will be written")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func newRemoveBgCmd(a *app) *cobra.Command {
	var (
		input string
		out   string
	)

	cmd := &cobra.Command{
		Use:     "remove-bg",
		Aliases: []string{"rb"},
		Short:   "Remove the background from an image",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			req := &image.RemoveBackgroundRequest{}
			return a.singleImage(ctx, "remove-bg", input, out, image.CapabilityRemoveBackground,
				func(buf []byte) error { req.Image = buf; return req.Validate() },
				func(ctx context.Context, p image.Provider) ([]byte, error) {
					remover, ok := image.AsBackgroundRemover(p)
					if !ok {
						return nil, unsupported(p, image.OpRemoveBackground)
					}
					return remover.RemoveBackground(ctx, req)
				}, image.OpRemoveBackground)
		},
	}

	cmd.Flags().StringVarP(&input, "image", "i", "", "Image path or URL")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Directory where the processed image will be written")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

// singleImage runs an optional single-image capability over the providers
// that advertise it and saves the result in the configured format.
func (a *app) singleImage(
	ctx context.Context,
	command, input, outFlag string,
	capability image.Capability,
	prepare func([]byte) error,
	op func(ctx context.Context, p image.Provider) ([]byte, error),
	operation string,
) error {
	bufs, err := a.readInputs(ctx, []string{input})
	if err != nil {
		return err
	}
	if err := prepare(bufs[0]); err != nil {
		return err
	}
	format, err := a.resolveFormat("")
	if err != nil {
		return err
	}
	dir, err := a.outputDir(outFlag)
	if err != nil {
		return err
	}

	chain, err := a.chain(ctx)
	if err != nil {
		return err
	}
	capable := chain.Filter(capability)
	if len(capable) == 0 {
		return types.Errorf(types.ErrCapabilityUnsupported, "no configured provider supports %s", operation).
			WithOperation(operation)
	}

	res, err := image.TryProviders(ctx, capable, op, image.NonEmptyBuffer, operation, a.tryOptions()...)
	if err != nil {
		return err
	}

	files, err := a.save(command, dir, format, [][]byte{res.Value})
	a.record(ctx, &history.Entry{
		Command:   command,
		Inputs:    []string{input},
		Format:    string(format),
		OutputDir: dir,
		Files:     files,
		Provider:  res.Provider.Name(),
	})
	return err
}

// =============================================================================
// 🧰 辅助函数
// =============================================================================

func unsupported(p image.Provider, operation string) error {
	return types.Errorf(types.ErrCapabilityUnsupported, "%s does not support %s", p.Name(), operation).
		WithProvider(p.Name()).
		WithOperation(operation)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func firstNonEmptyBuffer(bufs [][]byte) [][]byte {
	for _, b := range bufs {
		if len(b) > 0 {
			return [][]byte{b}
		}
	}
	return nil
}

// resolveAspect returns the flag value or the configured default, normalized.
func resolveAspect(flag, configured string) (string, error) {
	value := firstNonEmpty(flag, configured)
	if value == "" {
		return "", nil
	}
	return image.ParseAspect(value)
}

func sizeString(s *image.Size) string {
	if s == nil {
		return ""
	}
	return s.String()
}

// writeText writes text to path, or prints it when path is empty.
func (a *app) writeText(path, text string) error {
	if path == "" {
		fmt.Fprintln(a.stdout, text)
		return nil
	}
	if err := os.WriteFile(path, []byte(text+"\n"), 0o644); err != nil {
		return err
	}
	a.printSaved(path)
	return nil
}
