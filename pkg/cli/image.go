package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jg-phare/stepfun/pkg/llm"
	"github.com/spf13/cobra"
)

// ImageOptions are the options of the image command.
type ImageOptions struct {
	Size     string
	N        int
	Seed     int
	Steps    int
	CfgScale float64
	Format   string
	OutDir   string

	prompt        string
	width, height int
	factory       *Factory
	IOStreams
}

func newImageCommand(f *Factory, streams IOStreams) *cobra.Command {
	o := &ImageOptions{
		Format:    string(llm.GenerationFormatURL),
		OutDir:    ".",
		factory:   f,
		IOStreams: streams,
	}

	cmd := &cobra.Command{
		Use:   "image <prompt...>",
		Short: "Generate images from a prompt",
		Long: `Generate images from a text prompt. With --format b64_json the images are
written to --out-dir as PNG files; with --format url their URLs are printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(args); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&o.Size, "size", o.Size, "Image size as WIDTHxHEIGHT, e.g. 1024x1024.")
	cmd.Flags().IntVar(&o.N, "n", o.N, "Number of images (0 = server default).")
	cmd.Flags().IntVar(&o.Seed, "seed", o.Seed, "Sampling seed (0 = random).")
	cmd.Flags().IntVar(&o.Steps, "steps", o.Steps, "Diffusion steps (0 = server default).")
	cmd.Flags().Float64Var(&o.CfgScale, "cfg-scale", o.CfgScale, "Classifier-free guidance scale (0 = server default).")
	cmd.Flags().StringVar(&o.Format, "format", o.Format, "Response format: url or b64_json.")
	cmd.Flags().StringVar(&o.OutDir, "out-dir", o.OutDir, "Directory for b64_json images.")
	return cmd
}

// Complete parses the prompt and size.
func (o *ImageOptions) Complete(args []string) error {
	o.prompt = strings.Join(args, " ")
	if o.Size != "" {
		w, h, err := parseSize(o.Size)
		if err != nil {
			return err
		}
		o.width, o.height = w, h
	}
	switch llm.GenerationFormat(o.Format) {
	case llm.GenerationFormatURL, llm.GenerationFormatB64JSON:
	default:
		return fmt.Errorf("image: unknown format %q", o.Format)
	}
	return nil
}

func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("image: size %q is not WIDTHxHEIGHT", s)
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err := errors.Join(err1, err2); err != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("image: size %q is not WIDTHxHEIGHT", s)
	}
	return w, h, nil
}

type generationTable struct {
	resp  *llm.GenerationResponse
	files []string
}

func (t generationTable) header() []string { return []string{"SEED", "FINISH", "RESULT"} }

func (t generationTable) rows() [][]string {
	var data [][]string
	for i, d := range t.resp.Data {
		result := d.URL
		if i < len(t.files) && t.files[i] != "" {
			result = t.files[i]
		}
		data = append(data, []string{strconv.Itoa(d.Seed), d.FinishReason, result})
	}
	return data
}

// Run requests the images and prints or saves them.
func (o *ImageOptions) Run(ctx context.Context) error {
	client, model, err := o.factory.Client()
	if err != nil {
		return err
	}

	b := llm.NewGenerationRequestBuilder().
		WithModel(model).
		WithPrompt(o.prompt).
		WithResponseFormat(llm.GenerationFormat(o.Format))
	if o.width > 0 {
		b.WithSize(o.width, o.height)
	}
	if o.N > 0 {
		b.WithN(o.N)
	}
	if o.Seed != 0 {
		b.WithSeed(o.Seed)
	}
	if o.Steps > 0 {
		b.WithSteps(o.Steps)
	}
	if o.CfgScale > 0 {
		b.WithCfgScale(o.CfgScale)
	}
	req, err := b.Build()
	if err != nil {
		return err
	}

	resp, err := client.Generation(ctx, req)
	if err != nil {
		return err
	}

	files := make([]string, len(resp.Data))
	for i, d := range resp.Data {
		if d.Image == "" {
			continue
		}
		img, err := base64.StdEncoding.DecodeString(d.Image)
		if err != nil {
			return fmt.Errorf("image: decode image %d: %w", i, err)
		}
		name := filepath.Join(o.OutDir, fmt.Sprintf("image-%d-%d.png", resp.Created, i))
		if err := os.WriteFile(name, img, 0o644); err != nil {
			return err
		}
		files[i] = name
	}

	return printObject(o.Out, o.factory.Output(), resp, generationTable{resp: resp, files: files})
}
