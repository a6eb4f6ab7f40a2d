package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jg-phare/stepfun/pkg/llm"
	"github.com/spf13/cobra"
)

const chatExample = `  # One-shot question, streamed as it is generated
  stepctl chat -m step-1-8k "Introduce yourself"

  # Ask about an image without streaming
  stepctl chat -m step-1v-8k --stream=false --image ./cat.png "What is in this picture?"

  # Print the merged response as JSON
  stepctl chat -o json "Hello"`

// ChatOptions are the options of the chat command.
type ChatOptions struct {
	System      string
	Images      []string
	Stream      bool
	MaxTokens   int
	Temperature float64

	message string
	factory *Factory
	IOStreams
}

// NewChatOptions returns options with streaming enabled.
func NewChatOptions(f *Factory, streams IOStreams) *ChatOptions {
	return &ChatOptions{
		Stream:      true,
		Temperature: -1,
		factory:     f,
		IOStreams:   streams,
	}
}

func newChatCommand(f *Factory, streams IOStreams) *cobra.Command {
	o := NewChatOptions(f, streams)

	cmd := &cobra.Command{
		Use:                   "chat [message...]",
		DisableFlagsInUseLine: true,
		Short:                 "Send a chat completion request",
		Long: `Send one user message, optionally with a system prompt and images, and
print the assistant reply. With --stream the reply is printed as it arrives.`,
		Example: chatExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&o.System, "system", o.System, "System prompt.")
	cmd.Flags().StringArrayVar(&o.Images, "image", o.Images, "Image URL or local path to attach; repeatable.")
	cmd.Flags().BoolVar(&o.Stream, "stream", o.Stream, "Stream the reply.")
	cmd.Flags().IntVar(&o.MaxTokens, "max-tokens", o.MaxTokens, "Maximum tokens to generate (0 = server default).")
	cmd.Flags().Float64Var(&o.Temperature, "temperature", o.Temperature, "Sampling temperature (negative = server default).")
	return cmd
}

// Complete joins the message words, reading stdin when none are given.
func (o *ChatOptions) Complete(args []string) error {
	if len(args) > 0 {
		o.message = strings.Join(args, " ")
		return nil
	}
	if o.In == nil {
		return nil
	}
	data, err := io.ReadAll(o.In)
	if err != nil {
		return fmt.Errorf("chat: read stdin: %w", err)
	}
	o.message = strings.TrimSpace(string(data))
	return nil
}

// Validate checks the options.
func (o *ChatOptions) Validate() error {
	if strings.TrimSpace(o.message) == "" && len(o.Images) == 0 {
		return errors.New("chat: no message given")
	}
	return nil
}

// Run sends the request and prints the reply.
func (o *ChatOptions) Run(ctx context.Context) error {
	client, model, err := o.factory.Client()
	if err != nil {
		return err
	}
	req, err := o.buildRequest(model)
	if err != nil {
		return err
	}

	if !o.Stream {
		resp, err := client.ChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		return o.print(resp)
	}

	stream, err := client.ChatCompletionStream(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	table := o.factory.Output() == outputTable || o.factory.Output() == ""
	resp, err := stream.AccumulateWithCallback(func(chunk *llm.ChatCompletionChunk) {
		if !table {
			return
		}
		for _, c := range chunk.Choices {
			if c.Index == 0 && c.Delta.Content != nil {
				fmt.Fprint(o.Out, c.Delta.Content.PlainText())
			}
		}
	})
	if table {
		fmt.Fprintln(o.Out)
	}
	if err != nil {
		return err
	}
	if table {
		o.printToolCalls(resp)
		o.printUsage(resp)
		return nil
	}
	return printObject(o.Out, o.factory.Output(), resp, nil)
}

func (o *ChatOptions) buildRequest(model string) (*llm.ChatCompletionRequest, error) {
	b := llm.NewChatCompletionRequestBuilder().WithModel(model)

	if o.System != "" {
		sys, err := llm.NewMessageBuilder().WithRole(llm.RoleSystem).WithContent(o.System).Build()
		if err != nil {
			return nil, err
		}
		b.AddMessage(sys)
	}

	mb := llm.NewMessageBuilder().WithRole(llm.RoleUser).WithContent(o.message)
	for _, img := range o.Images {
		u, err := imageURL(img)
		if err != nil {
			return nil, err
		}
		mb.AddContent(llm.ImagePart(u))
	}
	user, err := mb.Build()
	if err != nil {
		return nil, err
	}
	b.AddMessage(user)

	if o.MaxTokens > 0 {
		b.WithMaxTokens(o.MaxTokens)
	}
	if o.Temperature >= 0 {
		b.WithTemperature(o.Temperature)
	}
	return b.Build()
}

// imageURL treats src as a local file when it exists and as a URL otherwise.
func imageURL(src string) (llm.ImageURL, error) {
	if _, err := os.Stat(src); err == nil {
		return llm.ImageURLFromFile(src)
	}
	return llm.NewImageURL(src), nil
}

func (o *ChatOptions) print(resp *llm.ChatCompletionResponse) error {
	format := o.factory.Output()
	if format != outputTable && format != "" {
		return printObject(o.Out, format, resp, nil)
	}
	for _, c := range resp.Choices {
		if c.Message.Content != nil {
			fmt.Fprintln(o.Out, c.Message.Content.PlainText())
		}
	}
	o.printToolCalls(resp)
	o.printUsage(resp)
	return nil
}

func (o *ChatOptions) printToolCalls(resp *llm.ChatCompletionResponse) {
	for _, c := range resp.Choices {
		for _, tc := range c.Message.ToolCalls {
			fmt.Fprintf(o.Out, "tool call %s(%s)\n", tc.Function.Name, tc.Function.ArgumentsText())
		}
	}
}

func (o *ChatOptions) printUsage(resp *llm.ChatCompletionResponse) {
	if resp.Usage == nil {
		return
	}
	fmt.Fprintf(o.ErrOut, "tokens: prompt %d, completion %d, total %d\n",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}
