// Example program streaming a tool-calling conversation.
//
// The model is offered an "add" tool. Its streamed tool call is folded into
// one response, the arguments are checked against the tool schema, the tool
// runs locally and the result is sent back for a final streamed answer.
//
// Usage:
//
//	# Reads OPENAI_API_BASE_URL, OPENAI_API_KEY, OPENAI_API_VERSION and
//	# OPENAI_API_MODEL_NAME from the environment or .env
//	go run ./cmd/example/ -prompt "What is 17 + 25?"
//
//	# Explicit settings
//	go run ./cmd/example/ -base-url https://api.stepfun.com -version v1 -api-key "..." -model step-1-8k
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/jg-phare/stepfun/pkg/llm"
	"github.com/jg-phare/stepfun/pkg/logutil"
)

func main() {
	baseURL := flag.String("base-url", "", "API base URL (overrides env)")
	version := flag.String("version", "", "API version segment (overrides env)")
	apiKey := flag.String("api-key", "", "API key (overrides env)")
	model := flag.String("model", "", "Model ID (overrides env)")
	prompt := flag.String("prompt", "What is 17 + 25? Use the add tool.", "Prompt to send")
	envFile := flag.String("env", ".env", "Path to .env file (missing file is ignored)")
	logLevel := flag.String("log-level", "warning", "Log level")
	flag.Parse()

	log, err := logutil.New(os.Stderr, *logLevel, logutil.FormatText)
	if err != nil {
		fatal(err)
	}

	cfg, defaultModel, err := llm.LoadClientConfig(*envFile)
	if err != nil {
		fatal(err)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *version != "" {
		cfg.Version = *version
	}
	if *apiKey != "" {
		cfg.APIKey = *apiKey
	}
	if *model == "" {
		*model = defaultModel
	}
	cfg.Logger = log

	client, err := llm.NewClient(cfg)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Base URL: %s\n", cfg.BaseURL)
	fmt.Printf("Model:    %s\n", *model)
	fmt.Printf("Prompt:   %s\n", *prompt)
	fmt.Println(strings.Repeat("-", 60))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, client, *model, *prompt); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, client llm.Client, model, prompt string) error {
	add, params, err := addTool()
	if err != nil {
		return err
	}
	user, err := llm.NewMessageBuilder().WithRole(llm.RoleUser).WithContent(prompt).Build()
	if err != nil {
		return err
	}
	history := []llm.Message{user}

	for turn := 0; turn < 3; turn++ {
		req, err := llm.NewChatCompletionRequestBuilder().
			WithModel(model).
			WithMessages(history...).
			WithTool(add).
			Build()
		if err != nil {
			return err
		}

		resp, err := streamTurn(ctx, client, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty response")
		}
		reply := resp.Choices[0].Message
		reply.Role = llm.RoleAssistant
		history = append(history, reply)

		if len(reply.ToolCalls) == 0 {
			if resp.Usage != nil {
				fmt.Printf("\n[tokens: %d]\n", resp.Usage.TotalTokens)
			}
			return nil
		}

		for _, call := range reply.ToolCalls {
			result := runAdd(call.Function, params)
			fmt.Printf("\n[tool %s(%s) = %s]\n", call.Function.Name, call.Function.ArgumentsText(), result)
			msg, err := llm.NewMessageBuilder().
				WithRole(llm.RoleTool).
				WithToolCallID(call.ID).
				WithContent(result).
				Build()
			if err != nil {
				return err
			}
			history = append(history, msg)
		}
	}
	return fmt.Errorf("no answer after tool calls")
}

// streamTurn prints content deltas as they arrive and returns the merged response.
func streamTurn(ctx context.Context, client llm.Client, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	stream, err := client.ChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	return stream.AccumulateWithCallback(func(chunk *llm.ChatCompletionChunk) {
		for _, c := range chunk.Choices {
			if c.Index == 0 && c.Delta.Content != nil {
				fmt.Print(c.Delta.Content.PlainText())
			}
		}
	})
}

func addTool() (llm.Function, llm.Parameters, error) {
	number := func(desc string) (llm.ParameterProperty, error) {
		return llm.NewParameterPropertyBuilder().WithType(llm.ParameterNumber).WithDescription(desc).Build()
	}
	a, err := number("first addend")
	if err != nil {
		return llm.Function{}, llm.Parameters{}, err
	}
	b, err := number("second addend")
	if err != nil {
		return llm.Function{}, llm.Parameters{}, err
	}
	params, err := llm.NewParametersBuilder().
		AddProperty("a", a).
		AddProperty("b", b).
		AddRequired("a").
		AddRequired("b").
		Build()
	if err != nil {
		return llm.Function{}, llm.Parameters{}, err
	}
	fn, err := llm.NewFunctionBuilder().
		WithName("add").
		WithDescription("Add two numbers").
		WithParameters(params).
		Build()
	return fn, params, err
}

func runAdd(fn llm.Function, params llm.Parameters) string {
	if fn.Name != "add" {
		return fmt.Sprintf("error: unknown tool %q", fn.Name)
	}
	if err := fn.ValidateArguments(&params); err != nil {
		return "error: " + err.Error()
	}
	var args struct {
		A float64 `json:"a"`
		B float64 `json:"b"`
	}
	if err := fn.DecodeArguments(&args); err != nil {
		return "error: " + err.Error()
	}
	return fmt.Sprintf("%g", args.A+args.B)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
