// Package cli implements the stepctl command line.
package cli

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/jg-phare/stepfun/pkg/llm"
	"github.com/jg-phare/stepfun/pkg/logutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Global flag names.
const (
	FlagEnvFile    = "env-file"
	FlagBaseURL    = "base-url"
	FlagAPIKey     = "api-key"
	FlagAPIVersion = "api-version"
	FlagModel      = "model"
	FlagLogLevel   = "log-level"
	FlagLogFormat  = "log-format"
	FlagOutput     = "output"
	FlagTimeout    = "timeout"
)

// IOStreams are the standard streams of a command.
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// Factory hands commands their configured dependencies. Flag values are read
// through viper, so STEPCTL_* environment variables work as well.
type Factory struct {
	v   *viper.Viper
	log *logrus.Logger

	// newClient is swapped in tests.
	newClient func(llm.ClientConfig) (llm.Client, error)
}

func newFactory(v *viper.Viper) *Factory {
	return &Factory{v: v, newClient: llm.NewClient}
}

// Logger returns the process logger, built on first use.
func (f *Factory) Logger(errOut io.Writer) (*logrus.Logger, error) {
	if f.log != nil {
		return f.log, nil
	}
	log, err := logutil.New(errOut, f.v.GetString(FlagLogLevel), f.v.GetString(FlagLogFormat))
	if err != nil {
		return nil, err
	}
	f.log = log
	return log, nil
}

// Config resolves client settings and the default model. Flags override the
// environment, which overrides the env file.
func (f *Factory) Config() (llm.ClientConfig, string, error) {
	cfg, model, err := llm.LoadClientConfig(f.v.GetString(FlagEnvFile))
	if err != nil {
		return llm.ClientConfig{}, "", err
	}
	if s := f.v.GetString(FlagBaseURL); s != "" {
		cfg.BaseURL = s
	}
	if s := f.v.GetString(FlagAPIKey); s != "" {
		cfg.APIKey = s
	}
	if s := f.v.GetString(FlagAPIVersion); s != "" {
		cfg.Version = s
	}
	if s := f.v.GetString(FlagModel); s != "" {
		model = s
	}
	cfg.Timeout = f.v.GetDuration(FlagTimeout)
	if f.log != nil {
		cfg.Logger = f.log
	}
	return cfg, model, nil
}

// Client builds an API client and returns it with the default model.
func (f *Factory) Client() (llm.Client, string, error) {
	cfg, model, err := f.Config()
	if err != nil {
		return nil, "", err
	}
	c, err := f.newClient(cfg)
	if err != nil {
		return nil, "", err
	}
	return c, model, nil
}

// Output is the selected output format.
func (f *Factory) Output() string {
	return f.v.GetString(FlagOutput)
}

// NewDefaultStepCtlCommand creates the stepctl command on the process streams.
func NewDefaultStepCtlCommand() *cobra.Command {
	return NewStepCtlCommand(IOStreams{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr})
}

// NewStepCtlCommand creates the stepctl command.
func NewStepCtlCommand(streams IOStreams) *cobra.Command {
	v := viper.New()
	f := newFactory(v)
	return newRootCommand(f, streams)
}

func newRootCommand(f *Factory, streams IOStreams) *cobra.Command {
	cmds := &cobra.Command{
		Use:   "stepctl",
		Short: "stepctl talks to an OpenAI-compatible chat API",
		Long: `stepctl sends chat, image generation and file requests to an
OpenAI-compatible API. Connection settings come from flags, the environment
(OPENAI_API_BASE_URL, OPENAI_API_KEY, OPENAI_API_VERSION, OPENAI_API_MODEL_NAME)
or a dotenv file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_, err := f.Logger(streams.ErrOut)
			return err
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	cmds.SetIn(streams.In)
	cmds.SetOut(streams.Out)
	cmds.SetErr(streams.ErrOut)

	flags := cmds.PersistentFlags()
	addGlobalFlags(flags)

	f.v.SetEnvPrefix("stepctl")
	f.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	f.v.AutomaticEnv()
	_ = f.v.BindPFlags(flags)

	cmds.AddCommand(
		newChatCommand(f, streams),
		newModelsCommand(f, streams),
		newImageCommand(f, streams),
		newFilesCommand(f, streams),
	)
	cmds.SetGlobalNormalizationFunc(wordSepNormalizeFunc)
	return cmds
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.String(FlagEnvFile, ".env", "Dotenv file with OPENAI_API_* settings; ignored when missing.")
	flags.String(FlagBaseURL, "", "API base URL, e.g. https://api.stepfun.com.")
	flags.String(FlagAPIKey, "", "API key sent as a bearer token.")
	flags.String(FlagAPIVersion, "", "API version path segment, e.g. v1.")
	flags.StringP(FlagModel, "m", "", "Model name.")
	flags.String(FlagLogLevel, "warning", "Log level: trace, debug, info, warning, error.")
	flags.String(FlagLogFormat, logutil.FormatText, "Log format: text or json.")
	flags.StringP(FlagOutput, "o", outputTable, "Output format: table, json or yaml.")
	flags.Duration(FlagTimeout, 0*time.Second, "Timeout for non-streaming requests (0 disables).")
}

// wordSepNormalizeFunc lets --base_url mean --base-url.
func wordSepNormalizeFunc(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if strings.Contains(name, "_") {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	}
	return pflag.NormalizedName(name)
}
