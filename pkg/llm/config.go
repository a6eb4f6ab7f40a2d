package llm

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/net/http/httpproxy"
)

// Environment keys read by LoadClientConfig.
const (
	EnvBaseURL = "OPENAI_API_BASE_URL"
	EnvAPIKey  = "OPENAI_API_KEY"
	EnvVersion = "OPENAI_API_VERSION"
	EnvModel   = "OPENAI_API_MODEL_NAME"
)

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL       string             // API root, e.g. "https://api.stepfun.com"
	Version       string             // path segment joined onto BaseURL, e.g. "v1"
	APIKey        string             // used for a Bearer authenticator when Authenticator is nil
	Authenticator Authenticator      // takes precedence over APIKey
	Headers       map[string]string  // additional HTTP headers
	HTTPClient    *http.Client       // custom HTTP client (TLS, transport); nil builds one
	Proxy         *httpproxy.Config  // proxy for the default HTTP client; nil reads the environment
	Timeout       time.Duration      // per-call limit for non-streaming calls (0 = none)
	Logger        logrus.FieldLogger // nil uses the logrus standard logger
}

// LoadClientConfig reads connection settings from the process environment
// and, when envFile names an existing file, from that dotenv file. The
// environment wins over the file. The default model name is returned
// alongside the config.
func LoadClientConfig(envFile string) (ClientConfig, string, error) {
	v := viper.New()
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return ClientConfig{}, "", fmt.Errorf("llm: read env file %s: %w", envFile, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return ClientConfig{}, "", fmt.Errorf("llm: stat env file %s: %w", envFile, err)
		}
	}

	cfg := ClientConfig{
		BaseURL: v.GetString(EnvBaseURL),
		APIKey:  v.GetString(EnvAPIKey),
		Version: v.GetString(EnvVersion),
	}
	return cfg, v.GetString(EnvModel), nil
}

// newHTTPClient builds the default HTTP client, routing through proxy.
func newHTTPClient(proxy *httpproxy.Config) *http.Client {
	if proxy == nil {
		proxy = httpproxy.FromEnvironment()
	}
	proxyFunc := proxy.ProxyFunc()

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = func(r *http.Request) (*url.URL, error) {
		return proxyFunc(r.URL)
	}
	return &http.Client{Transport: tr}
}
