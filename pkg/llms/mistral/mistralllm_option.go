package mistral

import (
	"os"

	"github.com/effective-security/billagent/pkg/llms/mistral/internal/mistralclient"
	"github.com/effective-security/x/values"
)

const (
	tokenEnvVarName   = "MISTRAL_API_KEY" //nolint:gosec
	modelEnvVarName   = "MISTRAL_MODEL"   //nolint:gosec
	baseURLEnvVarName = "MISTRAL_API_URL" //nolint:gosec
)

type options struct {
	token      string
	model      string
	baseURL    string
	httpClient mistralclient.Doer
}

// Option is a functional option for the Mistral client.
type Option func(*options)

// WithToken passes the Mistral API token to the client. If not set, the
// token is read from the MISTRAL_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithModel passes the Mistral model to the client. If not set, the
// model is read from the MISTRAL_MODEL environment variable.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithBaseURL passes the Mistral base url to the client. If not set,
// the base url is read from the MISTRAL_API_URL environment variable,
// falling back to https://api.mistral.ai/v1.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithHTTPClient allows setting a custom HTTP client. If not set, the
// default value is http.DefaultClient.
func WithHTTPClient(client mistralclient.Doer) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

func newClient(opts ...Option) (*mistralclient.Client, error) {
	options := &options{}
	for _, opt := range opts {
		opt(options)
	}
	options.token = values.StringsCoalesce(options.token, os.Getenv(tokenEnvVarName))
	options.model = values.StringsCoalesce(options.model, os.Getenv(modelEnvVarName), mistralclient.DefaultChatModel)
	options.baseURL = values.StringsCoalesce(options.baseURL, os.Getenv(baseURLEnvVarName), mistralclient.DefaultBaseURL)

	return mistralclient.New(options.model, options.token, options.baseURL, options.httpClient)
}
