package fetcher

import (
	"fmt"

	"weft/features/integration"
)

// Registry selects a fetcher implementation by integration type.
// Dispatch is over the type tag, one constructor per source.
type Registry struct {
	builders map[integration.Type]func(credential string) Fetcher
}

func NewRegistry() *Registry {
	return &Registry{
		builders: map[integration.Type]func(string) Fetcher{
			integration.TypeSlack:  func(cred string) Fetcher { return NewSlackFetcher(cred) },
			integration.TypeGithub: func(cred string) Fetcher { return NewGithubFetcher(cred) },
			integration.TypeNotion: func(cred string) Fetcher { return NewNotionFetcher(cred) },
		},
	}
}

// For returns a fetcher bound to the integration's credential.
func (r *Registry) For(in *integration.Integration) (Fetcher, error) {
	build, ok := r.builders[in.Type]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for integration type %q", in.Type)
	}
	return build(in.Credential), nil
}
