package tools

import (
	"context"
	"net/http"
	"net/url"

	"crispr-agent/apiclient"
	"crispr-agent/config"
)

func webSearchTool(cfg *config.Config, api *apiclient.Client) Tool {
	return Tool{
		Name:        "web_search",
		Description: "Search the web for questions the bioinformatics tools cannot answer, such as protocol or reagent questions.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query.",
				},
			},
			"required": []string{"query"},
		},
		Run: func(ctx context.Context, args map[string]any) Result {
			searchQuery, ok := stringArg(args, "query")
			if !ok {
				return errorResult("missing required argument: query")
			}

			query := url.Values{}
			query.Set("q", searchQuery)

			header := http.Header{}
			if cfg.WebSearchAPIKey != "" {
				header.Set("X-Subscription-Token", cfg.WebSearchAPIKey)
			}

			respBody, err := api.Do(ctx, apiclient.Request{
				Context: "web_search",
				Method:  http.MethodGet,
				URL:     cfg.WebSearchURL,
				Query:   query,
				Header:  header,
			})
			if err != nil {
				return errorResult("%s", err.Error())
			}
			return passthroughResult("web_search", "results", respBody)
		},
	}
}
