package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"crispr-agent/apiclient"
	"crispr-agent/config"
)

const defaultLiteratureDB = "pubmed"

func ncbiDatabasesTool(cfg *config.Config, api *apiclient.Client) Tool {
	return Tool{
		Name:        "search_ncbi_databases",
		Description: "List the NCBI Entrez databases available for literature and sequence search.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Run: func(ctx context.Context, args map[string]any) Result {
			query := url.Values{}
			query.Set("retmode", "json")

			respBody, err := api.Do(ctx, apiclient.Request{
				Context: "ncbi_einfo",
				Method:  http.MethodGet,
				URL:     cfg.NCBIBaseURL + "/einfo.fcgi",
				Query:   query,
			})
			if err != nil {
				return errorResult("%s", err.Error())
			}
			return unwrapEnvelope("ncbi_einfo", "einforesult", "databases", respBody)
		},
	}
}

func ncbiLiteratureTool(cfg *config.Config, api *apiclient.Client) Tool {
	return Tool{
		Name:        "search_ncbi_literature",
		Description: "Search an NCBI Entrez database (PubMed by default) for records matching a term, with optional pagination, date range and sort order.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"term": map[string]any{
					"type":        "string",
					"description": "Entrez search term, e.g. 'CRISPR repair outcome prediction'.",
				},
				"db": map[string]any{
					"type":        "string",
					"description": "Entrez database name. Defaults to pubmed.",
				},
				"retstart": map[string]any{
					"type":        "integer",
					"description": "Index of the first record to return.",
				},
				"retmax": map[string]any{
					"type":        "integer",
					"description": "Maximum records to return (default 20).",
				},
				"mindate": map[string]any{
					"type":        "string",
					"description": "Earliest publication date, YYYY or YYYY/MM/DD.",
				},
				"maxdate": map[string]any{
					"type":        "string",
					"description": "Latest publication date, YYYY or YYYY/MM/DD.",
				},
				"sort": map[string]any{
					"type":        "string",
					"description": "Sort order, e.g. relevance or pub_date.",
				},
			},
			"required": []string{"term"},
		},
		Run: func(ctx context.Context, args map[string]any) Result {
			term, ok := stringArg(args, "term")
			if !ok {
				return errorResult("missing required argument: term")
			}

			query := url.Values{}
			query.Set("retmode", "json")
			query.Set("term", term)
			query.Set("db", literatureDB(args))
			if retstart, ok := intArg(args, "retstart"); ok {
				query.Set("retstart", strconv.Itoa(retstart))
			}
			retmax := 20
			if v, ok := intArg(args, "retmax"); ok && v > 0 {
				retmax = v
			}
			query.Set("retmax", strconv.Itoa(retmax))

			mindate, haveMin := stringArg(args, "mindate")
			maxdate, haveMax := stringArg(args, "maxdate")
			if haveMin || haveMax {
				query.Set("datetype", "pdat")
				if haveMin {
					query.Set("mindate", mindate)
				}
				if haveMax {
					query.Set("maxdate", maxdate)
				}
			}
			if sortOrder, ok := stringArg(args, "sort"); ok {
				query.Set("sort", sortOrder)
			}

			respBody, err := api.Do(ctx, apiclient.Request{
				Context: "ncbi_esearch",
				Method:  http.MethodGet,
				URL:     cfg.NCBIBaseURL + "/esearch.fcgi",
				Query:   query,
			})
			if err != nil {
				return errorResult("%s", err.Error())
			}
			return unwrapEnvelope("ncbi_esearch", "esearchresult", "search", respBody)
		},
	}
}

func ncbiSummariesTool(cfg *config.Config, api *apiclient.Client) Tool {
	return Tool{
		Name:        "fetch_ncbi_summaries",
		Description: "Fetch document summaries for a batch of NCBI record identifiers (e.g. PubMed IDs).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ids": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Record identifiers returned by search_ncbi_literature.",
				},
				"db": map[string]any{
					"type":        "string",
					"description": "Entrez database name. Defaults to pubmed.",
				},
			},
			"required": []string{"ids"},
		},
		Run: func(ctx context.Context, args map[string]any) Result {
			ids, ok := stringListArg(args, "ids")
			if !ok {
				return errorResult("missing required argument: ids")
			}

			query := url.Values{}
			query.Set("retmode", "json")
			query.Set("db", literatureDB(args))
			query.Set("id", strings.Join(ids, ","))

			respBody, err := api.Do(ctx, apiclient.Request{
				Context: "ncbi_esummary",
				Method:  http.MethodGet,
				URL:     cfg.NCBIBaseURL + "/esummary.fcgi",
				Query:   query,
			})
			if err != nil {
				return errorResult("%s", err.Error())
			}
			return unwrapEnvelope("ncbi_esummary", "result", "summaries", respBody)
		},
	}
}

func literatureDB(args map[string]any) string {
	if db, ok := stringArg(args, "db"); ok {
		return db
	}
	return defaultLiteratureDB
}

// unwrapEnvelope pulls the operation-named field out of an Entrez JSON
// response and republishes it under resultKey.
func unwrapEnvelope(context, envelopeKey, resultKey string, body []byte) Result {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errorResult("%s returned a malformed envelope: %s", context, err.Error())
	}
	payload, ok := envelope[envelopeKey]
	if !ok {
		return errorResult("%s envelope is missing %q", context, envelopeKey)
	}
	return Result{resultKey: payload}
}
