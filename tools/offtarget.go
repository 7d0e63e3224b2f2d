package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"crispr-agent/apiclient"
	"crispr-agent/config"
)

// NormalizeSpecies maps user-facing species names to the genome assembly
// identifiers the guide-search API expects. Unrecognized names pass through
// unchanged.
func NormalizeSpecies(species string) string {
	switch strings.ToLower(strings.TrimSpace(species)) {
	case "", "human":
		return "Grch38"
	case "mouse":
		return "Mouse"
	default:
		return strings.TrimSpace(species)
	}
}

func guidesByExonTool(cfg *config.Config, api *apiclient.Client) Tool {
	return Tool{
		Name:        "search_guides_by_exon",
		Description: "Look up CRISPR guides targeting the given exon identifiers.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"exon_ids": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Ensembl exon identifiers, e.g. ENSE00003527960.",
				},
				"species": map[string]any{
					"type":        "string",
					"description": "Species name (human or mouse). Defaults to human.",
				},
			},
			"required": []string{"exon_ids"},
		},
		Run: func(ctx context.Context, args map[string]any) Result {
			exonIDs, ok := stringListArg(args, "exon_ids")
			if !ok {
				return errorResult("missing required argument: exon_ids")
			}
			species, _ := stringArg(args, "species")

			query := url.Values{}
			for _, id := range exonIDs {
				query.Add("exon_id[]", id)
			}
			query.Set("species", NormalizeSpecies(species))

			respBody, err := api.Do(ctx, apiclient.Request{
				Context: "guide_search",
				Method:  http.MethodGet,
				URL:     cfg.GuideSearchURL + "/crispr_search",
				Query:   query,
			})
			if err != nil {
				return errorResult("%s", err.Error())
			}
			return passthroughResult("guide_search", "guides", respBody)
		},
	}
}

func offTargetsTool(cfg *config.Config, api *apiclient.Client) Tool {
	return Tool{
		Name:        "search_offtargets",
		Description: "Find genomic off-target sites for a guide, either by raw sequence with PAM orientation or by a known CRISPR site identifier.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sequence": map[string]any{
					"type":        "string",
					"description": "Guide sequence without PAM (20 nt). Requires pam_right.",
				},
				"pam_right": map[string]any{
					"type":        "boolean",
					"description": "True when the PAM lies 3' of the sequence. Required with sequence.",
				},
				"crispr_id": map[string]any{
					"type":        "string",
					"description": "Known CRISPR site identifier; alternative to sequence + pam_right.",
				},
				"species": map[string]any{
					"type":        "string",
					"description": "Species name (human or mouse). Defaults to human.",
				},
			},
		},
		Run: func(ctx context.Context, args map[string]any) Result {
			species, _ := stringArg(args, "species")
			assembly := NormalizeSpecies(species)

			if crisprID, ok := stringArg(args, "crispr_id"); ok {
				form := url.Values{}
				form.Set("id", crisprID)
				form.Set("species", assembly)
				form.Set("with_detail", "1")

				respBody, err := api.Do(ctx, apiclient.Request{
					Context:  "offtarget_by_id",
					Method:   http.MethodPost,
					URL:      cfg.GuideSearchURL + "/crispr_by_id",
					FormBody: form,
				})
				if err != nil {
					return errorResult("%s", err.Error())
				}
				return passthroughResult("offtarget_by_id", "off_targets", respBody)
			}

			sequence, haveSeq := stringArg(args, "sequence")
			pamRight, havePAM := boolArg(args, "pam_right")
			if !haveSeq && !havePAM {
				return errorResult("provide either crispr_id, or sequence together with pam_right")
			}
			if !haveSeq {
				return errorResult("missing required argument: sequence")
			}
			if !havePAM {
				return errorResult("missing required argument: pam_right")
			}

			query := url.Values{}
			query.Set("seq", sequence)
			if pamRight {
				query.Set("pam_right", "1")
			} else {
				query.Set("pam_right", "0")
			}
			query.Set("species", assembly)

			respBody, err := api.Do(ctx, apiclient.Request{
				Context: "offtarget_by_seq",
				Method:  http.MethodGet,
				URL:     cfg.GuideSearchURL + "/off_targets_by_seq",
				Query:   query,
			})
			if err != nil {
				return errorResult("%s", err.Error())
			}
			return passthroughResult("offtarget_by_seq", "off_targets", respBody)
		},
	}
}

// passthroughResult wraps an upstream JSON body under the given key without
// interpreting it; the model reads these payloads directly.
func passthroughResult(context, key string, body []byte) Result {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return errorResult("%s returned a malformed envelope: %s", context, err.Error())
	}
	return Result{key: payload}
}
