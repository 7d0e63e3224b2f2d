package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"crispr-agent/apiclient"
	"crispr-agent/config"
)

// forecastEnvelope is the response wrapper both forecasting APIs share: the
// row-text payload lives at data.data.
type forecastEnvelope struct {
	Data struct {
		Data string `json:"data"`
	} `json:"data"`
}

// RepairContexts enumerates the repair-pathway backgrounds accepted by the
// repair-conditioned forecast API.
var RepairContexts = map[string]bool{
	"control": true,
	"Lig3":    true,
	"Lig4":    true,
	"NHEJ":    true,
	"MMEJ":    true,
	"PolQ":    true,
	"53BP1":   true,
}

func repairContextNames() string {
	names := make([]string, 0, len(RepairContexts))
	for name := range RepairContexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func forecastTool(cfg *config.Config, api *apiclient.Client) Tool {
	return Tool{
		Name:        "forecast_edit_outcomes",
		Description: "Predict the mutational outcome profile of a CRISPR cut at the given target sequence and PAM position. Returns the top predicted outcomes ranked by score.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target": map[string]any{
					"type":        "string",
					"description": "Target DNA sequence around the cut site (at least 20 nt).",
				},
				"pam_position": map[string]any{
					"type":        "integer",
					"description": "Zero-based position of the PAM within the target sequence.",
				},
			},
			"required": []string{"target", "pam_position"},
		},
		Run: func(ctx context.Context, args map[string]any) Result {
			return runForecast(ctx, cfg, api, args, "forecast", cfg.ForecastURL, nil)
		},
	}
}

func forecastRepairTool(cfg *config.Config, api *apiclient.Client) Tool {
	return Tool{
		Name:        "forecast_repair_outcomes",
		Description: "Predict CRISPR editing outcomes conditioned on a DNA repair background (e.g. NHEJ- or MMEJ-deficient cells). Returns the top predicted outcomes ranked by score.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target": map[string]any{
					"type":        "string",
					"description": "Target DNA sequence around the cut site (at least 20 nt).",
				},
				"pam_position": map[string]any{
					"type":        "integer",
					"description": "Zero-based position of the PAM within the target sequence.",
				},
				"repair_context": map[string]any{
					"type":        "string",
					"description": "Repair background, one of: " + repairContextNames() + ".",
				},
			},
			"required": []string{"target", "pam_position", "repair_context"},
		},
		Run: func(ctx context.Context, args map[string]any) Result {
			repairContext, ok := stringArg(args, "repair_context")
			if !ok {
				return errorResult("missing required argument: repair_context")
			}
			if !RepairContexts[repairContext] {
				return errorResult("invalid repair_context %q (valid: %s)", repairContext, repairContextNames())
			}
			extra := map[string]any{"context": repairContext}
			return runForecast(ctx, cfg, api, args, "forecast_repair", cfg.ForecastRepairURL, extra)
		},
	}
}

// runForecast is the shared call path for both forecasting tools: validate,
// POST, unwrap the data.data row text, and normalize. The two tools differ
// only in endpoint and the extra body fields, so the normalization cannot
// drift between them.
func runForecast(ctx context.Context, cfg *config.Config, api *apiclient.Client, args map[string]any, name, endpoint string, extra map[string]any) Result {
	target, ok := stringArg(args, "target")
	if !ok {
		return errorResult("missing required argument: target")
	}
	if len(target) < 20 {
		return errorResult("target must be at least 20 nt, got %d", len(target))
	}
	pamPosition, ok := intArg(args, "pam_position")
	if !ok {
		return errorResult("missing required argument: pam_position")
	}

	body := map[string]any{
		"target":       target,
		"pam_position": pamPosition,
	}
	for k, v := range extra {
		body[k] = v
	}

	respBody, err := api.Do(ctx, apiclient.Request{
		Context:  name,
		Method:   http.MethodPost,
		URL:      endpoint,
		JSONBody: body,
	})
	if err != nil {
		return errorResult("%s", err.Error())
	}

	var envelope forecastEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return errorResult("%s returned a malformed envelope: %s", name, err.Error())
	}
	if strings.TrimSpace(envelope.Data.Data) == "" {
		return errorResult("%s returned an empty prediction payload", name)
	}

	records, summary := NormalizeOutcomes(envelope.Data.Data, cfg.TopPredictions)
	return Result{
		"predictions": records,
		"summary":     summary,
	}
}
