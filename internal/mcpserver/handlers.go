package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *IPIntelClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *IPIntelClient) *Handlers {
	return &Handlers{client: client}
}

// HandleScreenIP runs a full screening for a transaction's IP.
func (h *Handlers) HandleScreenIP(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	transactionID := req.GetString("transaction_id", "")
	if transactionID == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	userCountry := req.GetString("user_country", "")
	if userCountry == "" {
		return mcp.NewToolResultError("user_country is required"), nil
	}
	ipAddress := req.GetString("ip_address", "")
	if ipAddress == "" {
		return mcp.NewToolResultError("ip_address is required"), nil
	}

	raw, err := h.client.ScreenIP(ctx, transactionID, userID, userCountry, ipAddress)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Screening failed: %v", err)), nil
	}

	text, err := formatScreening(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse screening result: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleLookupReputation returns the cached classification for an IP.
func (h *Handlers) HandleLookupReputation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ip := req.GetString("ip", "")
	if ip == "" {
		return mcp.NewToolResultError("ip is required"), nil
	}

	raw, err := h.client.GetReputation(ctx, ip)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to look up reputation: %v", err)), nil
	}

	text, err := formatReputation(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reputation: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleCheckCountry returns sanctions status and metadata for a country.
func (h *Handlers) HandleCheckCountry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := req.GetString("country_code", "")
	if code == "" {
		return mcp.NewToolResultError("country_code is required"), nil
	}

	raw, err := h.client.GetCountry(ctx, code)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check country: %v", err)), nil
	}

	text, err := formatCountry(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse country: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

func formatScreening(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Screening Result:\n")
	if v := getString(m, "screening_id"); v != "" {
		sb.WriteString(fmt.Sprintf("  ID: %s\n", v))
	}
	score, _ := getFloat(m, "risk_score")
	sb.WriteString(fmt.Sprintf("  Risk: %.0f/100 (%s)\n", score, getString(m, "risk_level")))
	if getBool(m, "should_block") {
		sb.WriteString("  Verdict: BLOCK\n")
	} else {
		sb.WriteString("  Verdict: allow\n")
	}
	if v := getString(m, "recommendation"); v != "" {
		sb.WriteString(fmt.Sprintf("  Recommendation: %s\n", v))
	}

	user := getString(m, "user_country")
	detected := getString(m, "detected_country")
	if user != "" || detected != "" {
		match := "mismatch"
		if getBool(m, "countries_match") {
			match = "match"
		}
		sb.WriteString(fmt.Sprintf("  Countries: declared %s, detected %s (%s)\n", user, detected, match))
	}

	if sec, ok := m["security"].(map[string]any); ok {
		if flags := flagNames(sec); len(flags) > 0 {
			sb.WriteString(fmt.Sprintf("  Flags: %s\n", strings.Join(flags, ", ")))
		}
	}
	if v, ok := getFloat(m, "confidence"); ok {
		sb.WriteString(fmt.Sprintf("  Confidence: %.0f%%\n", v*100))
	}

	if rules, ok := m["triggered_rules"].([]any); ok && len(rules) > 0 {
		sb.WriteString("\nTriggered rules:\n")
		for _, r := range rules {
			rm, ok := r.(map[string]any)
			if !ok {
				continue
			}
			contribution, _ := getFloat(rm, "score_contribution")
			sb.WriteString(fmt.Sprintf("  - %s (%s, %.0f): %s\n",
				getString(rm, "rule_name"), getString(rm, "severity"), contribution, getString(rm, "description")))
		}
	}

	return sb.String(), nil
}

func formatReputation(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	rec, ok := m["record"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("unexpected reputation response format")
	}

	var sb strings.Builder
	sb.WriteString("IP Reputation:\n")
	if v := getString(rec, "ip"); v != "" {
		sb.WriteString(fmt.Sprintf("  IP: %s\n", v))
	}
	if v := getString(m, "tier"); v != "" {
		sb.WriteString(fmt.Sprintf("  Tier: %s\n", v))
	}
	if v := getString(rec, "country"); v != "" {
		sb.WriteString(fmt.Sprintf("  Country: %s\n", v))
	}
	if flags := flagNames(rec); len(flags) > 0 {
		sb.WriteString(fmt.Sprintf("  Flags: %s\n", strings.Join(flags, ", ")))
	} else {
		sb.WriteString("  Flags: none\n")
	}
	if v, ok := getFloat(rec, "confidence"); ok {
		sb.WriteString(fmt.Sprintf("  Confidence: %.0f%%\n", v*100))
	}
	if v := getString(rec, "last_seen"); v != "" {
		sb.WriteString(fmt.Sprintf("  Last seen: %s\n", v))
	}

	return sb.String(), nil
}

func formatCountry(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	code := getString(m, "code")
	var sb strings.Builder
	if name := getString(m, "name"); name != "" {
		sb.WriteString(fmt.Sprintf("%s (%s)\n", name, code))
	} else {
		sb.WriteString(code + "\n")
	}
	if getBool(m, "sanctioned") {
		sb.WriteString("  Sanctions: SANCTIONED jurisdiction\n")
	} else {
		sb.WriteString("  Sanctions: not sanctioned\n")
	}
	if v := getString(m, "region"); v != "" {
		sb.WriteString(fmt.Sprintf("  Region: %s\n", v))
	}
	if borders, ok := m["borders"].([]any); ok && len(borders) > 0 {
		var codes []string
		for _, b := range borders {
			if s, ok := b.(string); ok {
				codes = append(codes, s)
			}
		}
		sb.WriteString(fmt.Sprintf("  Borders: %s\n", strings.Join(codes, ", ")))
	}

	return sb.String(), nil
}

// flagNames lists the set security flags of a flags-bearing object.
func flagNames(m map[string]any) []string {
	var flags []string
	for _, f := range []struct{ key, label string }{
		{"is_tor", "tor"},
		{"is_vpn", "vpn"},
		{"is_proxy", "proxy"},
		{"is_relay", "relay"},
	} {
		if getBool(m, f.key) {
			flags = append(flags, f.label)
		}
	}
	return flags
}

// getString extracts a string value from a map, rendering numbers as text.
func getString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	}
	return ""
}

// getFloat extracts a numeric value from a map.
func getFloat(m map[string]any, key string) (float64, bool) {
	f, ok := m[key].(float64)
	return f, ok
}

// getBool extracts a bool value from a map.
func getBool(m map[string]any, key string) bool {
	v, ok := m[key].(bool)
	return ok && v
}
