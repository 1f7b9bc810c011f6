package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the screening MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolScreenIP = mcp.NewTool("screen_ip",
	mcp.WithDescription(
		"Screen a transaction's originating IP address for AML risk. "+
			"Classifies the IP (Tor, VPN, proxy, relay), compares the detected country with the "+
			"user's declared country, and returns a risk score from 0 to 100 with the triggered "+
			"rules and a block/approve recommendation."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("Identifier of the transaction being screened")),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("Identifier of the user who initiated the transaction")),
	mcp.WithString("user_country",
		mcp.Required(),
		mcp.Description("Two-letter ISO 3166-1 code of the user's declared country (e.g. 'US')")),
	mcp.WithString("ip_address",
		mcp.Required(),
		mcp.Description("IPv4 or IPv6 address the transaction originated from")),
)

var ToolLookupReputation = mcp.NewTool("lookup_reputation",
	mcp.WithDescription(
		"Look up the cached reputation record for an IP address without running a screening. "+
			"Shows which tier holds the IP (tor/vpn/clean), its security flags, detected country, "+
			"and classification confidence. Returns not-found if the IP was never screened or seeded."),
	mcp.WithString("ip",
		mcp.Required(),
		mcp.Description("IPv4 or IPv6 address to look up")),
)

var ToolCheckCountry = mcp.NewTool("check_country",
	mcp.WithDescription(
		"Check whether a country is a sanctioned jurisdiction and fetch its reference metadata "+
			"(name, region, bordering countries). Transactions declared from or detected in a "+
			"sanctioned jurisdiction are scored as critical risk."),
	mcp.WithString("country_code",
		mcp.Required(),
		mcp.Description("Two-letter ISO 3166-1 country code (e.g. 'IR')")),
)
