package debate_client

const (
	// Path prefixes. The public pages talk to /api; the manager dashboard
	// serves the same live endpoints under /debate-manager.
	DefaultPrefix = "/api"
	ManagerPrefix = "/debate-manager"

	// Hub endpoint, relative to the base URL
	DefaultHubPath = "/hubs/debate"

	// API Endpoints
	LiveStatusEndpoint = "/live/%s/status"
	HeatmapEndpoint    = "/live/%s/heatmap"
	FireCountEndpoint  = "/live/%s/fires"
	SendFireEndpoint   = "/live/%s/fire"
	LoginEndpoint      = "/auth/login"
	BannedIPsEndpoint  = "/moderation/banned-ips"
)
