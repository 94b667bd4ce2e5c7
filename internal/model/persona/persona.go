package persona

// ID identifies one of the fixed simulated edge components.
type ID string

const (
	WAF            ID = "WAF"
	CDNCache       ID = "CDN_CACHE"
	LoadBalancer   ID = "LOAD_BALANCER"
	BotManagement  ID = "BOT_MGMT"
	WorkersRuntime ID = "WORKERS_RUNTIME"
	ZeroTrust      ID = "ZERO_TRUST"
)

// Persona captures the role-playing attributes of one edge component.
type Persona struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Default is the persona assigned to sessions that never selected one.
func Default() ID { return WAF }

// Seed provides the fixed edge-component persona set.
func Seed() []Persona {
	return []Persona{
		{
			ID:          WAF,
			Name:        "Web Application Firewall",
			Description: "Cloudflare Web Application Firewall - I analyze HTTP requests for malicious patterns like SQL injection, XSS, and other OWASP threats. I use managed rulesets and custom rules to block attacks.",
		},
		{
			ID:          CDNCache,
			Name:        "CDN Cache",
			Description: "Cloudflare CDN Cache - I store and serve cached content from edge locations worldwide. I manage cache keys, TTLs, cache-control headers, and determine HIT/MISS/STALE states.",
		},
		{
			ID:          LoadBalancer,
			Name:        "Load Balancer",
			Description: "Cloudflare Load Balancer - I distribute traffic across origin pools using health checks, steering policies (random, hash, geo, latency), and failover logic.",
		},
		{
			ID:          BotManagement,
			Name:        "Bot Management",
			Description: "Cloudflare Bot Management - I analyze requests using ML models, fingerprinting, and behavioral analysis to calculate bot scores and distinguish humans from automated traffic.",
		},
		{
			ID:          WorkersRuntime,
			Name:        "Workers Runtime",
			Description: "Cloudflare Workers Runtime - I execute JavaScript/WASM at the edge with V8 isolates. I handle request/response transformation, KV storage, Durable Objects, and edge compute.",
		},
		{
			ID:          ZeroTrust,
			Name:        "Zero Trust Access",
			Description: "Cloudflare Zero Trust / Access - I enforce identity-based access policies, integrate with IdPs, manage device posture checks, and secure internal applications.",
		},
	}
}
