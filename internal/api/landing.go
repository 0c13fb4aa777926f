package api

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Lecture Transcript Service</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f8fafc; color: #0f172a; max-width: 640px; margin: 3rem auto; padding: 0 1rem; }
  h1 { font-size: 1.5rem; margin-bottom: 0.25rem; }
  p { color: #475569; }
  code { font-family: "SF Mono", Menlo, monospace; font-size: 0.9rem; color: #4338ca; }
  li { margin: 0.35rem 0; }
</style>
</head>
<body>
<h1>Lecture Transcript Service</h1>
<p>Transcript retrieval and grounded chat for the video library.</p>
<ul>
  <li><code>POST /api/transcripts/{id}</code> extract and index a transcript</li>
  <li><code>PUT /api/transcripts/{id}</code> replace a transcript manually</li>
  <li><code>GET /api/search?q=&amp;sourceId=&amp;limit=</code> search excerpts</li>
  <li><code>POST /api/chunks</code> index chunks</li>
  <li><code>DELETE /api/vectors/{id}</code> drop a video's vectors</li>
  <li><code>POST /api/chat</code> streamed chat (server-sent events)</li>
  <li><code>/mcp</code> MCP Streamable HTTP</li>
  <li><a href="/health"><code>/health</code></a> health check</li>
</ul>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingHTML))
	}
}
