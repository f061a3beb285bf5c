package server

import (
	"fmt"
	"net/http"
)

// viewerPage is a self-contained live view. The image reloads at the
// capture interval with a cache-busting query so intermediaries never
// serve a stale frame.
const viewerPage = `<!DOCTYPE html>
<html>
<head>
<title>snapview</title>
<style>
  body { margin: 0; background: #111; color: #ddd; font-family: sans-serif; text-align: center; }
  h1 { font-size: 1rem; font-weight: normal; padding: 0.5rem; margin: 0; }
  img { max-width: 100vw; max-height: 90vh; }
  #meta { font-size: 0.8rem; color: #888; padding: 0.25rem; }
</style>
</head>
<body>
<h1>snapview live</h1>
<img id="shot" src="/screenshot" alt="latest capture">
<div id="meta"></div>
<script>
  setInterval(function() {
    document.getElementById('shot').src = '/screenshot?ts=' + Date.now();
    fetch('/metadata').then(function(r) { return r.json(); }).then(function(m) {
      if (m.timestamp) {
        document.getElementById('meta').textContent = m.timestamp + ' (' + m.dimensions + ')';
      }
    }).catch(function() {});
  }, %d);
</script>
</body>
</html>
`

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, viewerPage, s.sched.Interval().Milliseconds())
}
