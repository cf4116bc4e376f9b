package livereload

import (
	"bytes"
	"fmt"
)

// Endpoint is the websocket path browsers connect to.
const Endpoint = "/__devproxy/ws"

// ClientScript returns the snippet injected into served HTML pages. It
// reconnects with backoff when the server restarts.
func ClientScript() []byte {
	return []byte(fmt.Sprintf(`<script type="module">
(() => {
  const url = (location.protocol === "https:" ? "wss://" : "ws://") + location.host + %q;
  let delay = 250;
  const connect = () => {
    const ws = new WebSocket(url);
    ws.onopen = () => { delay = 250; };
    ws.onmessage = (e) => { if (e.data === %q) location.reload(); };
    ws.onclose = () => { setTimeout(connect, delay); delay = Math.min(delay * 2, 5000); };
  };
  connect();
})();
</script>
`, Endpoint, ReloadMessage))
}

// Inject inserts script before the closing body tag of html, or appends it
// when the document has none.
func Inject(html, script []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(html), []byte("</body>"))
	if idx < 0 {
		out := make([]byte, 0, len(html)+len(script))
		out = append(out, html...)
		return append(out, script...)
	}
	out := make([]byte, 0, len(html)+len(script))
	out = append(out, html[:idx]...)
	out = append(out, script...)
	return append(out, html[idx:]...)
}
