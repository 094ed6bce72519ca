package ports

import "net/http"

// HTTPClient sends the outbound knock notification. *http.Client satisfies
// it; tests substitute a stub. Deadlines travel on the request context, so
// implementations need no timeout of their own.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
