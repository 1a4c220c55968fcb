package protocol

import (
	"fmt"
	"net/url"
)

// InviteURL builds a codehive:// invite URI for a room. When the room
// has a password it is appended URL-encoded so the link is self
// sufficient.
func InviteURL(host string, port int, code, password string) string {
	uri := fmt.Sprintf("codehive://%s:%d/join/%s", host, port, code)
	if password != "" {
		uri += "?password=" + url.QueryEscape(password)
	}
	return uri
}
